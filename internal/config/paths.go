package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "NETCONFORM_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "netconform.yaml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "netconform"
)

// Environment overrides applied on top of the file
const (
	EnvDatabase = "NETCONFORM_DATABASE" // driver:path, e.g. sqlite:/var/lib/netconform.db
	EnvListen   = "NETCONFORM_LISTEN"
	EnvLogLevel = "NETCONFORM_LOG_LEVEL"
)

// FindConfigPath returns the first existing config file of
// candidatePaths, or empty string if there is none
func FindConfigPath() string {
	for _, path := range candidatePaths() {
		if fileExists(path) {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

// candidatePaths lists config locations in priority order:
// $NETCONFORM_CONFIG, ./netconform.yaml, $XDG_CONFIG_HOME/netconform,
// ~/.config/netconform and /etc/netconform
func candidatePaths() []string {
	var paths []string
	if path := os.Getenv(EnvConfigPath); path != "" {
		paths = append(paths, path)
	}
	paths = append(paths, ConfigFileName)
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		paths = append(paths, filepath.Join(xdgHome, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// DefaultConfigPath returns the preferred location for a new config file
func DefaultConfigPath() string {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, ConfigDirName, "config.yaml")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// ApplyEnv overrides file values from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDatabase); v != "" {
		driver, target := splitDatabase(v)
		c.Database.Driver = driver
		if driver == DriverMySQL {
			c.Database.DSN = target
		} else {
			c.Database.Path = target
		}
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	c.applyDefaults()
}

func splitDatabase(v string) (driver, target string) {
	for i := 0; i < len(v); i++ {
		if v[i] == ':' {
			return v[:i], v[i+1:]
		}
	}
	return v, ""
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir(configPath string) error {
	dir := filepath.Dir(configPath)
	return os.MkdirAll(dir, 0755)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
