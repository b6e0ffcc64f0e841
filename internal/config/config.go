// Package config provides configuration management for netconform.
//
// The config file says where the model, the evidence and the event log
// live. It never carries model state: declared entities come from the model
// YAML and observed state is rebuilt from the event log.
//
// Config file locations (priority order):
//  1. $NETCONFORM_CONFIG
//  2. ./netconform.yaml
//  3. $XDG_CONFIG_HOME/netconform/config.yaml
//  4. ~/.config/netconform/config.yaml
//  5. /etc/netconform/config.yaml
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

const (
	defaultDBPath  = "./netconform.db"
	defaultListen  = ":3000"
	defaultLevel   = "info"
	defaultNetwork = "192.168.0.0/16"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		c.Database.Path = defaultDBPath
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLevel
	}
	if len(c.Networks) == 0 {
		c.Networks = []string{defaultNetwork}
	}
}

// Validate checks values that defaults cannot fix
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverMemory:
	case DriverMySQL:
		if c.Database.DSN == "" {
			return fmt.Errorf("database: mysql driver needs a dsn")
		}
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if _, err := c.IPNetworks(); err != nil {
		return err
	}
	return nil
}

// DataSource returns the driver specific connection string
func (c *Config) DataSource() string {
	if c.Database.Driver == DriverMySQL {
		return c.Database.DSN
	}
	return c.Database.Path
}

// IPNetworks parses the local networks
func (c *Config) IPNetworks() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.Networks))
	for _, n := range c.Networks {
		p, err := netip.ParsePrefix(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("networks: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Summary returns a human-readable config summary. The MySQL DSN is left
// out since it may carry a password.
func (c *Config) Summary() string {
	target := c.Database.Path
	if c.Database.Driver == DriverMySQL {
		target = "(dsn)"
	}
	summary := fmt.Sprintf("Database: %s %s\n", c.Database.Driver, target)
	summary += fmt.Sprintf("Model: %s, Evidence files: %d, Watch: %v\n",
		c.Model.Path, len(c.Evidence.Files), c.Evidence.Watch)
	summary += fmt.Sprintf("Networks: %s", strings.Join(c.Networks, ", "))
	return summary
}
