package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Evidence EvidenceConfig `yaml:"evidence"`
	Networks []string       `yaml:"networks,omitempty"` // Local IP prefixes
	Log      LogConfig      `yaml:"log"`
	Sources  SourcesConfig  `yaml:"sources"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Driver string `yaml:"driver"`          // sqlite, mysql or memory
	Path   string `yaml:"path,omitempty"`  // sqlite file
	DSN    string `yaml:"dsn,omitempty"`   // mysql data source name
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Listen       string    `yaml:"listen"`
	ReadTimeout  *Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout *Duration `yaml:"write_timeout,omitempty"`
}

// ModelConfig points at the declared model
type ModelConfig struct {
	Path string `yaml:"path"`
}

// EvidenceConfig lists evidence files imported at startup
type EvidenceConfig struct {
	Files []string `yaml:"files,omitempty"` // JSON Lines event files
	Nmap  []string `yaml:"nmap,omitempty"`  // nmap XML reports
	Watch bool     `yaml:"watch,omitempty"` // Tail the JSON Lines files for appended events
	// SSHProbe fetches host keys of SSH endpoints the nmap reports found open
	SSHProbe bool `yaml:"ssh_probe,omitempty"`
	// Debounce delays re-reading a file after a write notification
	Debounce *Duration `yaml:"debounce,omitempty"`
	// Scan runs nmap live against the targets
	Scan ScanConfig `yaml:"scan,omitempty"`
}

// ScanConfig holds live nmap scan settings
type ScanConfig struct {
	Targets           []string  `yaml:"targets,omitempty"` // CIDR ranges or hosts
	Ports             string    `yaml:"ports,omitempty"`   // nmap port list, e.g. "22,80-443"
	UDP               bool      `yaml:"udp,omitempty"`
	ServiceDetection  bool      `yaml:"service_detection,omitempty"`
	SkipHostDiscovery bool      `yaml:"skip_host_discovery,omitempty"`
	Timeout           *Duration `yaml:"timeout,omitempty"`
	Label             string    `yaml:"label,omitempty"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// SourcesConfig points at the INI source label filter
type SourcesConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Or returns the duration, or def when unset
func (d *Duration) Or(def time.Duration) time.Duration {
	if d == nil || *d == 0 {
		return def
	}
	return time.Duration(*d)
}
