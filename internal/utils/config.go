package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFile holds defaults read from an optional YAML file. Zero values mean
// "not set"; command-line flags always win over file values.
type ConfigFile struct {
	Connections    int               `yaml:"connections"`
	ChunkSize      string            `yaml:"chunk_size"`
	RateLimit      string            `yaml:"rate_limit"`
	Retries        int               `yaml:"retries"`
	UserAgent      string            `yaml:"user_agent"`
	Proxy          string            `yaml:"proxy"`
	Headers        map[string]string `yaml:"headers"`
	ConnectTimeout string            `yaml:"connect_timeout"`
	ReadTimeout    string            `yaml:"read_timeout"`
}

// DefaultConfigPath returns ~/.riptide.yaml, or "" when no home directory is
// resolvable.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".riptide.yaml")
}

// LoadConfigFile reads a defaults file. A missing file at the default path is
// not an error; an explicitly requested file must exist.
func LoadConfigFile(path string, explicit bool) (*ConfigFile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading config file: %v", err)
	}
	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}
	return &cfg, nil
}
