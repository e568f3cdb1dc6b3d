package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Storage     StorageConfig               `toml:"storage"`
	Git         GitConfig                   `toml:"git"`
	Log         LogConfig                   `toml:"log"`
	Credentials map[string]CredentialConfig `toml:"credentials"`

	// Parsed from Git.RemoteTimeout (not serialized)
	remoteTimeout time.Duration
	// File the config was loaded from (not serialized)
	path string
}

type StorageConfig struct {
	WorkingDir   string `toml:"working_dir"`
	DatabasePath string `toml:"database_path"`
}

type GitConfig struct {
	DefaultBranch   string `toml:"default_branch"`
	RemoteName      string `toml:"remote_name"`
	RemoteTimeout   string `toml:"remote_timeout"`
	FetchRetries    int    `toml:"fetch_retries"`
	LogPageSize     int    `toml:"log_page_size"`
	BranchCacheSize int    `toml:"branch_cache_size"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// CredentialConfig describes how to build remote credentials for one
// GitAuthRef. Secrets themselves stay outside the config file.
type CredentialConfig struct {
	SSHKeyPath    string `toml:"ssh_key_path"`
	SSHUser       string `toml:"ssh_user"`
	PassphraseEnv string `toml:"passphrase_env"`
	KnownHosts    string `toml:"known_hosts"`
	// InsecureIgnoreHostKey disables ssh host key checking
	InsecureIgnoreHostKey bool   `toml:"insecure_ignore_host_key"`
	Username              string `toml:"username"`
	TokenEnv              string `toml:"token_env"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			WorkingDir:   "~/.appgit/repos",
			DatabasePath: "~/.appgit/appgit.db",
		},
		Git: GitConfig{
			DefaultBranch:   "main",
			RemoteName:      "origin",
			RemoteTimeout:   "60s",
			FetchRetries:    3,
			LogPageSize:     100,
			BranchCacheSize: 256,
		},
		Log: LogConfig{
			Level: "info",
		},
		Credentials: map[string]CredentialConfig{},
	}
}

// Path returns the default config file location
func Path() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "appgit.toml"), nil
}

// Load reads the config from the default location, writing defaults on first run
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		cfg := DefaultConfig()
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.path = path
			if err := cfg.validate(); err != nil {
				return nil, err
			}
			_ = cfg.Save() // Best effort save
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.path = path

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	d, err := time.ParseDuration(c.Git.RemoteTimeout)
	if err != nil {
		return fmt.Errorf("invalid git.remote_timeout %q: %w", c.Git.RemoteTimeout, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid git.remote_timeout %q: must be positive", c.Git.RemoteTimeout)
	}
	c.remoteTimeout = d

	if c.Git.DefaultBranch == "" {
		return fmt.Errorf("git.default_branch must not be empty")
	}
	if c.Git.RemoteName == "" {
		return fmt.Errorf("git.remote_name must not be empty")
	}
	if c.Git.FetchRetries < 0 {
		return fmt.Errorf("git.fetch_retries must not be negative")
	}
	if c.Git.LogPageSize <= 0 {
		c.Git.LogPageSize = 100
	}
	if c.Git.BranchCacheSize <= 0 {
		c.Git.BranchCacheSize = 256
	}
	if c.Credentials == nil {
		c.Credentials = map[string]CredentialConfig{}
	}
	return nil
}

// RemoteTimeout returns the parsed network timeout
func (c *Config) RemoteTimeout() time.Duration {
	if c.remoteTimeout == 0 {
		// Safe even if validate() was never called
		if d, err := time.ParseDuration(c.Git.RemoteTimeout); err == nil {
			return d
		}
		return 60 * time.Second
	}
	return c.remoteTimeout
}

func (c *Config) Save() error {
	path := c.path
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// WorkingDir returns the root directory for working copies
func (c *Config) WorkingDir() string {
	return expandTilde(c.Storage.WorkingDir)
}

// DatabasePath returns the SQLite database location
func (c *Config) DatabasePath() string {
	return expandTilde(c.Storage.DatabasePath)
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
