package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetver/fleetver/internal/util"
	"sigs.k8s.io/yaml"
)

const (
	appName = "fleetver"
)

type Config struct {
	Database  *dbConfig        `json:"database,omitempty"`
	Service   *svcConfig       `json:"service,omitempty"`
	Scheduler *schedulerConfig `json:"scheduler,omitempty"`
	Webhook   *webhookConfig   `json:"webhook,omitempty"`
	Auth      *authConfig      `json:"auth,omitempty"`
}

type dbConfig struct {
	Type     string `json:"type,omitempty"`
	File     string `json:"file,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Port     uint   `json:"port,omitempty"`
	Name     string `json:"name,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

type svcConfig struct {
	Address            string `json:"address,omitempty"`
	LogLevel           string `json:"logLevel,omitempty"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute,omitempty"`
}

type schedulerConfig struct {
	// PollIntervalSeconds of zero disables the background poll loop.
	PollIntervalSeconds float64 `json:"pollIntervalSeconds,omitempty"`
	PollWorkers         int     `json:"pollWorkers,omitempty"`
	PollTimeoutSeconds  float64 `json:"pollTimeoutSeconds,omitempty"`
}

type webhookConfig struct {
	URL string `json:"url,omitempty"`
}

type authConfig struct {
	APIToken           string  `json:"apiToken,omitempty"`
	RegistrationToken  string  `json:"registrationToken,omitempty"`
	SessionTTLHours    float64 `json:"sessionTtlHours,omitempty"`
	DefaultClusterID   *int64  `json:"defaultClusterId,omitempty"`
	DefaultClusterName string  `json:"defaultClusterName,omitempty"`
}

func ConfigDir() string {
	return filepath.Join(util.MustString(os.UserHomeDir), "."+appName)
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func NewDefault() *Config {
	c := &Config{
		Database: &dbConfig{
			Type: "sqlite",
			File: filepath.Join("data", "fleetver.db"),
		},
		Service: &svcConfig{
			Address:  "127.0.0.1:8080",
			LogLevel: "info",
		},
		Scheduler: &schedulerConfig{
			PollWorkers:        10,
			PollTimeoutSeconds: 2.0,
		},
		Webhook: &webhookConfig{},
		Auth: &authConfig{
			SessionTTLHours: 12,
		},
	}
	return c
}

func NewFromFile(cfgFile string) (*Config, error) {
	cfg, err := Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrGenerate(cfgFile string) (*Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(cfgFile), os.FileMode(0755)); err != nil {
			return nil, fmt.Errorf("creating directory for config file: %v", err)
		}
		if err := Save(NewDefault(), cfgFile); err != nil {
			return nil, err
		}
	}
	return NewFromFile(cfgFile)
}

// Load decodes cfgFile on top of the defaults, so a hand-written config
// only needs the fields it overrides.
func Load(cfgFile string) (*Config, error) {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %v", err)
	}
	c := NewDefault()
	if err := yaml.Unmarshal(contents, c); err != nil {
		return nil, fmt.Errorf("decoding config: %v", err)
	}
	return c, nil
}

func Save(cfg *Config, cfgFile string) error {
	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %v", err)
	}
	if err := os.WriteFile(cfgFile, contents, 0600); err != nil {
		return fmt.Errorf("writing config file: %v", err)
	}
	return nil
}

func Validate(cfg *Config) error {
	if cfg.Database == nil {
		return fmt.Errorf("database section is required")
	}
	switch cfg.Database.Type {
	case "sqlite":
		if cfg.Database.File == "" {
			return fmt.Errorf("database.file is required for sqlite")
		}
	case "pgsql":
		if cfg.Database.Hostname == "" || cfg.Database.Name == "" || cfg.Database.User == "" {
			return fmt.Errorf("database.hostname, database.name and database.user are required for pgsql")
		}
	default:
		return fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
	if cfg.Service == nil || cfg.Service.Address == "" {
		return fmt.Errorf("service.address is required")
	}
	if cfg.Scheduler != nil {
		if cfg.Scheduler.PollWorkers <= 0 {
			return fmt.Errorf("scheduler.pollWorkers must be positive")
		}
		if cfg.Scheduler.PollIntervalSeconds < 0 {
			return fmt.Errorf("scheduler.pollIntervalSeconds must not be negative")
		}
		if cfg.Scheduler.PollTimeoutSeconds <= 0 {
			return fmt.Errorf("scheduler.pollTimeoutSeconds must be positive")
		}
	}
	if cfg.Auth != nil && cfg.Auth.SessionTTLHours <= 0 {
		return fmt.Errorf("auth.sessionTtlHours must be positive")
	}
	return nil
}

func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
