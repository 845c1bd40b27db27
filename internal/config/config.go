package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
)

type Config struct {
	Version int `yaml:"version"`
	Service struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
	} `yaml:"service"`
	Judge struct {
		URL              string        `yaml:"url"`
		Timeout          time.Duration `yaml:"timeout"`
		FailureThreshold float64       `yaml:"failure_threshold"`
		MinRequests      uint32        `yaml:"min_requests"`
		OpenTimeout      time.Duration `yaml:"open_timeout"`
	} `yaml:"judge"`
	Validation struct {
		DefaultEdges string `yaml:"default_edges"`
	} `yaml:"validation"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.Service.Name = "adventure-engine"
	cfg.Storage.Driver = "postgres"
	return cfg
}

// Port returns the configured HTTP port, defaulting to 8080 if not set.
func (c *Config) Port() int {
	if c.Service.Port == 0 {
		return 8080
	}
	return c.Service.Port
}

// Development reports whether the service runs in development mode.
func (c *Config) Development() bool {
	return c.Service.Environment == "development"
}

// JudgeTimeout returns the code execution timeout, defaulting to 15s.
func (c *Config) JudgeTimeout() time.Duration {
	if c.Judge.Timeout <= 0 {
		return 15 * time.Second
	}
	return c.Judge.Timeout
}

// DefaultEdgePolicy returns the validator policy named by
// validation.default_edges. Empty means single.
func (c *Config) DefaultEdgePolicy() (adventure.Policy, error) {
	switch p := adventure.DefaultEdgePolicy(c.Validation.DefaultEdges); p {
	case "":
		return adventure.StrictPolicy, nil
	case adventure.DefaultEdgesSingle, adventure.DefaultEdgesMultiple, adventure.DefaultEdgesForbidden:
		return adventure.Policy{DefaultEdges: p}, nil
	default:
		return adventure.Policy{}, fmt.Errorf("unknown validation.default_edges: %q", p)
	}
}

// TopicPrefix returns the MQTT topic root, defaulting to "adventures".
func (c *Config) TopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "adventures"
	}
	return c.MQTT.TopicPrefix
}

// ClientID returns the MQTT client id, defaulting to the service name.
func (c *Config) ClientID() string {
	if c.MQTT.ClientID != "" {
		return c.MQTT.ClientID
	}
	if c.Service.Name != "" {
		return c.Service.Name
	}
	return "adventure-engine"
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported adventure.yaml version: %d", cfg.Version)
	}
	if _, err := cfg.DefaultEdgePolicy(); err != nil {
		return nil, err
	}
	switch cfg.Storage.Driver {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown storage.driver: %q", cfg.Storage.Driver)
	}

	return cfg, nil
}
