package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the node configuration file. Durations are plain integer
// seconds/milliseconds so the file stays toolable.
type Config struct {
	Node struct {
		IDFile           string `yaml:"id_file"`
		IsMaster         bool   `yaml:"is_master"`
		TransportAddress string `yaml:"transport_address"`
	} `yaml:"node"`

	Cluster struct {
		PingTimeoutSeconds int `yaml:"ping_timeout_seconds"`
		HeartbeatSeconds   int `yaml:"heartbeat_seconds"`
	} `yaml:"cluster"`

	Inputs struct {
		StopGraceSeconds int `yaml:"stop_grace_seconds"`
	} `yaml:"inputs"`

	API struct {
		Listen string `yaml:"listen"`
	} `yaml:"api"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	Startup struct {
		TimeoutSeconds         int `yaml:"timeout_seconds"`
		ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
	} `yaml:"startup"`
}

// defaults mirror a single-node developer setup.
func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Node.IDFile = "data/node-id"
	cfg.Node.IsMaster = true
	cfg.Node.TransportAddress = "http://127.0.0.1:12900"
	cfg.Cluster.PingTimeoutSeconds = 7
	cfg.Cluster.HeartbeatSeconds = 5
	cfg.Inputs.StopGraceSeconds = 10
	cfg.API.Listen = ":12900"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090
	cfg.Startup.TimeoutSeconds = 60
	cfg.Startup.ShutdownTimeoutSeconds = 30
	return cfg
}

// loadConfig reads path over the defaults. A missing file is fine; the
// defaults stand.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func (c *Config) pingTimeout() time.Duration {
	return time.Duration(c.Cluster.PingTimeoutSeconds) * time.Second
}

func (c *Config) heartbeatInterval() time.Duration {
	return time.Duration(c.Cluster.HeartbeatSeconds) * time.Second
}

func (c *Config) stopGrace() time.Duration {
	return time.Duration(c.Inputs.StopGraceSeconds) * time.Second
}

func (c *Config) startupTimeout() time.Duration {
	return time.Duration(c.Startup.TimeoutSeconds) * time.Second
}

func (c *Config) shutdownTimeout() time.Duration {
	return time.Duration(c.Startup.ShutdownTimeoutSeconds) * time.Second
}
