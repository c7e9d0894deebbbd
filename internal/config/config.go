package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig holds the settings of the capture engine.
type CaptureConfig struct {
	Interface   string `yaml:"interface"`
	PcapFile    string `yaml:"pcap_file"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
	ReadTimeout string `yaml:"read_timeout"`
	Autostart   bool   `yaml:"autostart"`
}

// APIConfig holds the listen addresses of the HTTP and gRPC servers.
type APIConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`
	GrpcListenAddr string `yaml:"grpc_listen_addr"`
	StaticDir      string `yaml:"static_dir"`
	CORSOrigin     string `yaml:"cors_origin"`
}

// DiscoveryConfig controls the ARP discovery scan.
type DiscoveryConfig struct {
	Interface         string `yaml:"interface"`
	Wait              string `yaml:"wait"`
	RateLimit         string `yaml:"rate_limit"`
	MaxHosts          int    `yaml:"max_hosts"`
	HostnameCacheSize int    `yaml:"hostname_cache_size"`
}

// PublisherConfig holds the NATS packet feed settings.
type PublisherConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WriterDef defines a single snapshot writer.
type WriterDef struct {
	Type       string           `yaml:"type"`
	Enabled    bool             `yaml:"enabled"`
	Interval   string           `yaml:"interval"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// SnapshotConfig lists the writers that receive periodic statistics snapshots.
type SnapshotConfig struct {
	TopTalkers int         `yaml:"top_talkers"`
	Writers    []WriterDef `yaml:"writers"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Capture   CaptureConfig   `yaml:"capture"`
	API       APIConfig       `yaml:"api"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Publisher PublisherConfig `yaml:"publisher"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{Capture: CaptureConfig{Promiscuous: true}}
	applyDefaults(cfg)
	return cfg
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{Capture: CaptureConfig{Promiscuous: true}}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like LoadConfig but returns Default() when the file
// does not exist. The boolean reports whether the file was found.
func LoadOrDefault(filePath string) (*Config, bool, error) {
	cfg, err := LoadConfig(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Capture.SnapshotLen <= 0 {
		cfg.Capture.SnapshotLen = 1600
	}
	if cfg.Capture.ReadTimeout == "" {
		cfg.Capture.ReadTimeout = "500ms"
	}
	if cfg.API.HttpListenAddr == "" {
		cfg.API.HttpListenAddr = ":5000"
	}
	if cfg.API.CORSOrigin == "" {
		cfg.API.CORSOrigin = "*"
	}
	if cfg.Discovery.Wait == "" {
		cfg.Discovery.Wait = "3s"
	}
	if cfg.Discovery.RateLimit == "" {
		cfg.Discovery.RateLimit = "50us"
	}
	if cfg.Discovery.MaxHosts == 0 {
		cfg.Discovery.MaxHosts = 4096
	}
	if cfg.Discovery.HostnameCacheSize <= 0 {
		cfg.Discovery.HostnameCacheSize = 1024
	}
	if cfg.Publisher.Subject == "" {
		cfg.Publisher.Subject = "gons.packets.records"
	}
	if cfg.Snapshot.TopTalkers <= 0 {
		cfg.Snapshot.TopTalkers = 5
	}
	for i := range cfg.Snapshot.Writers {
		if cfg.Snapshot.Writers[i].Interval == "" {
			cfg.Snapshot.Writers[i].Interval = "1m"
		}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks that every duration field parses and is positive.
func (c *Config) Validate() error {
	durations := map[string]string{
		"capture.read_timeout": c.Capture.ReadTimeout,
		"discovery.wait":       c.Discovery.Wait,
		"discovery.rate_limit": c.Discovery.RateLimit,
	}
	for i, w := range c.Snapshot.Writers {
		durations[fmt.Sprintf("snapshot.writers[%d].interval", i)] = w.Interval
	}
	for name, raw := range durations {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if c.Publisher.Enabled && c.Publisher.NATSURL == "" {
		return fmt.Errorf("publisher.nats_url is required when the publisher is enabled")
	}
	return nil
}

// ReadTimeoutDuration returns the parsed capture read timeout.
func (c CaptureConfig) ReadTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	return d
}

// WaitDuration returns how long a discovery scan waits for replies.
func (c DiscoveryConfig) WaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.Wait)
	return d
}

// RateLimitDuration returns the delay between ARP requests.
func (c DiscoveryConfig) RateLimitDuration() time.Duration {
	d, _ := time.ParseDuration(c.RateLimit)
	return d
}

// IntervalDuration returns the snapshot interval of the writer.
func (w WriterDef) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(w.Interval)
	return d
}
