// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the blockserverd configuration file.
	Config struct {
		Server   ServerConfig   `yaml:"server"`
		Logger   LoggerConfig   `yaml:"logger"`
		Metrics  MetricsConfig  `yaml:"metrics"`
		LoadTest LoadTestConfig `yaml:"loadtest"`
	}

	// ServerConfig describes the exported device and its sessions.
	ServerConfig struct {
		BlockSize   uint32          `yaml:"block_size"`
		BlockCount  uint64          `yaml:"block_count"`
		FifoDepth   int             `yaml:"fifo_depth"`
		BatchSize   int             `yaml:"batch_size"`
		MaxTransfer uint32          `yaml:"max_transfer"` // in blocks; 0 is unlimited
		Partition   PartitionConfig `yaml:"partition"`
	}

	// PartitionConfig names the exported partition.
	PartitionConfig struct {
		Name         string `yaml:"name"`
		TypeGUID     string `yaml:"type_guid"`
		InstanceGUID string `yaml:"instance_guid"` // random when empty
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`
		Color      bool   `yaml:"color"`
		Stacktrace bool   `yaml:"stacktrace"`
		TimeZone   string `yaml:"time_zone"`
		TimeFormat string `yaml:"time_format"`
	}

	// MetricsConfig controls the Prometheus endpoint.
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Addr      string    `yaml:"addr"`
		Path      string    `yaml:"path"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// LoadTestConfig drives the synthetic clients of the loadtest command.
	LoadTestConfig struct {
		Clients  int           `yaml:"clients"`
		Requests int           `yaml:"requests"`
		Blocks   uint32        `yaml:"blocks"` // blocks per request
		Timeout  time.Duration `yaml:"timeout"`
	}
)

var (
	errBlockSize = errors.New("config: server.block_size must be a nonzero power of two")
	errFifoDepth = errors.New("config: server.fifo_depth must be a power of two >= 2")
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML after resolving ${VAR:default} placeholders, then
// fills defaults and validates.
func Parse(data []byte) (*Config, error) {
	data = resolveEnv(data)
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	s := &c.Server
	if s.BlockSize == 0 {
		s.BlockSize = 512
	}
	if s.BlockCount == 0 {
		s.BlockCount = 2048
	}
	if s.FifoDepth == 0 {
		s.FifoDepth = 64
	}
	if s.BatchSize == 0 {
		s.BatchSize = 16
	}
	if s.Partition.Name == "" {
		s.Partition.Name = "ramdisk"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "blockserver"
	}
	l := &c.LoadTest
	if l.Clients == 0 {
		l.Clients = 4
	}
	if l.Requests == 0 {
		l.Requests = 1000
	}
	if l.Blocks == 0 {
		l.Blocks = 1
	}
	if l.Timeout == 0 {
		l.Timeout = 30 * time.Second
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	s := c.Server
	if s.BlockSize == 0 || s.BlockSize&(s.BlockSize-1) != 0 {
		return errBlockSize
	}
	if s.FifoDepth < 2 || s.FifoDepth&(s.FifoDepth-1) != 0 {
		return errFifoDepth
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("config: server.batch_size %d must be positive", s.BatchSize)
	}
	if _, _, err := s.Partition.GUIDs(); err != nil {
		return err
	}
	return nil
}

// GUIDs parses the partition GUIDs. An empty type GUID is the nil UUID;
// an empty instance GUID is generated.
func (p PartitionConfig) GUIDs() (typ, instance uuid.UUID, err error) {
	if p.TypeGUID != "" {
		if typ, err = uuid.Parse(p.TypeGUID); err != nil {
			return typ, instance, fmt.Errorf("config: partition.type_guid: %w", err)
		}
	}
	if p.InstanceGUID == "" {
		return typ, uuid.New(), nil
	}
	if instance, err = uuid.Parse(p.InstanceGUID); err != nil {
		return typ, instance, fmt.Errorf("config: partition.instance_guid: %w", err)
	}
	return typ, instance, nil
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
