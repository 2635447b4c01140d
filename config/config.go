// Package config loads the mediastore YAML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/sonata-project/mediastore/interfaces"
	"github.com/sonata-project/mediastore/pathgen"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for mediastore.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Media   MediaConfig   `yaml:"media"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	// ListenAddr is the address of the media API.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the address serving Prometheus metrics.
	MetricsAddr string `yaml:"metrics_addr"`

	EnablePprof  bool  `yaml:"pprof"`
	DrainSeconds int64 `yaml:"drain_seconds"`
}

// StorageConfig names the backing stores by location URI.
type StorageConfig struct {
	// Primary serves every read and receives every write first.
	Primary string `yaml:"primary"`

	// Secondary is an optional replication target. When empty the primary is
	// used on its own.
	Secondary string `yaml:"secondary"`
}

type MediaConfig struct {
	// Generator is one of "numeric", "hierarchical" or "bucket".
	Generator string `yaml:"generator"`

	// CDNPath is the base URL public file URLs are built on.
	CDNPath string `yaml:"cdn_path"`

	// BucketFirstLevel and BucketSecondLevel size the bucket generator.
	BucketFirstLevel  int64 `yaml:"bucket_first_level"`
	BucketSecondLevel int64 `yaml:"bucket_second_level"`
}

type LogConfig struct {
	Debug   bool   `yaml:"debug"`
	JSON    bool   `yaml:"json"`
	Service string `yaml:"service"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   "127.0.0.1:8080",
			MetricsAddr:  "127.0.0.1:8090",
			DrainSeconds: 45,
		},
		Storage: StorageConfig{
			Primary: "file:///var/lib/mediastore",
		},
		Media: MediaConfig{
			Generator:         pathgen.NumericName,
			CDNPath:           "/uploads/media",
			BucketFirstLevel:  pathgen.DefaultFirstLevel,
			BucketSecondLevel: pathgen.DefaultSecondLevel,
		},
		Log: LogConfig{
			Service: "mediastore",
		},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if c.Storage.Primary == "" {
		return fmt.Errorf("storage.primary is required")
	}
	if _, err := interfaces.NewStorageBackendLocation(c.Storage.Primary); err != nil {
		return fmt.Errorf("storage.primary: %w", err)
	}
	if c.Storage.Secondary != "" {
		if _, err := interfaces.NewStorageBackendLocation(c.Storage.Secondary); err != nil {
			return fmt.Errorf("storage.secondary: %w", err)
		}
	}

	if _, err := c.PathGenerator(); err != nil {
		return fmt.Errorf("media.generator: %w", err)
	}

	return nil
}

// PathGenerator builds the configured path generator.
func (c *Config) PathGenerator() (interfaces.PathGenerator, error) {
	if c.Media.Generator != pathgen.BucketName {
		return pathgen.New(c.Media.Generator)
	}
	g, err := pathgen.NewBucketGenerator(c.Media.BucketFirstLevel, c.Media.BucketSecondLevel)
	if err != nil {
		return nil, err
	}
	return g, nil
}
