package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/tokenguard/internal/flagx"
	"github.com/dmitrijs2005/tokenguard/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Durations accept "90s" style
// strings or integer nanoseconds. Empty or missing fields leave the current
// value untouched.
type FileConfig struct {
	EndpointAddrHTTP string          `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC string          `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	StoreBackend     string          `json:"store_backend" yaml:"store_backend"`
	DatabaseDSN      string          `json:"database_dsn" yaml:"database_dsn"`
	RedisAddr        string          `json:"redis_addr" yaml:"redis_addr"`
	RedisPrefix      string          `json:"redis_prefix" yaml:"redis_prefix"`
	SQLitePath       string          `json:"sqlite_path" yaml:"sqlite_path"`
	SecretSalt       string          `json:"secret_salt" yaml:"secret_salt"`
	TokenDuration    *timex.Duration `json:"token_duration" yaml:"token_duration"`
	GracePeriod      *timex.Duration `json:"grace_period" yaml:"grace_period"`
	LogLevel         string          `json:"log_level" yaml:"log_level"`
	LogFormat        string          `json:"log_format" yaml:"log_format"`
}

// parseFile overlays the file named by -c/-config, if any. Files ending in
// .yaml or .yml are read as YAML, anything else as JSON.
func parseFile(config *Config, args []string) error {

	path := flagx.ConfigFileFlag(args)

	// nothing to load
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPrefix, c.RedisPrefix)
	setString(&config.SQLitePath, c.SQLitePath)
	setString(&config.SecretSalt, c.SecretSalt)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	if c.TokenDuration != nil {
		config.TokenDuration = c.TokenDuration.Duration
	}
	if c.GracePeriod != nil {
		config.GracePeriod = c.GracePeriod.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
