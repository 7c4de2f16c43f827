package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by store.backend and --backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config is the YAML config file layout.
//
//	store:
//	  backend: sqlite
//	  path: livedoc.db
//	relay:
//	  redis_addr: localhost:6379
//	server:
//	  listen: ":8081"
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Relay  RelayConfig  `yaml:"relay"`
	Server ServerConfig `yaml:"server"`
}

// StoreConfig selects and locates the backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// RelayConfig enables the redis change relay when RedisAddr is set.
type RelayConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	Channel   string `yaml:"channel"`
}

// ServerConfig configures livedoc serve.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Store:  StoreConfig{Backend: BackendSQLite, Path: "livedoc.db"},
		Relay:  RelayConfig{Channel: "livedoc"},
		Server: ServerConfig{Listen: ":8081"},
	}
}

// LoadConfig reads a config file over the defaults. Unknown fields are
// rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses config YAML over the defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the selected backend has what it needs to open.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite, BackendBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for backend %q", c.Store.Backend)
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for backend \"postgres\"")
		}
	default:
		return fmt.Errorf("unknown backend %q: must be one of memory, sqlite, bolt, postgres", c.Store.Backend)
	}
	if c.Relay.RedisAddr != "" && c.Relay.Channel == "" {
		return errors.New("relay.channel must not be empty")
	}
	return nil
}
