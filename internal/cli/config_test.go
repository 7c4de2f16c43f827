package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
store:
  backend: postgres
  dsn: postgres://localhost/livedoc
relay:
  redis_addr: localhost:6379
`))
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/livedoc", cfg.Store.DSN)
	assert.Equal(t, "livedoc.db", cfg.Store.Path, "unset fields keep defaults")
	assert.Equal(t, "localhost:6379", cfg.Relay.RedisAddr)
	assert.Equal(t, "livedoc", cfg.Relay.Channel)
	assert.Equal(t, ":8081", cfg.Server.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_UnknownField(t *testing.T) {
	_, err := ParseConfig([]byte("store:\n  engine: sqlite\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(c *Config) {}, ""},
		{"memory needs nothing", func(c *Config) { c.Store = StoreConfig{Backend: BackendMemory} }, ""},
		{"bolt without path", func(c *Config) { c.Store = StoreConfig{Backend: BackendBolt} }, "store.path"},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, "store.dsn"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, "unknown backend"},
		{"relay without channel", func(c *Config) {
			c.Relay = RelayConfig{RedisAddr: "localhost:6379"}
		}, "relay.channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
