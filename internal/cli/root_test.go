package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "livedoc", cmd.Use)
	assert.Contains(t, cmd.Long, "CUE")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"put", "get", "rm", "ls", "truncate", "query", "watch", "validate", "serve", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "backend", "db", "dsn"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Empty(t, f.DefValue, name)
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	listen := serveCmd.Flags().Lookup("listen")
	require.NotNil(t, listen)
	assert.Empty(t, listen.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "ls", "tasks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootOptionsConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := (&RootOptions{}).Config()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("flags override file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "livedoc.yaml")
		writeFile(t, path, "store:\n  backend: bolt\n  path: from-file.db\nserver:\n  listen: \":9000\"\n")

		cfg, err := (&RootOptions{ConfigPath: path, DB: "from-flag.db"}).Config()
		require.NoError(t, err)
		assert.Equal(t, BackendBolt, cfg.Store.Backend)
		assert.Equal(t, "from-flag.db", cfg.Store.Path)
		assert.Equal(t, ":9000", cfg.Server.Listen)
		assert.Equal(t, "livedoc", cfg.Relay.Channel)
	})

	t.Run("invalid backend", func(t *testing.T) {
		_, err := (&RootOptions{Backend: "mongo"}).Config()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown backend")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := (&RootOptions{ConfigPath: "/nonexistent/livedoc.yaml"}).Config()
		require.Error(t, err)
	})
}
