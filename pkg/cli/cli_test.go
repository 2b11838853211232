package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8125", cfg.StatsdAddr)
	assert.Equal(t, "127.0.0.1", cfg.APIHost)
	assert.Equal(t, 9381, cfg.APIPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.SelfCheck)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkwatchd.yaml")
	data := []byte("statsd_addr: 10.0.0.5:8125\nlog_level: debug\nself_check: true\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:8125", cfg.StatsdAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.SelfCheck)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.APIHost)
	assert.Equal(t, 9381, cfg.APIPort)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_port: [not a port"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfigString(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	s := cfg.String()
	assert.Contains(t, s, "127.0.0.1:8125")
	assert.Contains(t, s, "9381")
	assert.Contains(t, s, "info")
}
