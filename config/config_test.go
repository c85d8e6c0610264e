package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Addr:     "127.0.0.1:8080",
		Root:     ".",
		Env:      "production",
		LogLevel: zapcore.InfoLevel,
	}, cfg)
	assert.False(t, cfg.Development())
}

func TestLoadEnvironment(t *testing.T) {
	cfg, err := load(nil, map[string]string{
		"TINYWEB_ADDR":      "0.0.0.0:9000",
		"TINYWEB_ROOT":      "/srv/www",
		"TINYWEB_ENV":       "development",
		"TINYWEB_LOG_LEVEL": "debug",
		"ADDR":              "ignored:1",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "/srv/www", cfg.Root)
	assert.True(t, cfg.Development())
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	cfg, err := load(
		[]string{"-addr", ":7000", "-log-level", "warn"},
		map[string]string{"TINYWEB_ADDR": ":9000", "TINYWEB_ROOT": "/srv"},
	)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "/srv", cfg.Root)
	assert.Equal(t, zapcore.WarnLevel, cfg.LogLevel)
}

func TestLoadRuntimeTuning(t *testing.T) {
	cfg, err := load([]string{"-gc-percent", "300"}, map[string]string{"TINYWEB_MEMORY_LIMIT": "1073741824"})
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.GCPercent)
	assert.Equal(t, int64(1<<30), cfg.MemoryLimit)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]struct {
		args    []string
		environ map[string]string
	}{
		"bad env level":  {nil, map[string]string{"TINYWEB_LOG_LEVEL": "loud"}},
		"bad flag level": {[]string{"-log-level", "loud"}, map[string]string{}},
		"unknown flag":   {[]string{"-port", "80"}, map[string]string{}},
		"positional arg": {[]string{"extra"}, map[string]string{}},
		"unknown env":    {[]string{"-env", "staging"}, map[string]string{}},
		"negative gc":    {[]string{"-gc-percent", "-1"}, map[string]string{}},
		"bad limit":      {nil, map[string]string{"TINYWEB_MEMORY_LIMIT": "lots"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(tt.args, tt.environ)
			assert.Error(t, err)
		})
	}
}
