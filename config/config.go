// Package config loads the server configuration from the environment and
// the command line.
package config

import (
	"flag"
	"io"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TINYWEB_"

// Config holds all application configuration.
type Config struct {
	Addr     string        `env:"ADDR" envDefault:"127.0.0.1:8080"`
	Root     string        `env:"ROOT" envDefault:"."`
	Env      string        `env:"ENV" envDefault:"production"`
	LogLevel zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`

	// GCPercent and MemoryLimit tune the runtime; zero keeps its defaults.
	GCPercent   int   `env:"GC_PERCENT"`
	MemoryLimit int64 `env:"MEMORY_LIMIT"`
}

// Development reports whether the development environment is selected.
func (c *Config) Development() bool { return c.Env == "development" }

// Load reads TINYWEB_* environment variables, then lets args (without the
// program name) override them.
func Load(args []string) (*Config, error) {
	return load(args, nil)
}

// load parses environ instead of the process environment when it is
// non-nil.
func load(args []string, environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, errors.Wrap(err, "config: parse environment")
	}

	fs := flag.NewFlagSet("tinyweb", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "static root directory")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "environment (development/production)")
	fs.TextVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.IntVar(&cfg.GCPercent, "gc-percent", cfg.GCPercent, "GOGC target percentage (0 keeps the runtime default)")
	fs.Int64Var(&cfg.MemoryLimit, "memory-limit", cfg.MemoryLimit, "soft memory limit in bytes (0 keeps the runtime default)")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "config: parse flags")
	}
	if fs.NArg() > 0 {
		return nil, errors.Newf("config: unexpected arguments %q", fs.Args())
	}

	if cfg.GCPercent < 0 || cfg.MemoryLimit < 0 {
		return nil, errors.New("config: gc-percent and memory-limit must not be negative")
	}

	switch cfg.Env {
	case "development", "production":
	default:
		return nil, errors.Newf("config: unknown environment %q", cfg.Env)
	}
	return cfg, nil
}
