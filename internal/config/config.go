// Package config loads server configuration from defaults, an optional YAML
// file, DIRSERVE_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "DIRSERVE"

var (
	ErrBaseDirMissing = errors.New("base directory does not exist")
	ErrBaseDirNotDir  = errors.New("base directory is not a directory")
)

// Config holds all server configuration.
type Config struct {
	// Served tree
	BaseDir   string `yaml:"base_dir" split_words:"true"`
	ChunkSize int    `yaml:"chunk_size" split_words:"true"`
	Workers   int    `yaml:"workers" split_words:"true"`

	// Server
	Host        string `yaml:"host" split_words:"true"`
	Port        int    `yaml:"port" split_words:"true"`
	MetricsAddr string `yaml:"metrics_addr" split_words:"true"`

	// Logging
	LogLevel  string `yaml:"log_level" split_words:"true"`
	LogFormat string `yaml:"log_format" split_words:"true"`

	// Per-client rate limiting; RPS <= 0 disables it
	RateLimitRPS   float64 `yaml:"rate_limit_rps" split_words:"true"`
	RateLimitBurst int     `yaml:"rate_limit_burst" split_words:"true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseDir:        ".",
		ChunkSize:      256 << 10,
		Workers:        2,
		Host:           "127.0.0.1",
		Port:           8080,
		MetricsAddr:    ":9090",
		LogLevel:       "info",
		LogFormat:      "json",
		RateLimitRPS:   50,
		RateLimitBurst: 100,
	}
}

// Addr returns the listen address of the API server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// cliFlags mirrors the command line before it is merged into a Config.
type cliFlags struct {
	configPath  string
	host        string
	port        int
	logLevel    string
	logFormat   string
	workers     int
	chunkSize   int
	metricsAddr string
}

func newFlagSet(f *cliFlags, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("dirserve", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: dirserve [flags] [base_dir]\n\n")
		fs.PrintDefaults()
	}

	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.host, "host", "", "Interface to bind")
	fs.StringVar(&f.host, "H", "", "Shorthand for -host")
	fs.IntVar(&f.port, "port", 0, "Port to listen on")
	fs.IntVar(&f.port, "p", 0, "Shorthand for -port")
	fs.StringVar(&f.logLevel, "loglevel", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.logLevel, "l", "", "Shorthand for -loglevel")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (json, console)")
	fs.IntVar(&f.workers, "workers", 0, "Number of walk workers")
	fs.IntVar(&f.workers, "w", 0, "Shorthand for -workers")
	fs.IntVar(&f.chunkSize, "chunk-size", 0, "Largest chunk written per read when streaming files")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Metrics listen address, empty to disable")
	return fs
}

// parseArgs parses flags that may appear before or after the positional
// base directory.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// Load builds the configuration for the given command-line arguments
// (without the program name). It does not validate the result.
func Load(args []string) (*Config, error) {
	return load(args, os.Stderr)
}

func load(args []string, usage io.Writer) (*Config, error) {
	var f cliFlags
	fs := newFlagSet(&f, usage)
	positional, err := parseArgs(fs, args)
	if err != nil {
		return nil, err
	}
	if len(positional) > 1 {
		return nil, fmt.Errorf("expected at most one base directory, got %d", len(positional))
	}

	cfg := Default()

	path := f.configPath
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "host", "H":
			cfg.Host = f.host
		case "port", "p":
			cfg.Port = f.port
		case "loglevel", "l":
			cfg.LogLevel = f.logLevel
		case "log-format":
			cfg.LogFormat = f.logFormat
		case "workers", "w":
			cfg.Workers = f.workers
		case "chunk-size":
			cfg.ChunkSize = f.chunkSize
		case "metrics-addr":
			cfg.MetricsAddr = f.metricsAddr
		}
	})
	if len(positional) == 1 {
		cfg.BaseDir = positional[0]
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration and resolves BaseDir to a clean absolute
// path. Symlinks in BaseDir are kept as given.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}

	abs, err := filepath.Abs(c.BaseDir)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBaseDirMissing, c.BaseDir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBaseDirMissing, abs)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrBaseDirNotDir, abs)
	}
	c.BaseDir = abs
	return nil
}
