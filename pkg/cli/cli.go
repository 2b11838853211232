package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/linkwatch/linkwatchd/pkg/version"
	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration from CLI flags and the optional
// config file.
type Config struct {
	StatsdAddr string `yaml:"statsd_addr"`
	APIHost    string `yaml:"api_host"`
	APIPort    int    `yaml:"api_port"`
	LogLevel   string `yaml:"log_level"`
	SelfCheck  bool   `yaml:"self_check"`
}

func defaultConfig() *Config {
	return &Config{
		StatsdAddr: "127.0.0.1:8125",
		APIHost:    "127.0.0.1",
		APIPort:    9381,
		LogLevel:   "info",
	}
}

// Load reads the YAML config file at path over the built-in defaults. An
// empty path returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseFlags parses command line arguments, loads the optional config
// file, and returns a Config. Explicitly set flags win over file values.
func ParseFlags() *Config {
	defaults := defaultConfig()

	configPath := flag.String("config", "", "Path to a YAML config file")
	statsdAddr := flag.String("statsd-addr", defaults.StatsdAddr, "Address of the dogstatsd agent socket")
	apiHost := flag.String("api-host", defaults.APIHost, "Host to bind the HTTP API to")
	apiPort := flag.Int("api-port", defaults.APIPort, "Port for the HTTP API")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level (trace, debug, info, warn, error)")
	selfCheck := flag.Bool("selfcheck", false, "Verify the kernel subscription at startup with a transient TUN interface")
	showVersion := flag.Bool("version", false, "Show version information")

	flag.Parse()

	if *showVersion {
		fmt.Printf("linkwatchd version %s (commit: %s, built at: %s)\n",
			version.Version,
			version.CommitHash,
			version.BuildTime)
		os.Exit(0)
	}

	cfg, err := Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "statsd-addr":
			cfg.StatsdAddr = *statsdAddr
		case "api-host":
			cfg.APIHost = *apiHost
		case "api-port":
			cfg.APIPort = *apiPort
		case "log-level":
			cfg.LogLevel = *logLevel
		case "selfcheck":
			cfg.SelfCheck = *selfCheck
		}
	})

	return cfg
}

// String returns a string representation of the Config
func (c *Config) String() string {
	return fmt.Sprintf("StatsdAddr: %s, APIHost: %s, APIPort: %d, SelfCheck: %t, LogLevel: %s",
		c.StatsdAddr, c.APIHost, c.APIPort, c.SelfCheck, c.LogLevel)
}
