// Package config loads ytpull settings. Values are layered: built-in
// defaults, then the YAML config file, then .env files and YTPULL_*
// environment variables. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/ytpull/internal/utils"
	"gopkg.in/yaml.v3"
)

const envPrefix = "YTPULL_"

type S3 struct {
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Profile string `yaml:"profile"`
	Region  string `yaml:"region"`
}

type Config struct {
	Server            string            `yaml:"server"`
	OutputDir         string            `yaml:"output_dir"`
	Token             string            `yaml:"token"`
	UserAgent         string            `yaml:"user_agent"`
	SpoofUserAgent    bool              `yaml:"spoof_user_agent"`
	CORSMode          string            `yaml:"cors_mode"`
	Proxy             string            `yaml:"proxy"`
	ProxyUsername     string            `yaml:"proxy_username"`
	ProxyPassword     string            `yaml:"proxy_password"`
	Headers           map[string]string `yaml:"headers"`
	Timeout           time.Duration     `yaml:"timeout"`
	KATimeout         time.Duration     `yaml:"keep_alive_timeout"`
	PollInterval      time.Duration     `yaml:"poll_interval"`
	SettleDelay       time.Duration     `yaml:"settle_delay"`
	InfoCacheTTL      time.Duration     `yaml:"info_cache_ttl"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Workers           int               `yaml:"workers"`
	S3                S3                `yaml:"s3"`
	Debug             bool              `yaml:"debug"`
}

func Default() *Config {
	return &Config{
		Server:            "http://localhost:5000",
		OutputDir:         ".",
		SpoofUserAgent:    true,
		CORSMode:          string(utils.CORSOmitCredentials),
		Headers:           map[string]string{},
		Timeout:           utils.DefaultTimeout,
		KATimeout:         utils.DefaultKATimeout,
		PollInterval:      time.Second,
		SettleDelay:       2 * time.Second,
		InfoCacheTTL:      time.Hour,
		RequestsPerSecond: 5,
		Workers:           1,
	}
}

// DefaultPath is ~/.config/ytpull/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ytpull", "config.yaml")
}

// Load builds the configuration from defaults, the YAML file at path and
// the environment. An empty path reads DefaultPath when it exists; an
// explicit path must exist. envFiles default to ".env" in the working
// directory.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
			}
			log.Debug().Str("op", "config/load").Msgf("loaded config file %s", path)
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := godotenv.Load(envFiles...); err != nil {
		log.Debug().Str("op", "config/load").Msg("no .env file found, using environment variables")
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server = getEnv("SERVER", cfg.Server)
	cfg.OutputDir = getEnv("OUTPUT_DIR", cfg.OutputDir)
	cfg.Token = getEnv("TOKEN", cfg.Token)
	cfg.UserAgent = getEnv("USER_AGENT", cfg.UserAgent)
	cfg.SpoofUserAgent = getEnvBool("SPOOF_USER_AGENT", cfg.SpoofUserAgent)
	cfg.CORSMode = getEnv("CORS_MODE", cfg.CORSMode)
	cfg.Proxy = getEnv("PROXY", cfg.Proxy)
	cfg.ProxyUsername = getEnv("PROXY_USERNAME", cfg.ProxyUsername)
	cfg.ProxyPassword = getEnv("PROXY_PASSWORD", cfg.ProxyPassword)
	cfg.Timeout = getEnvDuration("TIMEOUT", cfg.Timeout)
	cfg.KATimeout = getEnvDuration("KEEP_ALIVE_TIMEOUT", cfg.KATimeout)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.SettleDelay = getEnvDuration("SETTLE_DELAY", cfg.SettleDelay)
	cfg.Workers = getEnvInt("WORKERS", cfg.Workers)
	cfg.S3.Bucket = getEnv("S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.Prefix = getEnv("S3_PREFIX", cfg.S3.Prefix)
	cfg.S3.Profile = getEnv("S3_PROFILE", cfg.S3.Profile)
	cfg.S3.Region = getEnv("S3_REGION", cfg.S3.Region)
	cfg.Debug = getEnvBool("DEBUG", cfg.Debug)
}

func (c *Config) Validate() error {
	if _, err := utils.ParseCORSMode(c.CORSMode); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	server, err := url.Parse(c.Server)
	if err != nil || (server.Scheme != "http" && server.Scheme != "https") || server.Host == "" {
		return fmt.Errorf("invalid server URL %q", c.Server)
	}
	return nil
}

// HTTPClientConfig converts the transport settings for utils.NewHTTPClient.
// Credentials embedded in the proxy URL are moved to the username and
// password fields.
func (c *Config) HTTPClientConfig() utils.HTTPClientConfig {
	mode, _ := utils.ParseCORSMode(c.CORSMode)
	proxyURL, username, password := c.Proxy, c.ProxyUsername, c.ProxyPassword
	if parsed, err := url.Parse(proxyURL); err == nil && parsed.User != nil && username == "" {
		username = parsed.User.Username()
		if p, set := parsed.User.Password(); set {
			password = p
		}
		parsed.User = nil
		proxyURL = parsed.String()
	}
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	return utils.HTTPClientConfig{
		Timeout:       c.Timeout,
		KATimeout:     c.KATimeout,
		ProxyURL:      proxyURL,
		ProxyUsername: username,
		ProxyPassword: password,
		UserAgent:     c.UserAgent,
		Headers:       headers,
		CORSMode:      mode,
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(envPrefix + key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
