// Package config loads settings for both binaries from a YAML file, an
// optional .env file and EAGLE_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/db"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendLocal  = "local"
	BackendRemote = "remote"

	envPrefix = "EAGLE_"
)

// Config struct for YAML configuration
type Config struct {
	Backend        string        `yaml:"BACKEND"`
	ServerURL      string        `yaml:"SERVER_URL"`
	GRPCAddr       string        `yaml:"GRPC_ADDR"`
	RequestTimeout time.Duration `yaml:"REQUEST_TIMEOUT"`
	LogLevel       string        `yaml:"LOG_LEVEL"`

	GRPCPort int `yaml:"GRPC_PORT"`
	HTTPPort int `yaml:"HTTP_PORT"`

	DBDriver   string `yaml:"DB_DRIVER"`
	DBPath     string `yaml:"DB_PATH"`
	DBHost     string `yaml:"DB_HOST"`
	DBPort     int    `yaml:"DB_PORT"`
	DBUser     string `yaml:"DB_USER"`
	DBPassword string `yaml:"DB_PASSWORD"`
	DBName     string `yaml:"DB_NAME"`
	DBSSLMode  string `yaml:"DB_SSLMODE"`
	DBRetries  uint64 `yaml:"DB_RETRIES"`
	Seed       bool   `yaml:"SEED"`

	// HashPasswords stores seeded passwords as argon2id hashes.
	HashPasswords bool `yaml:"HASH_PASSWORDS"`

	KafkaBrokers []string `yaml:"KAFKA_BROKERS"`
	Topic        string   `yaml:"TOPIC"`

	JWTSecret string        `yaml:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"TOKEN_TTL"`

	RedisAddr     string `yaml:"REDIS_ADDR"`
	RedisPassword string `yaml:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"REDIS_DB"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	dbPath := filepath.Join(".eagle", "eagle.db")
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".eagle", "eagle.db")
	}

	return &Config{
		Backend:        BackendLocal,
		ServerURL:      "http://localhost:8080",
		GRPCAddr:       "localhost:50051",
		RequestTimeout: 10 * time.Second,
		LogLevel:       "info",
		GRPCPort:       50051,
		HTTPPort:       8080,
		DBDriver:       db.DriverSQLite,
		DBPath:         dbPath,
		DBPort:         5432,
		DBSSLMode:      "disable",
		DBRetries:      5,
		Seed:           true,
		Topic:          "eagle.task-events",
		TokenTTL:       24 * time.Hour,
	}
}

// Load reads path over the defaults, then applies .env and EAGLE_*
// variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	// variables already set in the environment win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings shared by both binaries.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
	case BackendRemote:
		if c.ServerURL == "" {
			return fmt.Errorf("SERVER_URL is required for the remote backend")
		}
	default:
		return fmt.Errorf("unknown BACKEND %q (want %s or %s)", c.Backend, BackendLocal, BackendRemote)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// ValidateServer checks the settings the server cannot start without.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.GRPCPort <= 0 || c.HTTPPort <= 0 {
		return fmt.Errorf("GRPC_PORT and HTTP_PORT must be positive")
	}
	return nil
}

// DBConfig returns the database settings.
func (c *Config) DBConfig() *db.Config {
	return &db.Config{
		Driver:     c.DBDriver,
		Path:       c.DBPath,
		Host:       c.DBHost,
		Port:       c.DBPort,
		User:       c.DBUser,
		Password:   c.DBPassword,
		DBName:     c.DBName,
		SSLMode:    c.DBSSLMode,
		MaxRetries: c.DBRetries,
	}
}

// DBOptions returns the repository options implied by the settings.
func (c *Config) DBOptions() []db.Option {
	var opts []db.Option
	if c.HashPasswords {
		opts = append(opts, db.WithArgon2Passwords())
	}
	return opts
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BACKEND":        &c.Backend,
		"SERVER_URL":     &c.ServerURL,
		"GRPC_ADDR":      &c.GRPCAddr,
		"LOG_LEVEL":      &c.LogLevel,
		"DB_DRIVER":      &c.DBDriver,
		"DB_PATH":        &c.DBPath,
		"DB_HOST":        &c.DBHost,
		"DB_USER":        &c.DBUser,
		"DB_PASSWORD":    &c.DBPassword,
		"DB_NAME":        &c.DBName,
		"DB_SSLMODE":     &c.DBSSLMode,
		"TOPIC":          &c.Topic,
		"JWT_SECRET":     &c.JWTSecret,
		"REDIS_ADDR":     &c.RedisAddr,
		"REDIS_PASSWORD": &c.RedisPassword,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"GRPC_PORT": &c.GRPCPort,
		"HTTP_PORT": &c.HTTPPort,
		"DB_PORT":   &c.DBPort,
		"REDIS_DB":  &c.RedisDB,
	}
	for key, dst := range ints {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT": &c.RequestTimeout,
		"TOKEN_TTL":       &c.TokenTTL,
	}
	for key, dst := range durations {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
	}

	if v, ok := lookup(envPrefix + "DB_RETRIES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sDB_RETRIES: %w", envPrefix, err)
		}
		c.DBRetries = n
	}
	bools := map[string]*bool{
		"SEED":           &c.Seed,
		"HASH_PASSWORDS": &c.HashPasswords,
	}
	for key, dst := range bools {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
			}
			*dst = b
		}
	}
	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		c.KafkaBrokers = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
