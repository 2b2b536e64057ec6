package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envPrefix = "LLMBRIDGE_"

	DefaultSuppliersFile = "suppliers.yaml"
	DefaultMaxBodyBytes  = 32 << 20
)

// ServerConfig holds all gateway configuration read from the environment.
type ServerConfig struct {
	Host    string
	Port    int
	Verbose bool
	Debug   bool

	LogLevel  string
	LogFormat string
	LogOutput string

	SuppliersFile   string
	DefaultSupplier string
	MaxBodyBytes    int64
	UpstreamTimeout time.Duration
	TraceCacheSize  int
	// Tokenizer is a BPE encoding name, or "heuristic" for character counts.
	Tokenizer string
}

// DefaultFromEnv creates a ServerConfig with defaults from environment variables.
func DefaultFromEnv() *ServerConfig {
	return &ServerConfig{
		Host:            envOrDefault("HOST", "127.0.0.1"),
		Port:            envInt("PORT", 8000),
		Verbose:         envBool("VERBOSE"),
		Debug:           envBool("DEBUG"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "console"),
		LogOutput:       envRaw("LOG_OUTPUT", "stderr"),
		SuppliersFile:   envRaw("SUPPLIERS_FILE", DefaultSuppliersFile),
		DefaultSupplier: envRaw("DEFAULT_SUPPLIER", ""),
		MaxBodyBytes:    int64(envInt("MAX_BODY_BYTES", DefaultMaxBodyBytes)),
		UpstreamTimeout: envDuration("UPSTREAM_TIMEOUT", 10*time.Minute),
		TraceCacheSize:  envInt("TRACE_CACHE_SIZE", 256),
		Tokenizer:       envOrDefault("TOKENIZER", "o200k_base"),
	}
}

// LoadServerConfig loads the given .env files (".env" when none are named)
// and then reads the environment. Missing files are skipped; variables that
// are already set win over file values.
func LoadServerConfig(files ...string) (*ServerConfig, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return DefaultFromEnv(), nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

func envRaw(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return defaultVal
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(envPrefix + key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func envInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(envPrefix + key)))
	if err != nil {
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(envPrefix + key)))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
