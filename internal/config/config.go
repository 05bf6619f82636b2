package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Transports for the MCP server.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all environment-based configuration for misli serve.
type Config struct {
	// Directory of note files to serve. Required.
	LibraryDir string `env:"MISLI_DIR"`

	// Note file extension, including the dot.
	Extension string `env:"MISLI_EXTENSION" envDefault:".misl"`

	// Path of the summary cache database. Defaults to ~/.misli/state.db.
	StatePath string `env:"MISLI_STATE_PATH"`

	// DisableCache skips the summary cache entirely.
	DisableCache bool `env:"MISLI_DISABLE_CACHE" envDefault:"false"`

	// Watch keeps the index fresh with filesystem notifications.
	Watch bool `env:"MISLI_WATCH" envDefault:"true"`

	// IndexWorkers bounds concurrent parsing. 0 means GOMAXPROCS.
	IndexWorkers int `env:"MISLI_INDEX_WORKERS" envDefault:"0"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// MCP server settings
	Transport  string `env:"MCP_TRANSPORT" envDefault:"stdio"`
	ListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:":8090"`
	AuthUsers  string `env:"MCP_AUTH_USERS"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Extension != "" && !strings.HasPrefix(cfg.Extension, ".") {
		cfg.Extension = "." + cfg.Extension
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	absDir, err := filepath.Abs(cfg.LibraryDir)
	if err != nil {
		return nil, fmt.Errorf("resolving library dir to absolute path: %w", err)
	}
	cfg.LibraryDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.LibraryDir == "" {
		return fmt.Errorf("MISLI_DIR is required")
	}

	if c.Extension == "" || c.Extension == "." {
		return fmt.Errorf("MISLI_EXTENSION must not be empty")
	}

	if c.IndexWorkers < 0 {
		return fmt.Errorf("MISLI_INDEX_WORKERS must not be negative")
	}

	switch c.Transport {
	case TransportStdio:
		if c.AuthUsers != "" {
			return fmt.Errorf("MCP_AUTH_USERS only applies to the http transport")
		}
	case TransportHTTP:
		if c.ListenAddr == "" {
			return fmt.Errorf("MCP_LISTEN_ADDR is required for the http transport")
		}
	default:
		return fmt.Errorf("MCP_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Transport)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseAuthUsers parses the MCP_AUTH_USERS string into a username ->
// bcrypt hash map. Format: "user1:hash1,user2:hash2".
func (c *Config) ParseAuthUsers() (map[string]string, error) {
	users := make(map[string]string)
	if c.AuthUsers == "" {
		return users, nil
	}

	for _, pair := range strings.Split(c.AuthUsers, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		idx := strings.Index(pair, ":")
		if idx < 0 {
			return nil, fmt.Errorf("invalid user entry (missing ':')")
		}

		username := pair[:idx]

		hash := pair[idx+1:]
		if username == "" || hash == "" {
			return nil, fmt.Errorf("empty username or hash in entry %d", len(users)+1)
		}

		if !strings.HasPrefix(hash, "$2") {
			return nil, fmt.Errorf("hash for %q is not a bcrypt hash (run misli hash-password)", username)
		}

		if _, dup := users[username]; dup {
			return nil, fmt.Errorf("duplicate username %q in MCP_AUTH_USERS", username)
		}

		users[username] = hash
	}

	return users, nil
}
