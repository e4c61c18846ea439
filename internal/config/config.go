package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration
type Config struct {
	HTTPAddr     string
	Data         DataConfig
	JWT          JWTConfig
	Admin        AdminConfig
	AgentVersion string
}

// DataConfig holds state persistence configuration
type DataConfig struct {
	Dir        string
	File       string
	DebounceMS int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	ExpireMinutes int
	Issuer        string
}

// AdminConfig holds the provisioned operator account checked by the static
// directory gate. Deployments fronted by a real directory leave these unset
// and plug in their own gate.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

// Debounce returns the flush coalescing window as a duration.
func (d DataConfig) Debounce() time.Duration {
	return time.Duration(d.DebounceMS) * time.Millisecond
}

// Path returns the full path of the state document.
func (d DataConfig) Path() string {
	return filepath.Join(d.Dir, d.File)
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Data: DataConfig{
			Dir:        getEnv("DATA_DIR", ".data"),
			File:       getEnv("DATA_FILE", "db.json"),
			DebounceMS: getEnvInt("DATA_FLUSH_DEBOUNCE_MS", 150),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			ExpireMinutes: getEnvInt("JWT_EXPIRE_MINUTES", 1440),
			Issuer:        getEnv("JWT_ISSUER", "go_lpp"),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		AgentVersion: getEnv("AGENT_VERSION", "0.2.0"),
	}

	// Validate required fields
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Admin.PasswordHash == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}
	if cfg.Data.DebounceMS < 0 {
		return nil, fmt.Errorf("DATA_FLUSH_DEBOUNCE_MS must be non-negative")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
