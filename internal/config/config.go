package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process configuration read from the environment at start-up.
// Nothing here changes after Load returns.
type Config struct {
	// Chain
	RPCURL        string
	ChainID       uint64
	ChainName     string
	ChainCurrency string

	// Backend
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Wallet provider, one of the two
	WalletRPCURL     string
	WalletPrivateKey string

	// Transaction polling
	PollMaxAttempts  int
	PollInterval     time.Duration
	NotifyUnresolved bool

	// Gateway
	ListenAddr     string
	RedisURL       string
	TokenTTL       time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	// Logging
	LogFormat string
	LogLevel  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		RPCURL:           getEnv("RPC_URL", ""),
		ChainID:          uint64(getEnvInt("CHAIN_ID", 146)),
		ChainName:        getEnv("CHAIN_NAME", "Sonic"),
		ChainCurrency:    getEnv("CHAIN_CURRENCY", "S"),
		APIBaseURL:       strings.TrimRight(getEnv("API_BASE_URL", ""), "/"),
		HTTPTimeout:      getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		WalletRPCURL:     getEnv("WALLET_RPC_URL", ""),
		WalletPrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),
		PollMaxAttempts:  getEnvInt("POLL_MAX_ATTEMPTS", 30),
		PollInterval:     getEnvDuration("POLL_INTERVAL", time.Second),
		NotifyUnresolved: getEnvBool("NOTIFY_UNRESOLVED", false),
		ListenAddr:       getEnv("LISTEN_ADDR", ":9000"),
		RedisURL:         getEnv("REDIS_URL", ""),
		TokenTTL:         getEnvDuration("TOKEN_TTL", 12*time.Hour),
		RateLimitRPS:     getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 10),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL is not a valid URL: %w", err)
	}
	if c.WalletRPCURL != "" && c.WalletPrivateKey != "" {
		return fmt.Errorf("set only one of WALLET_RPC_URL and WALLET_PRIVATE_KEY")
	}
	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got: %d", c.PollMaxAttempts)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("POLL_INTERVAL must not be negative")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("CHAIN_ID must be set")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}

// getEnvDuration accepts Go durations ("1s") or plain milliseconds ("1000")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return d
}
