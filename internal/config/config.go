package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Config holds all configuration for the service
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Aptos     AptosConfig
	Executor  ExecutorConfig
	Protocols ProtocolConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// DatabaseConfig holds PostgreSQL configuration for the run journal.
// The journal is disabled when Host is empty.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Enabled reports whether a database was configured
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// AptosConfig holds chain access configuration
type AptosConfig struct {
	RPCEndpoint    string        // REST API base, e.g. https://fullnode.mainnet.aptoslabs.com/v1
	RequestTimeout time.Duration // per HTTP request
	ExpirationTTL  time.Duration // transaction expiration window
	ProxyCheckURL  string        // fetched through a wallet proxy to validate it
}

// ExecutorConfig holds scheduling defaults
type ExecutorConfig struct {
	InterWalletDelay      time.Duration
	DefaultTaskDelay      time.Duration // used in test mode or when no result was produced
	MaxWorkers            int
	DefaultReceiptTimeout time.Duration
	RetryInterval         time.Duration
	ReceiptPollInterval   time.Duration
	ReceiptGraceWait      time.Duration
	DetachedStopWait      time.Duration // bound on waiting for a stopped detached run's in-flight call
}

// ProtocolConfig holds on-chain module addresses used by the protocol modules
type ProtocolConfig struct {
	LiquidswapScripts string // <addr>::scripts_v2
	LiquidswapRouter  string // <addr>::router_v2
	LiquidswapCurve   string // curve type argument
	LiquidswapLPCoin  string // <addr>::lp_coin::LP
	AriesController   string // <addr>::controller
	AriesProfile      string
}

// LoadConfig loads configuration from environment variables, reading a .env file first if present
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "aptoswarm"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Aptos: AptosConfig{
			RPCEndpoint:    getEnv("APTOS_RPC_ENDPOINT", "https://fullnode.mainnet.aptoslabs.com/v1"),
			RequestTimeout: getEnvDuration("APTOS_REQUEST_TIMEOUT", 30*time.Second),
			ExpirationTTL:  getEnvDuration("APTOS_TXN_EXPIRATION", 10*time.Minute),
			ProxyCheckURL:  getEnv("PROXY_CHECK_URL", "https://api.ipify.org"),
		},
		Executor: ExecutorConfig{
			InterWalletDelay:      getEnvDuration("INTER_WALLET_DELAY", 10*time.Second),
			DefaultTaskDelay:      getEnvDuration("DEFAULT_TASK_DELAY", time.Second),
			MaxWorkers:            getEnvInt("MAX_WORKERS", 5),
			DefaultReceiptTimeout: getEnvDuration("DEFAULT_RECEIPT_TIMEOUT", 120*time.Second),
			RetryInterval:         getEnvDuration("RETRY_INTERVAL", time.Second),
			ReceiptPollInterval:   getEnvDuration("RECEIPT_POLL_INTERVAL", time.Second),
			ReceiptGraceWait:      getEnvDuration("RECEIPT_GRACE_WAIT", 5*time.Second),
			DetachedStopWait:      getEnvDuration("DETACHED_STOP_WAIT", 10*time.Second),
		},
		Protocols: DefaultProtocols(),
	}

	loadProtocolOverrides(&cfg.Protocols)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultProtocols returns mainnet module addresses
func DefaultProtocols() ProtocolConfig {
	const liquidswap = "0x190d44266241744264b964a37b8f09863167a12d3e70cda39376cfb4e3561e12"
	const aries = "0x9770fa9c725cbd97eb50b2be5f7416efdfd1f1554beb0750d4dae4c64e860da3"

	return ProtocolConfig{
		LiquidswapScripts: liquidswap + "::scripts_v2",
		LiquidswapRouter:  liquidswap + "::router_v2",
		LiquidswapCurve:   liquidswap + "::curves::Uncorrelated",
		LiquidswapLPCoin:  "0x05a97986a9d031c4567e15b797be516910cfcb4156312482efc6a19c0a30c948::lp_coin::LP",
		AriesController:   aries + "::controller",
		AriesProfile:      "Main account",
	}
}

// loadProtocolOverrides replaces protocol addresses set in the environment
func loadProtocolOverrides(p *ProtocolConfig) {
	p.LiquidswapScripts = getEnv("LIQUIDSWAP_SCRIPTS", p.LiquidswapScripts)
	p.LiquidswapRouter = getEnv("LIQUIDSWAP_ROUTER", p.LiquidswapRouter)
	p.LiquidswapCurve = getEnv("LIQUIDSWAP_CURVE", p.LiquidswapCurve)
	p.LiquidswapLPCoin = getEnv("LIQUIDSWAP_LP_COIN", p.LiquidswapLPCoin)
	p.AriesController = getEnv("ARIES_CONTROLLER", p.AriesController)
	p.AriesProfile = getEnv("ARIES_PROFILE", p.AriesProfile)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var err error

	if c.Server.Port <= 0 {
		err = multierr.Append(err, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}

	if !strings.HasPrefix(c.Aptos.RPCEndpoint, "http") {
		err = multierr.Append(err, fmt.Errorf("aptos RPC endpoint must be an http(s) URL: %q", c.Aptos.RPCEndpoint))
	}

	if c.Executor.MaxWorkers < 1 {
		err = multierr.Append(err, fmt.Errorf("max workers must be positive: %d", c.Executor.MaxWorkers))
	}

	if c.Executor.DefaultReceiptTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("default receipt timeout must be positive"))
	}

	if c.Executor.ReceiptPollInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("receipt poll interval must be positive"))
	}

	if c.Executor.InterWalletDelay < 0 || c.Executor.DefaultTaskDelay < 0 || c.Executor.RetryInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("delays must not be negative"))
	}

	return err
}

// Helper functions

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

// getEnvDuration accepts Go durations ("1500ms") or plain seconds ("10")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
