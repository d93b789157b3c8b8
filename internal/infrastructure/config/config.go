package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Blockchain  BlockchainConfig `mapstructure:"blockchain"`
	Security    SecurityConfig   `mapstructure:"security"`
	Workers     WorkerConfig     `mapstructure:"workers"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// BlockchainConfig contains node access and transaction pricing policy
type BlockchainConfig struct {
	RPCURL             string  `mapstructure:"rpc_url"`
	ChainID            int64   `mapstructure:"chain_id"`
	NativeSymbol       string  `mapstructure:"native_symbol"`
	MinConfirmations   int64   `mapstructure:"min_confirmations"`
	RequestTimeout     int     `mapstructure:"request_timeout"` // seconds
	NativeGasLimit     uint64  `mapstructure:"native_gas_limit"`
	ERC20GasLimit      uint64  `mapstructure:"erc20_gas_limit"`
	GasLimitMultiplier float64 `mapstructure:"gas_limit_multiplier"`
	GasPriceMultiplier float64 `mapstructure:"gas_price_multiplier"`
	DefaultGasPrice    int64   `mapstructure:"default_gas_price"` // wei
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// WorkerConfig contains sweep worker configuration
type WorkerConfig struct {
	SendInterval   int `mapstructure:"send_interval"`   // seconds
	UpdateInterval int `mapstructure:"update_interval"` // seconds
	BatchLimit     int `mapstructure:"batch_limit"`
	Concurrency    int `mapstructure:"concurrency"`
	RunTimeout     int `mapstructure:"run_timeout"` // seconds
	MaxAttempts    int `mapstructure:"max_attempts"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "vault_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 3600)
	viper.SetDefault("database.max_retries", 3)

	// Blockchain defaults
	viper.SetDefault("blockchain.chain_id", 1)
	viper.SetDefault("blockchain.native_symbol", "ETH")
	viper.SetDefault("blockchain.min_confirmations", 1)
	viper.SetDefault("blockchain.request_timeout", 15)
	viper.SetDefault("blockchain.native_gas_limit", 21000)
	viper.SetDefault("blockchain.erc20_gas_limit", 65000)
	viper.SetDefault("blockchain.gas_limit_multiplier", 1.1)
	viper.SetDefault("blockchain.gas_price_multiplier", 1.2)
	viper.SetDefault("blockchain.default_gas_price", 20000000000) // 20 gwei

	// Worker defaults
	viper.SetDefault("workers.send_interval", 30)
	viper.SetDefault("workers.update_interval", 30)
	viper.SetDefault("workers.batch_limit", 100)
	viper.SetDefault("workers.concurrency", 8)
	viper.SetDefault("workers.run_timeout", 120)
	viper.SetDefault("workers.max_attempts", 5)
}

func overrideFromEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		viper.Set("database.url", v)
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		viper.Set("blockchain.rpc_url", v)
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		viper.Set("blockchain.chain_id", v)
	}
	if v := os.Getenv("MIN_CONFIRMATIONS"); v != "" {
		viper.Set("blockchain.min_confirmations", v)
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		viper.Set("security.encryption_key", v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		viper.Set("log_level", v)
	}
	if v := os.Getenv("PORT"); v != "" {
		viper.Set("server.port", v)
	}
}

func validate(config *Config) error {
	if config.Blockchain.RPCURL == "" {
		return fmt.Errorf("blockchain.rpc_url is required")
	}
	if config.Blockchain.ChainID <= 0 {
		return fmt.Errorf("blockchain.chain_id must be positive")
	}
	if config.Security.EncryptionKey == "" {
		return fmt.Errorf("security.encryption_key is required")
	}
	if config.Blockchain.MinConfirmations < 0 {
		return fmt.Errorf("blockchain.min_confirmations cannot be negative")
	}
	if config.Workers.Concurrency <= 0 {
		return fmt.Errorf("workers.concurrency must be positive")
	}
	if config.Workers.MaxAttempts <= 0 {
		return fmt.Errorf("workers.max_attempts must be positive")
	}
	return nil
}
