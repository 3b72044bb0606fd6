package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ListenAddr     string
	RPCURL         string
	TreasuryWallet string
	AdminWallet    string
	PgDSN          string
	AuditLog       string
	OracleAPIKey   string
	OracleBaseURL  string
	OracleModel    string
	MaxRetries     int
	RetryBackoff   time.Duration
	RPCTimeout     time.Duration
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("rpc", "https://rpc.overprotocol.com")
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("rpc-timeout", 10*time.Second)
	v.SetDefault("log-level", "info")
	v.SetDefault("admin-wallet", "0x8334966329b7f4b459633696A8CA59118253bC89")
	v.SetDefault("oracle-model", "gpt-4o-mini")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		ListenAddr:     v.GetString("listen"),
		RPCURL:         v.GetString("rpc"),
		TreasuryWallet: v.GetString("treasury-wallet"),
		AdminWallet:    v.GetString("admin-wallet"),
		PgDSN:          v.GetString("pg-dsn"),
		AuditLog:       v.GetString("audit-log"),
		OracleAPIKey:   v.GetString("oracle-api-key"),
		OracleBaseURL:  v.GetString("oracle-base-url"),
		OracleModel:    v.GetString("oracle-model"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		RPCTimeout:     v.GetDuration("rpc-timeout"),
		LogLevel:       v.GetString("log-level"),
	}

	if cfg.TreasuryWallet == "" {
		return Config{}, fmt.Errorf("treasury-wallet is required")
	}

	return cfg, nil
}
