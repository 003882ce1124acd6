package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"weeklytotals/internal/core"
)

const (
	keyDBPath           = "sqlite_db_path"
	keyWeeklyBudget     = "weekly_budget"
	keyRolloverInterval = "rollover_interval"
	keyAMQPURL          = "amqp_url"
	keyAMQPExchange     = "amqp_exchange"
	keyAMQPQueue        = "amqp_queue"
	keyCacheSize        = "cache_size"
	keyCacheTTL         = "cache_ttl"
	keyLogLevel         = "log_level"
	keyLogFormat        = "log_format"
)

const (
	defaultCacheSize        = 128
	defaultCacheTTL         = 5 * time.Minute
	defaultRolloverInterval = time.Hour
)

type Config struct {
	// Database
	SQLiteDBPath string

	// Rollover
	WeeklyBudget     decimal.Decimal
	RolloverInterval time.Duration

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Aggregator cache
	CacheSize int
	CacheTTL  time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	budgetInput string
}

// Load reads configuration from the environment and, when configFile is not
// empty, from that file. Environment variables win over the file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault(keyDBPath, "./data/weeklytotals.db")
	v.SetDefault(keyWeeklyBudget, "0")
	v.SetDefault(keyRolloverInterval, defaultRolloverInterval.String())
	v.SetDefault(keyAMQPURL, "")
	v.SetDefault(keyAMQPExchange, "weeklytotals")
	v.SetDefault(keyAMQPQueue, "ledger_changes")
	v.SetDefault(keyCacheSize, strconv.Itoa(defaultCacheSize))
	v.SetDefault(keyCacheTTL, defaultCacheTTL.String())
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		SQLiteDBPath:     v.GetString(keyDBPath),
		RolloverInterval: getDuration(v, keyRolloverInterval, defaultRolloverInterval),
		AMQPURL:          v.GetString(keyAMQPURL),
		AMQPExchange:     v.GetString(keyAMQPExchange),
		AMQPQueue:        v.GetString(keyAMQPQueue),
		CacheSize:        getInt(v, keyCacheSize, defaultCacheSize),
		CacheTTL:         getDuration(v, keyCacheTTL, defaultCacheTTL),
		LogLevel:         v.GetString(keyLogLevel),
		LogFormat:        v.GetString(keyLogFormat),
	}

	cfg.budgetInput = v.GetString(keyWeeklyBudget)
	if budget, err := core.ParseAmount(cfg.budgetInput); err == nil {
		cfg.WeeklyBudget = budget
		cfg.budgetInput = ""
	}

	return cfg, nil
}

// AMQPEnabled reports whether change events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.budgetInput != "" {
		errors = append(errors, fmt.Sprintf("invalid weekly budget '%s': must be an amount", c.budgetInput))
	} else if c.WeeklyBudget.IsNegative() {
		errors = append(errors, fmt.Sprintf("invalid weekly budget %s: must not be negative", c.WeeklyBudget))
	}

	if c.RolloverInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at least 1 minute", c.RolloverInterval))
	} else if c.RolloverInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at most 24 hours", c.RolloverInterval))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CacheSize < 1 || c.CacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be between 1 and 100000", c.CacheSize))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getInt(v *viper.Viper, key string, defaultValue int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil {
		return i
	}
	return defaultValue
}

func getDuration(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key))); err == nil {
		return d
	}
	return defaultValue
}
