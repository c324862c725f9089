// Package config defines startup configuration for the limit-up agent.
// Config is loaded from a YAML file (default: configs/agent.yaml) with
// sensitive fields overridable via AGENT_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Trading TradingConfig `mapstructure:"trading"`
	Market  MarketConfig  `mapstructure:"market"`
	Bus     BusConfig     `mapstructure:"bus"`
	Logging LoggingConfig `mapstructure:"logging"`
	Store   StoreConfig   `mapstructure:"store"`
	Console ConsoleConfig `mapstructure:"console"`

	WhitelistPath      string `mapstructure:"whitelist_path"`
	ClosedLoopLogPath  string `mapstructure:"closed_loop_log_path"`
}

// TradingConfig holds the broker session parameters from spec.md §6
// ("trading.{sWtfs, sKey, sKhh, sPwd, sNode}") plus the FIX order-entry
// session's connect/compID fields.
type TradingConfig struct {
	Wtfs string `mapstructure:"s_wtfs"` // 委托方式
	Key  string `mapstructure:"s_key"`
	Khh  string `mapstructure:"s_khh"` // 客户号
	Pwd  string `mapstructure:"s_pwd"`
	Node string `mapstructure:"s_node"`

	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	SenderCompID  string `mapstructure:"sender_comp_id"`
	TargetCompID  string `mapstructure:"target_comp_id"`
	HeartBtIntSec int    `mapstructure:"heartbeat_sec"`
}

// MarketConfig holds the vendor feed session parameters from spec.md §6
// ("market.{host, port, user, password}") plus the FIX market-data
// session's connect/compID fields.
type MarketConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	SenderCompID  string `mapstructure:"sender_comp_id"`
	TargetCompID  string `mapstructure:"target_comp_id"`
	HeartBtIntSec int    `mapstructure:"heartbeat_sec"`
}

// BusConfig tunes the ring-buffer message bus (spec.md §4.1).
type BusConfig struct {
	CapacityPow2     int `mapstructure:"capacity_pow2"`      // ring holds 1<<CapacityPow2 slots
	SlotPayloadBytes int `mapstructure:"slot_payload_bytes"` // must be >= largest single record
	StatsIntervalSec int `mapstructure:"stats_interval_sec"` // cadence of the aggregated stats log line, spec.md §4.1 "every >= 2s"
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig sets where the sqlite side-channel archive lives (SPEC_FULL.md §4.12).
type StoreConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SqlitePath string `mapstructure:"sqlite_path"`
}

// ConsoleConfig toggles the operator REPL (SPEC_FULL.md §4.13).
type ConsoleConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	HistoryPath string `mapstructure:"history_path"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: AGENT_TRADING_S_PWD, AGENT_MARKET_PASSWORD.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("bus.capacity_pow2", 16)
	v.SetDefault("bus.slot_payload_bytes", 1024)
	v.SetDefault("bus.stats_interval_sec", 5)
	v.SetDefault("trading.heartbeat_sec", 30)
	v.SetDefault("market.heartbeat_sec", 30)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.sqlite_path", "agent.db")
	v.SetDefault("console.enabled", false)
	v.SetDefault("console.history_path", "/tmp/agent_console_history")
	v.SetDefault("whitelist_path", "white_list.json")
	v.SetDefault("closed_loop_log_path", "time_spend.log")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields are present. Startup-fatal per spec.md §7
// ("Configuration error ... fatal at startup").
func (c *Config) Validate() error {
	if c.Trading.Khh == "" {
		return fmt.Errorf("trading.s_khh is required")
	}
	if c.Trading.Pwd == "" {
		return fmt.Errorf("trading.s_pwd is required")
	}
	if c.Market.Host == "" {
		return fmt.Errorf("market.host is required")
	}
	if c.Bus.CapacityPow2 <= 0 || c.Bus.CapacityPow2 > 24 {
		return fmt.Errorf("bus.capacity_pow2 out of range: %d", c.Bus.CapacityPow2)
	}
	if c.Bus.SlotPayloadBytes < 64 {
		return fmt.Errorf("bus.slot_payload_bytes too small: %d", c.Bus.SlotPayloadBytes)
	}
	if c.Bus.StatsIntervalSec < 2 {
		return fmt.Errorf("bus.stats_interval_sec must be >= 2: %d", c.Bus.StatsIntervalSec)
	}
	return nil
}
