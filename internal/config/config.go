// Package config defines the ammarb configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
)

// Config is the root configuration. Fields come from a TOML file over
// Defaults() and are then overridden by ARBOT_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Relay     RelayConfig     `toml:"relay"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Archive   ArchiveConfig   `toml:"archive"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the searcher signing key. PrivateKey wins over the
// encrypted file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the Ethereum node connection.
type ChainConfig struct {
	RPCURL       string   `toml:"rpc_url"`
	ChainID      int64    `toml:"chain_id"` // 0 asks the node
	RPCTimeout   duration `toml:"rpc_timeout"`
	PollInterval duration `toml:"poll_interval"`
}

// RelayConfig holds the bundle relay endpoint and its signing identity. An
// empty signing key makes the app generate a throwaway one.
type RelayConfig struct {
	URL                string   `toml:"url"`
	SigningKey         string   `toml:"signing_key"`
	SigningKeyPath     string   `toml:"signing_key_path"`
	SigningKeyPassword string   `toml:"signing_key_password"`
	Timeout            duration `toml:"timeout"`
}

// ArbitrageConfig holds detection and execution parameters.
type ArbitrageConfig struct {
	MinerRewardPct  int               `toml:"miner_reward_pct"`
	Searcher        string            `toml:"searcher"` // "step" or "ternary"
	BaseToken       string            `toml:"base_token"`
	ExecutorAddress string            `toml:"executor_address"` // used for every token without an entry in Executors
	Executors       map[string]string `toml:"executors"`        // token -> executor
	Factories       []string          `toml:"factories"`
	Blacklist       []string          `toml:"blacklist"`
	FlashQuery      string            `toml:"flash_query"`
	BatchSize       int               `toml:"batch_size"`
	BatchLimit      int               `toml:"batch_limit"`
	GasCeiling      uint64            `toml:"gas_ceiling"`
	EstimateTimeout duration          `toml:"estimate_timeout"`
	DedupTTL        duration          `toml:"dedup_ttl"`
	MaxBlockLag     int               `toml:"max_block_lag"`
	LockTTL         duration          `toml:"lock_ttl"`
	RefreshWait     duration          `toml:"refresh_wait"`
	IntentTimeout   duration          `toml:"intent_timeout"`
	Ternary         TernaryConfig     `toml:"ternary"`
}

// TernaryConfig bounds the ternary volume search. Amounts are decimal ETH.
type TernaryConfig struct {
	MinETH       string `toml:"min_eth"`
	MaxETH       string `toml:"max_eth"`
	ToleranceETH string `toml:"tolerance_eth"`
	MaxSteps     int    `toml:"max_steps"`
}

// PostgresConfig holds the history database connection. Disabled keeps
// history in logs only.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. KeyPrefix namespaces every
// key, including the refresh lock.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	KeyPrefix    string   `toml:"key_prefix"`
	ReserveTTL   duration `toml:"reserve_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ServerConfig holds HTTP and websocket listener parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	IntentPort  int      `toml:"intent_port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"` // per client per minute
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramBaseURL   string   `toml:"telegram_base_url"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig schedules the S3 archive and the daily report.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Cron          string   `toml:"cron"`
	RetentionDays int      `toml:"retention_days"`
	ReportCron    string   `toml:"report_cron"`
	JobTimeout    duration `toml:"job_timeout"`
}

// duration lets TOML and env values use strings like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Mainnet addresses used by Defaults.
const (
	WETHAddress             = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	FlashQueryAddress       = "0x5EF1009b9FCD4fec3094a5564047e190D72Bd511"
	UniswapFactoryAddress   = "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
	SushiswapFactoryAddress = "0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"
	CroFactoryAddress       = "0x9DEB29c9a4c7A88a3C0257393b7f3335338D9A9D"
	ZeusFactoryAddress      = "0xbdda21dd8da31d5bee0c9bb886c044ebb9b8906a"
	LuaFactoryAddress       = "0x0388c1e0f210abae597b7de712b9510c6c36c857"
	DefaultExecutorAddress  = "0xda0a57b710768ae17941a9fa33f8b720c8bd9ddd"
	DefaultRelayURL         = "https://relay.flashbots.net"
	defaultBlacklistedToken = "0xD75EA151a61d06868E31F8988D28DFE5E9df57B4"
)

// Defaults returns a Config with every optional value filled in.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:       "http://127.0.0.1:8545",
			RPCTimeout:   duration{10 * time.Second},
			PollInterval: duration{2 * time.Second},
		},
		Relay: RelayConfig{
			URL:     DefaultRelayURL,
			Timeout: duration{12 * time.Second},
		},
		Arbitrage: ArbitrageConfig{
			MinerRewardPct:  0,
			Searcher:        "step",
			BaseToken:       WETHAddress,
			ExecutorAddress: DefaultExecutorAddress,
			Executors:       map[string]string{},
			Factories: []string{
				UniswapFactoryAddress,
				SushiswapFactoryAddress,
				CroFactoryAddress,
				ZeusFactoryAddress,
				LuaFactoryAddress,
			},
			Blacklist:       []string{defaultBlacklistedToken},
			FlashQuery:      FlashQueryAddress,
			BatchSize:       1000,
			BatchLimit:      100,
			GasCeiling:      1_400_000,
			EstimateTimeout: duration{10 * time.Second},
			DedupTTL:        duration{2 * time.Minute},
			MaxBlockLag:     1,
			LockTTL:         duration{30 * time.Second},
			RefreshWait:     duration{5 * time.Second},
			IntentTimeout:   duration{15 * time.Second},
			Ternary: TernaryConfig{
				MinETH:       "0.01",
				MaxETH:       "100",
				ToleranceETH: "0.001",
				MaxSteps:     128,
			},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "ammarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "ammarb:",
			ReserveTTL:   duration{10 * time.Minute},
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ammarb-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			IntentPort:  8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			TelegramBaseURL: "https://api.telegram.org",
			Events:          []string{"bundle_submitted", "batch_aborted", "daily_report", "startup"},
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 * * *",
			RetentionDays: 30,
			ReportCron:    "0 9 * * *",
			JobTimeout:    duration{10 * time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Modes.
const (
	ModeSearcher = "searcher"
	ModeIngest   = "ingest"
	ModeFull     = "full"
	ModeServer   = "server"
)

var validModes = map[string]bool{
	ModeSearcher: true,
	ModeIngest:   true,
	ModeFull:     true,
	ModeServer:   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSearchers = map[string]bool{
	"step":    true,
	"ternary": true,
}

// NeedsSigner reports whether the mode builds and signs transactions.
func (c *Config) NeedsSigner() bool {
	return c.Mode != ModeServer
}

// Validate checks every section and returns one error listing all
// problems.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: searcher, ingest, full, server)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.NeedsSigner() {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: either private_key or encrypted_key_path must be set for mode %s", c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			add("wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Relay.SigningKeyPath != "" && c.Relay.SigningKeyPassword == "" {
			add("relay: signing_key_password is required when signing_key_path is set")
		}
	}

	if c.Chain.RPCURL == "" {
		add("chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID < 0 {
		add("chain: chain_id must not be negative")
	}
	if c.Chain.RPCTimeout.Duration <= 0 {
		add("chain: rpc_timeout must be > 0")
	}
	if c.Relay.URL == "" {
		add("relay: url must not be empty")
	}
	if c.Relay.Timeout.Duration <= 0 {
		add("relay: timeout must be > 0")
	}

	a := c.Arbitrage
	if a.MinerRewardPct < 0 || a.MinerRewardPct > 100 {
		add("arbitrage: miner_reward_pct must be 0-100, got %d", a.MinerRewardPct)
	}
	if !validSearchers[a.Searcher] {
		add("arbitrage: unknown searcher %q (valid: step, ternary)", a.Searcher)
	}
	checkAddr := func(field, v string) {
		if !common.IsHexAddress(v) {
			add("arbitrage: %s %q is not an address", field, v)
		}
	}
	checkAddr("base_token", a.BaseToken)
	checkAddr("flash_query", a.FlashQuery)
	if a.ExecutorAddress != "" {
		checkAddr("executor_address", a.ExecutorAddress)
	}
	for token, exec := range a.Executors {
		checkAddr("executors key", token)
		checkAddr("executors["+token+"]", exec)
	}
	if c.NeedsSigner() && a.ExecutorAddress == "" && len(a.Executors) == 0 {
		add("arbitrage: executor_address or executors must be set for mode %s", c.Mode)
	}
	if len(a.Factories) == 0 {
		add("arbitrage: factories must not be empty")
	}
	for _, f := range a.Factories {
		checkAddr("factory", f)
	}
	for _, t := range a.Blacklist {
		checkAddr("blacklist", t)
	}
	if a.BatchSize < 1 {
		add("arbitrage: batch_size must be >= 1")
	}
	if a.GasCeiling == 0 {
		add("arbitrage: gas_ceiling must be > 0")
	}
	if a.MaxBlockLag < 0 {
		add("arbitrage: max_block_lag must be >= 0")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			add("archive: requires postgres.enabled")
		}
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			add("archive: s3.endpoint and s3.bucket must be set")
		}
		if c.Archive.RetentionDays < 1 {
			add("archive: retention_days must be >= 1")
		}
		if _, err := cron.ParseStandard(c.Archive.Cron); err != nil {
			add("archive: invalid cron %q: %v", c.Archive.Cron, err)
		}
	}
	if c.Archive.ReportCron != "" {
		if _, err := cron.ParseStandard(c.Archive.ReportCron); err != nil {
			add("archive: invalid report_cron %q: %v", c.Archive.ReportCron, err)
		}
	}

	if c.Server.Enabled || c.Mode == ModeServer {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.IntentPort < 0 || c.Server.IntentPort > 65535 {
			add("server: intent_port must be 0-65535, got %d", c.Server.IntentPort)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RedactedConfig returns a copy of cfg with secrets replaced by "***", for
// logging.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Relay.SigningKey)
	redact(&out.Relay.SigningKeyPassword)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	out.Arbitrage.Factories = append([]string(nil), cfg.Arbitrage.Factories...)
	out.Arbitrage.Blacklist = append([]string(nil), cfg.Arbitrage.Blacklist...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	if cfg.Arbitrage.Executors != nil {
		out.Arbitrage.Executors = make(map[string]string, len(cfg.Arbitrage.Executors))
		for k, v := range cfg.Arbitrage.Executors {
			out.Arbitrage.Executors[k] = v
		}
	}
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
