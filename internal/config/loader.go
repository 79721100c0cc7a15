package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over Defaults(), loads .env when present
// and applies environment overrides. An empty path or a missing file leaves
// the defaults in place. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides applies ARBOT_* variables. The bare legacy names are
// read first so the prefixed form wins.
func applyEnvOverrides(cfg *Config) {
	// Aliases.
	setStr(&cfg.Chain.RPCURL, "ETHEREUM_RPC_URL")
	setStr(&cfg.Wallet.PrivateKey, "PRIVATE_KEY")
	setStr(&cfg.Arbitrage.ExecutorAddress, "BUNDLE_EXECUTOR_ADDRESS")
	setStr(&cfg.Relay.SigningKey, "FLASHBOTS_RELAY_SIGNING_KEY")
	setInt(&cfg.Arbitrage.MinerRewardPct, "MINER_REWARD_PERCENTAGE")

	// Wallet
	setStr(&cfg.Wallet.PrivateKey, "ARBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "ARBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ARBOT_WALLET_KEY_PASSWORD")

	// Chain
	setStr(&cfg.Chain.RPCURL, "ARBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "ARBOT_CHAIN_CHAIN_ID")
	setDuration(&cfg.Chain.RPCTimeout, "ARBOT_CHAIN_RPC_TIMEOUT")
	setDuration(&cfg.Chain.PollInterval, "ARBOT_CHAIN_POLL_INTERVAL")

	// Relay
	setStr(&cfg.Relay.URL, "ARBOT_RELAY_URL")
	setStr(&cfg.Relay.SigningKey, "ARBOT_RELAY_SIGNING_KEY")
	setStr(&cfg.Relay.SigningKeyPath, "ARBOT_RELAY_SIGNING_KEY_PATH")
	setStr(&cfg.Relay.SigningKeyPassword, "ARBOT_RELAY_SIGNING_KEY_PASSWORD")
	setDuration(&cfg.Relay.Timeout, "ARBOT_RELAY_TIMEOUT")

	// Arbitrage
	setInt(&cfg.Arbitrage.MinerRewardPct, "ARBOT_ARBITRAGE_MINER_REWARD_PCT")
	setStr(&cfg.Arbitrage.Searcher, "ARBOT_ARBITRAGE_SEARCHER")
	setStr(&cfg.Arbitrage.BaseToken, "ARBOT_ARBITRAGE_BASE_TOKEN")
	setStr(&cfg.Arbitrage.ExecutorAddress, "ARBOT_ARBITRAGE_EXECUTOR_ADDRESS")
	setStringMap(&cfg.Arbitrage.Executors, "ARBOT_ARBITRAGE_EXECUTORS")
	setStringSlice(&cfg.Arbitrage.Factories, "ARBOT_ARBITRAGE_FACTORIES")
	setStringSlice(&cfg.Arbitrage.Blacklist, "ARBOT_ARBITRAGE_BLACKLIST")
	setStr(&cfg.Arbitrage.FlashQuery, "ARBOT_ARBITRAGE_FLASH_QUERY")
	setInt(&cfg.Arbitrage.BatchSize, "ARBOT_ARBITRAGE_BATCH_SIZE")
	setInt(&cfg.Arbitrage.BatchLimit, "ARBOT_ARBITRAGE_BATCH_LIMIT")
	setUint64(&cfg.Arbitrage.GasCeiling, "ARBOT_ARBITRAGE_GAS_CEILING")
	setDuration(&cfg.Arbitrage.EstimateTimeout, "ARBOT_ARBITRAGE_ESTIMATE_TIMEOUT")
	setDuration(&cfg.Arbitrage.DedupTTL, "ARBOT_ARBITRAGE_DEDUP_TTL")
	setInt(&cfg.Arbitrage.MaxBlockLag, "ARBOT_ARBITRAGE_MAX_BLOCK_LAG")
	setDuration(&cfg.Arbitrage.LockTTL, "ARBOT_ARBITRAGE_LOCK_TTL")
	setDuration(&cfg.Arbitrage.RefreshWait, "ARBOT_ARBITRAGE_REFRESH_WAIT")
	setDuration(&cfg.Arbitrage.IntentTimeout, "ARBOT_ARBITRAGE_INTENT_TIMEOUT")

	// Postgres
	setBool(&cfg.Postgres.Enabled, "ARBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "ARBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBOT_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "ARBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "ARBOT_REDIS_KEY_PREFIX")

	// S3
	setStr(&cfg.S3.Endpoint, "ARBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "ARBOT_S3_PREFIX")

	// Server
	setBool(&cfg.Server.Enabled, "ARBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBOT_SERVER_PORT")
	setInt(&cfg.Server.IntentPort, "ARBOT_SERVER_INTENT_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBOT_SERVER_RATE_LIMIT")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "ARBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBOT_NOTIFY_EVENTS")

	// Archive
	setBool(&cfg.Archive.Enabled, "ARBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "ARBOT_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "ARBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.ReportCron, "ARBOT_ARCHIVE_REPORT_CRON")

	setStr(&cfg.Mode, "ARBOT_MODE")
	setStr(&cfg.LogLevel, "ARBOT_LOG_LEVEL")
}

// Typed env helpers. Each mutates the target only when the variable is set,
// non-empty and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if parts := splitList(v); len(parts) > 0 {
			*dst = parts
		}
	}
}

// setStringMap reads "k1=v1,k2=v2" and merges it into dst.
func setStringMap(dst *map[string]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string)
	}
	for _, part := range splitList(v) {
		k, val, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		(*dst)[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
