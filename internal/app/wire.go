package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/ammarb/internal/blob/s3"
	"github.com/alanyoungcy/ammarb/internal/cache/redis"
	"github.com/alanyoungcy/ammarb/internal/config"
	"github.com/alanyoungcy/ammarb/internal/domain"
	"github.com/alanyoungcy/ammarb/internal/notify"
	"github.com/alanyoungcy/ammarb/internal/server/handler"
	"github.com/alanyoungcy/ammarb/internal/service"
	"github.com/alanyoungcy/ammarb/internal/store/postgres"
)

// Dependencies bundles the infrastructure every mode may use. Postgres,
// Redis and S3 are optional; their fields stay nil when disabled.
type Dependencies struct {
	// Stores
	OpportunityStore *postgres.OpportunityStore
	BundleStore      *postgres.BundleStore
	AuditStore       domain.AuditStore

	// Redis
	LockManager  domain.LockManager
	RateLimiter  domain.RateLimiter
	SignalBus    domain.SignalBus
	ReserveCache domain.ReserveCache

	// Archive
	Archiver domain.Archiver

	Notifier *notify.Notifier
	History  *service.HistoryService

	// Health checks by dependency name.
	Pingers map[string]handler.Pinger
}

// pingFunc adapts a ping function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire connects the configured infrastructure and returns it with a cleanup
// function that releases it in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Pingers: make(map[string]handler.Pinger)}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.BundleStore = postgres.NewBundleStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = pgClient
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.ReserveCache = redis.NewReserveCache(redisClient, cfg.Redis.ReserveTTL.Duration)
		deps.Pingers["redis"] = redisClient
	}

	// --- S3 archive (needs the Postgres history to read from) ---
	if cfg.Archive.Enabled && deps.OpportunityStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.OpportunityStore,
			deps.BundleStore,
			deps.AuditStore,
		)
		deps.Pingers["s3"] = pingFunc(s3Client.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramBaseURL,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	hcfg := service.HistoryServiceConfig{Logger: logger}
	if deps.OpportunityStore != nil {
		hcfg.Opportunities = deps.OpportunityStore
		hcfg.Bundles = deps.BundleStore
		hcfg.Audit = deps.AuditStore
	}
	if deps.SignalBus != nil {
		hcfg.Bus = deps.SignalBus
	}
	deps.History = service.NewHistoryService(hcfg)

	return deps, cleanup, nil
}
