// Package feed follows the chain head and turns new blocks into block
// contexts for detection.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// HeadSource is the node access the feed needs.
type HeadSource interface {
	SupportsSubscriptions() bool
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// BlockFeedConfig configures a BlockFeed.
type BlockFeedConfig struct {
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	Bus            domain.SignalBus // optional; heads are published to ch:block
	Logger         *slog.Logger
}

// BlockFeed observes new heads, updates the tracker and emits the current
// block context. Only the newest context is kept when the reader lags.
type BlockFeed struct {
	src     HeadSource
	tracker *domain.BlockTracker
	cfg     BlockFeedConfig
	out     chan domain.BlockContext
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewBlockFeed creates a feed over src.
func NewBlockFeed(src HeadSource, tracker *domain.BlockTracker, cfg BlockFeedConfig) *BlockFeed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	return &BlockFeed{
		src:     src,
		tracker: tracker,
		cfg:     cfg,
		out:     make(chan domain.BlockContext, 1),
		logger:  cfg.Logger.With(slog.String("component", "block_feed")),
		done:    make(chan struct{}),
	}
}

// Blocks returns the channel of block contexts.
func (f *BlockFeed) Blocks() <-chan domain.BlockContext {
	return f.out
}

// Run follows the head until ctx is cancelled or Close is called. Websocket
// endpoints are subscribed to and resubscribed after a delay on failure;
// HTTP endpoints are polled.
func (f *BlockFeed) Run(ctx context.Context) error {
	if !f.src.SupportsSubscriptions() {
		f.logger.Info("block feed polling", slog.Duration("interval", f.cfg.PollInterval))
		return f.poll(ctx)
	}
	for {
		err := f.subscribe(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		f.logger.Warn("head subscription lost, resubscribing", slog.String("error", errString(err)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

func (f *BlockFeed) subscribe(ctx context.Context) error {
	heads := make(chan *types.Header, 16)
	sub, err := f.src.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	f.logger.Info("subscribed to new heads")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case err := <-sub.Err():
			return err
		case h := <-heads:
			if h != nil && h.Number != nil {
				f.emit(ctx, h.Number.Uint64())
			}
		}
	}
}

func (f *BlockFeed) poll(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()
	var last uint64
	for {
		n, err := f.src.BlockNumber(ctx)
		if err != nil {
			f.logger.Warn("block number poll failed", slog.String("error", err.Error()))
		} else if n > last {
			last = n
			f.emit(ctx, n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-ticker.C:
		}
	}
}

type blockEvent struct {
	Block uint64 `json:"block"`
	Stale bool   `json:"stale"`
	At    string `json:"at"`
}

func (f *BlockFeed) emit(ctx context.Context, number uint64) {
	f.tracker.Observe(number)
	bc := f.tracker.Snapshot()

	select {
	case f.out <- bc:
	default:
		// Reader is behind: replace the pending context with the newer one.
		select {
		case <-f.out:
		default:
		}
		select {
		case f.out <- bc:
		default:
		}
	}

	if f.cfg.Bus != nil {
		payload, _ := json.Marshal(blockEvent{Block: bc.Number, Stale: bc.Stale, At: time.Now().UTC().Format(time.RFC3339Nano)})
		if err := f.cfg.Bus.Publish(ctx, domain.ChannelBlock, payload); err != nil {
			f.logger.Debug("publish block failed", slog.String("error", err.Error()))
		}
	}
}

// Close stops the feed.
func (f *BlockFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func errString(err error) string {
	if err == nil {
		return "subscription closed"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return err.Error()
}
