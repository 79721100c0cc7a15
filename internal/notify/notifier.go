// Package notify fans operator alerts out to chat channels. Events can be
// filtered so operators only receive the ones they configured.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/alanyoungcy/ammarb/internal/domain"
)

// Event names accepted in notify.events.
const (
	EventBundleSubmitted = "bundle_submitted"
	EventBatchAborted    = "batch_aborted"
	EventDailyReport     = "daily_report"
	EventStartup         = "startup"
)

// Sender delivers one message to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify honours the event filter;
// NotifyAll bypasses it.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends to all senders if event passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends regardless of the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// BundleSubmitted announces a bundle accepted by the relay.
func (n *Notifier) BundleSubmitted(ctx context.Context, block uint64, opp domain.CrossedMarket, minerReward *big.Int, hashes []string) error {
	msg := fmt.Sprintf("block %d\ntoken %s\nbuy %s\nsell %s\nvolume %s ETH\nprofit %s ETH\nminer reward %s ETH\nbundles %s",
		block,
		opp.Token.Hex(),
		opp.BuyFrom.Address().Hex(),
		opp.SellTo.Address().Hex(),
		domain.FormatEther(opp.Volume),
		domain.FormatEther(opp.Profit),
		domain.FormatEther(minerReward),
		strings.Join(hashes, ", "),
	)
	return n.Notify(ctx, EventBundleSubmitted, "Bundle submitted", msg)
}

// BatchAborted announces a batch that failed in the relay round trip.
func (n *Notifier) BatchAborted(ctx context.Context, block uint64, cause error) error {
	return n.Notify(ctx, EventBatchAborted, "Batch aborted",
		fmt.Sprintf("block %d\n%v", block, cause))
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
