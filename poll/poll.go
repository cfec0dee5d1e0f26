// Package poll drives availability checks and turns out-of-stock to
// in-stock transitions into alerts.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"mandarake-watch/pkg/watch"
	"mandarake-watch/state"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentChecks caps in-flight page fetches across the whole tick,
// not per user, to limit request pressure on the site.
const maxConcurrentChecks = 2

// Checker interface for fetching a product's stock state.
type Checker interface {
	Check(ctx context.Context, pageURL string) (*watch.StockResult, error)
}

// Notifier interface for delivering an alert to a chat.
type Notifier interface {
	Send(ctx context.Context, chatID, text string) error
}

// Registry is the slice of the state manager the engine uses.
type Registry interface {
	EligibleItems() []state.Target
	ApplyCheck(ctx context.Context, chatID, itemID string, status watch.Status, statusKnown bool, at time.Time) error
}

// Monitor runs poll ticks over the watch list.
type Monitor struct {
	checker      Checker
	notifier     Notifier
	registry     Registry
	logger       *slog.Logger
	checkTimeout time.Duration
	running      atomic.Bool
}

// New creates a new poll monitor. checkTimeout bounds every individual
// check so a stalled fetch cannot hold a concurrency slot forever.
func New(checker Checker, notifier Notifier, registry Registry, checkTimeout time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		checker:      checker,
		notifier:     notifier,
		registry:     registry,
		checkTimeout: checkTimeout,
		logger:       logger,
	}
}

// RunTick checks every eligible item once and returns after all checks have
// settled. A tick already in progress makes this call a no-op; overlapping
// firings are dropped, not queued.
func (m *Monitor) RunTick(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		m.logger.Info("Tick already in progress, dropping this firing")
		return
	}
	defer m.running.Store(false)

	targets := m.registry.EligibleItems()
	if len(targets) == 0 {
		m.logger.Debug("No eligible items, nothing to check")
		return
	}

	start := time.Now()
	m.logger.Info("Tick starting", "eligible_items", len(targets))

	var checked, failed, notified atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for _, target := range targets {
		g.Go(func() error {
			alerted, err := m.checkItem(gctx, target)
			if err != nil {
				// One item's failure never aborts the tick
				failed.Add(1)
				return nil
			}
			checked.Add(1)
			if alerted {
				notified.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; Wait only drains them

	m.logger.Info("Tick completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"checked", checked.Load(),
		"failed", failed.Load(),
		"notified", notified.Load())
}

// checkItem performs one unit of work: check, decide, persist. It reports
// whether an alert was delivered.
func (m *Monitor) checkItem(ctx context.Context, target state.Target) (bool, error) {
	item := target.Item

	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	res, err := m.checker.Check(checkCtx, item.URL)
	now := time.Now()

	if err != nil {
		m.logger.Warn("Item check failed",
			"chat_id", target.ChatID,
			"item_id", item.ID,
			"url", item.URL,
			"error", err)
		// Leave lastStatus alone; only record that we tried
		if applyErr := m.registry.ApplyCheck(ctx, target.ChatID, item.ID, "", false, now); applyErr != nil {
			m.logger.Error("Failed to persist check attempt", "item_id", item.ID, "error", applyErr)
		}
		return false, err
	}

	nowStatus := watch.StatusOut
	if res.IsInStock {
		nowStatus = watch.StatusIn
	}

	alerted := false
	if watch.ShouldNotify(item.LastStatus, nowStatus) {
		text := formatAlert(&item, res)
		if sendErr := m.notifier.Send(ctx, target.ChatID, text); sendErr != nil {
			// At-most-once: the status update below still happens
			m.logger.Warn("Failed to deliver alert",
				"chat_id", target.ChatID,
				"item_id", item.ID,
				"error", sendErr)
		} else {
			alerted = true
			m.logger.Info("Alert sent", "chat_id", target.ChatID, "item_id", item.ID, "name", item.Name)
		}
	}

	if err := m.registry.ApplyCheck(ctx, target.ChatID, item.ID, nowStatus, true, now); err != nil {
		m.logger.Error("Failed to persist check result", "item_id", item.ID, "error", err)
		return alerted, err
	}

	return alerted, nil
}

// formatAlert renders the in-stock alert message.
func formatAlert(item *watch.WatchedItem, res *watch.StockResult) string {
	var b strings.Builder
	b.WriteString("🔥 Item now IN STOCK:\n\n")
	name := res.ItemName
	if name == "" {
		name = item.Name
	}
	b.WriteString(name)
	b.WriteString("\n")
	b.WriteString(item.URL)
	b.WriteString("\n")
	if res.IsInMainInStock && res.ParentShopName != "" {
		fmt.Fprintf(&b, "Available in %s\n", res.ParentShopName)
	}
	if stores := res.AvailableStores(); len(stores) > 0 {
		b.WriteString("\nOther Store(s):\n")
		parts := make([]string, 0, len(stores))
		for _, s := range stores {
			price := s.Price
			if price == "" {
				price = "No price"
			}
			part := fmt.Sprintf("%s (%s)", s.Shop, price)
			if s.IsDefective {
				part += " (defective item)"
			}
			parts = append(parts, part)
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	return b.String()
}
