// Package state owns the in-memory watch-list snapshot. Every reader and
// writer (command handlers, the poll engine) goes through Manager, which
// serializes access behind one mutex and persists after each mutation.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"mandarake-watch/pkg/watch"

	"github.com/google/uuid"
)

// ErrItemNotFound indicates the query matched no item in the user's list.
var ErrItemNotFound = errors.New("item not found")

// Persister is the snapshot load/save contract the manager relies on.
type Persister interface {
	Load(ctx context.Context) *watch.Snapshot
	Save(ctx context.Context, snap *watch.Snapshot) error
}

// Target is one eligible unit of work for a poll tick: an item copy plus
// its owning chat.
type Target struct {
	ChatID string
	Item   watch.WatchedItem
}

// Manager guards the snapshot. All methods are safe for concurrent use.
type Manager struct {
	store  Persister
	logger *slog.Logger
	mu     sync.Mutex
	snap   *watch.Snapshot
}

// New loads the persisted snapshot and returns a manager owning it.
func New(ctx context.Context, store Persister, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		snap:   store.Load(ctx),
	}
}

// ensureUser returns the user record for chatID, creating it lazily.
// Caller must hold the lock.
func (m *Manager) ensureUser(chatID string) *watch.UserRecord {
	user, ok := m.snap.Users[chatID]
	if !ok {
		user = &watch.UserRecord{Enabled: true}
		m.snap.Users[chatID] = user
	}
	return user
}

// findItem locates an item by ID, then by case-insensitive name.
// Caller must hold the lock.
func findItem(user *watch.UserRecord, query string) *watch.WatchedItem {
	for _, it := range user.Items {
		if it.ID == query {
			return it
		}
	}
	for _, it := range user.Items {
		if strings.EqualFold(it.Name, query) {
			return it
		}
	}
	return nil
}

// ValidateURL checks that a watch URL is well-formed http(s).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("not an http(s) url: %q", rawURL)
	}
	return nil
}

// AddItem creates a new enabled item at the end of the user's list.
func (m *Manager) AddItem(ctx context.Context, chatID, name, rawURL string) (watch.WatchedItem, error) {
	if err := ValidateURL(rawURL); err != nil {
		return watch.WatchedItem{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.ensureUser(chatID)
	item := &watch.WatchedItem{
		ID:         uuid.NewString(),
		Name:       name,
		URL:        rawURL,
		Enabled:    true,
		LastStatus: watch.StatusUnknown,
	}
	user.Items = append(user.Items, item)

	if err := m.store.Save(ctx, m.snap); err != nil {
		return watch.WatchedItem{}, fmt.Errorf("persist after add: %w", err)
	}
	m.logger.Info("Watch item added", "chat_id", chatID, "item_id", item.ID, "name", name, "url", rawURL)
	return *item, nil
}

// RemoveItem deletes an item by ID or name and returns the removed copy.
func (m *Manager) RemoveItem(ctx context.Context, chatID, query string) (watch.WatchedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.ensureUser(chatID)
	for i, it := range user.Items {
		if it.ID == query || strings.EqualFold(it.Name, query) {
			removed := *it
			user.Items = append(user.Items[:i], user.Items[i+1:]...)
			if err := m.store.Save(ctx, m.snap); err != nil {
				return watch.WatchedItem{}, fmt.Errorf("persist after remove: %w", err)
			}
			m.logger.Info("Watch item removed", "chat_id", chatID, "item_id", removed.ID, "name", removed.Name)
			return removed, nil
		}
	}
	return watch.WatchedItem{}, ErrItemNotFound
}

// EnableAll turns the user's master switch and every item back on.
func (m *Manager) EnableAll(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.ensureUser(chatID)
	user.Enabled = true
	for _, it := range user.Items {
		it.Enabled = true
	}
	if err := m.store.Save(ctx, m.snap); err != nil {
		return fmt.Errorf("persist after enable: %w", err)
	}
	return nil
}

// DisableAll turns the user's master switch off. Per-item flags are kept so
// EnableAll restores the previous shape only via the explicit all-on reset.
func (m *Manager) DisableAll(ctx context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.ensureUser(chatID)
	user.Enabled = false
	if err := m.store.Save(ctx, m.snap); err != nil {
		return fmt.Errorf("persist after disable: %w", err)
	}
	return nil
}

// SetItemEnabled flips a single item's flag, located by ID or name.
func (m *Manager) SetItemEnabled(ctx context.Context, chatID, query string, enabled bool) (watch.WatchedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.ensureUser(chatID)
	item := findItem(user, query)
	if item == nil {
		return watch.WatchedItem{}, ErrItemNotFound
	}
	item.Enabled = enabled
	if err := m.store.Save(ctx, m.snap); err != nil {
		return watch.WatchedItem{}, fmt.Errorf("persist after toggle: %w", err)
	}
	return *item, nil
}

// Items returns copies of the user's items in display order.
func (m *Manager) Items(chatID string) []watch.WatchedItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.ensureUser(chatID)
	items := make([]watch.WatchedItem, 0, len(user.Items))
	for _, it := range user.Items {
		items = append(items, *it)
	}
	return items
}

// FindItem returns a copy of the item matching query by ID or name.
func (m *Manager) FindItem(chatID, query string) (watch.WatchedItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := m.ensureUser(chatID)
	if item := findItem(user, query); item != nil {
		return *item, true
	}
	return watch.WatchedItem{}, false
}

// EligibleItems returns copies of every enabled item of every enabled user,
// the work set for one poll tick.
func (m *Manager) EligibleItems() []Target {
	m.mu.Lock()
	defer m.mu.Unlock()

	var targets []Target
	for chatID, user := range m.snap.Users {
		if !user.Enabled {
			continue
		}
		for _, it := range user.Items {
			if !it.Enabled {
				continue
			}
			targets = append(targets, Target{ChatID: chatID, Item: *it})
		}
	}
	return targets
}

// ApplyCheck records the outcome of one availability check. The item is
// re-fetched by ID under the lock, so a removal that raced the check makes
// this a no-op instead of resurrecting a stale pointer. When statusKnown is
// false (the check failed) only the timestamp moves.
func (m *Manager) ApplyCheck(ctx context.Context, chatID, itemID string, status watch.Status, statusKnown bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.snap.Users[chatID]
	if !ok {
		return nil
	}
	var item *watch.WatchedItem
	for _, it := range user.Items {
		if it.ID == itemID {
			item = it
			break
		}
	}
	if item == nil {
		m.logger.Debug("Item vanished during check, dropping result", "chat_id", chatID, "item_id", itemID)
		return nil
	}

	if statusKnown {
		item.LastStatus = status
	}
	checked := at
	item.LastChecked = &checked

	if err := m.store.Save(ctx, m.snap); err != nil {
		return fmt.Errorf("persist after check: %w", err)
	}
	return nil
}
