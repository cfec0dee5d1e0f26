package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"mandarake-watch/pkg/watch"
)

// memStore keeps the snapshot in memory and counts saves, standing in for
// the real storage layer.
type memStore struct {
	snap    *watch.Snapshot
	saves   int
	saveErr error
}

func (m *memStore) Load(_ context.Context) *watch.Snapshot {
	if m.snap == nil {
		return watch.NewSnapshot()
	}
	return m.snap
}

func (m *memStore) Save(_ context.Context, snap *watch.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.snap = snap
	return nil
}

func newTestManager(t *testing.T) (*Manager, *memStore) {
	t.Helper()
	store := &memStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(context.Background(), store, logger), store
}

func TestAddItem(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	item, err := m.AddItem(ctx, "100", "Gundam kit", "https://order.mandarake.co.jp/order/detailPage/item?itemCode=1")
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if item.ID == "" {
		t.Error("item should get a generated ID")
	}
	if item.LastStatus != watch.StatusUnknown {
		t.Errorf("new item LastStatus = %s, want unknown", item.LastStatus)
	}
	if !item.Enabled {
		t.Error("new item should be enabled")
	}
	if item.LastChecked != nil {
		t.Error("new item should have nil LastChecked")
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1 (persist on mutation)", store.saves)
	}
}

func TestAddItemRejectsBadURL(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	for _, bad := range []string{"not a url", "ftp://example.com/x", "example.com/item", ""} {
		if _, err := m.AddItem(ctx, "100", "x", bad); err == nil {
			t.Errorf("AddItem(%q) expected validation error", bad)
		}
	}
	if store.saves != 0 {
		t.Errorf("rejected adds must not persist, saves = %d", store.saves)
	}
	if len(m.Items("100")) != 0 {
		t.Error("rejected adds must not enter the watch list")
	}
}

func TestRemoveItemByIDAndName(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, _ := m.AddItem(ctx, "100", "First", "https://example.com/a")
	_, _ = m.AddItem(ctx, "100", "Second", "https://example.com/b")

	removed, err := m.RemoveItem(ctx, "100", a.ID)
	if err != nil {
		t.Fatalf("RemoveItem by ID error = %v", err)
	}
	if removed.Name != "First" {
		t.Errorf("removed %q, want First", removed.Name)
	}

	removed, err = m.RemoveItem(ctx, "100", "second") // case-insensitive name
	if err != nil {
		t.Fatalf("RemoveItem by name error = %v", err)
	}
	if removed.Name != "Second" {
		t.Errorf("removed %q, want Second", removed.Name)
	}

	if _, err := m.RemoveItem(ctx, "100", "gone"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("error = %v, want ErrItemNotFound", err)
	}
}

func TestItemsPreserveInsertionOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	names := []string{"Alpha", "Beta", "Gamma"}
	for _, n := range names {
		if _, err := m.AddItem(ctx, "100", n, "https://example.com/"+n); err != nil {
			t.Fatal(err)
		}
	}

	items := m.Items("100")
	if len(items) != 3 {
		t.Fatalf("Items() = %d, want 3", len(items))
	}
	for i, n := range names {
		if items[i].Name != n {
			t.Errorf("items[%d].Name = %q, want %q", i, items[i].Name, n)
		}
	}
}

func TestEnableDisable(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	item, _ := m.AddItem(ctx, "100", "Kit", "https://example.com/a")

	if err := m.DisableAll(ctx, "100"); err != nil {
		t.Fatal(err)
	}
	if got := m.EligibleItems(); len(got) != 0 {
		t.Errorf("disabled user should have no eligible items, got %d", len(got))
	}

	if err := m.EnableAll(ctx, "100"); err != nil {
		t.Fatal(err)
	}
	if got := m.EligibleItems(); len(got) != 1 {
		t.Errorf("eligible items = %d, want 1", len(got))
	}

	if _, err := m.SetItemEnabled(ctx, "100", item.ID, false); err != nil {
		t.Fatal(err)
	}
	if got := m.EligibleItems(); len(got) != 0 {
		t.Errorf("disabled item should not be eligible, got %d", len(got))
	}

	if _, err := m.SetItemEnabled(ctx, "100", "missing", true); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("error = %v, want ErrItemNotFound", err)
	}
}

func TestApplyCheck(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	item, _ := m.AddItem(ctx, "100", "Kit", "https://example.com/a")
	now := time.Now()

	if err := m.ApplyCheck(ctx, "100", item.ID, watch.StatusIn, true, now); err != nil {
		t.Fatalf("ApplyCheck() error = %v", err)
	}

	got, ok := m.FindItem("100", item.ID)
	if !ok {
		t.Fatal("item should still exist")
	}
	if got.LastStatus != watch.StatusIn {
		t.Errorf("LastStatus = %s, want in", got.LastStatus)
	}
	if got.LastChecked == nil || !got.LastChecked.Equal(now) {
		t.Errorf("LastChecked = %v, want %v", got.LastChecked, now)
	}
}

// A failed check only moves the timestamp.
func TestApplyCheckFailurePreservesStatus(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	item, _ := m.AddItem(ctx, "100", "Kit", "https://example.com/a")
	_ = m.ApplyCheck(ctx, "100", item.ID, watch.StatusOut, true, time.Now().Add(-time.Hour))

	now := time.Now()
	if err := m.ApplyCheck(ctx, "100", item.ID, "", false, now); err != nil {
		t.Fatal(err)
	}

	got, _ := m.FindItem("100", item.ID)
	if got.LastStatus != watch.StatusOut {
		t.Errorf("failed check changed LastStatus to %s", got.LastStatus)
	}
	if got.LastChecked == nil || !got.LastChecked.Equal(now) {
		t.Errorf("failed check should still update LastChecked, got %v", got.LastChecked)
	}
}

// A check result for an item removed mid-tick is dropped silently.
func TestApplyCheckVanishedItem(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	item, _ := m.AddItem(ctx, "100", "Kit", "https://example.com/a")
	if _, err := m.RemoveItem(ctx, "100", item.ID); err != nil {
		t.Fatal(err)
	}
	savesBefore := store.saves

	if err := m.ApplyCheck(ctx, "100", item.ID, watch.StatusIn, true, time.Now()); err != nil {
		t.Fatalf("ApplyCheck() on removed item error = %v", err)
	}
	if store.saves != savesBefore {
		t.Error("dropped result should not persist anything")
	}
}

func TestPersistFailureSurfaces(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	store.saveErr = errors.New("disk full")
	if _, err := m.AddItem(ctx, "100", "Kit", "https://example.com/a"); err == nil {
		t.Error("AddItem should surface persistence failure")
	}
}
