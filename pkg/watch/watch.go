// Package watch contains the core domain types for the Mandarake stock watch service.
package watch

import "time"

// Status is the last observed stock state of a watched item.
type Status string

const (
	StatusUnknown Status = "unknown" // never successfully checked
	StatusIn      Status = "in"
	StatusOut     Status = "out"
)

// ShouldNotify reports whether a status change warrants alerting the owner.
// Only an out -> in transition notifies; the first observation after creation
// establishes a baseline silently, and everything else is noise.
func ShouldNotify(last, now Status) bool {
	return last == StatusOut && now == StatusIn
}

// WatchedItem is a single product page a user wants stock alerts for.
type WatchedItem struct {
	LastChecked *time.Time `json:"last_checked"` // most recent check attempt, nil until first
	ID          string     `json:"id"`           // stable, unique within the owning user
	Name        string     `json:"name"`         // user-supplied display label
	URL         string     `json:"url"`          // product URL, immutable after creation
	LastStatus  Status     `json:"last_status"`  // starts unknown, never reset to unknown
	Enabled     bool       `json:"enabled"`      // excluded from polling when false
}

// UserRecord holds one chat's watch list. Items keep insertion order for
// display and are owned exclusively by this user.
type UserRecord struct {
	Items   []*WatchedItem `json:"items"`
	Enabled bool           `json:"enabled"` // master switch, skips the whole user when false
}

// Snapshot is the complete persisted state: all users plus a settings
// placeholder. It is always written whole so readers never observe a
// partial state.
type Snapshot struct {
	Users    map[string]*UserRecord `json:"users"`
	Settings map[string]string      `json:"settings"`
}

// NewSnapshot returns an empty but valid snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Users:    make(map[string]*UserRecord),
		Settings: make(map[string]string),
	}
}

// StoreListing describes the same item offered by another Mandarake store.
type StoreListing struct {
	Shop        string
	Price       string
	HasAdd      bool // store shows an add-to-cart button
	SoldOut     bool
	IsDefective bool
}

// StockResult is what a single availability check of a product page yields.
type StockResult struct {
	URL             string
	ItemName        string
	ParentShopName  string
	OtherStores     []StoreListing
	IsInStock       bool // main store or any other store can sell it
	IsInMainInStock bool // the page's own store has it in cart-able state
}

// AvailableStores returns the other-store listings that can actually be
// bought right now, de-duplicated by shop name (the page repeats stores
// across result sections).
func (r *StockResult) AvailableStores() []StoreListing {
	seen := make(map[string]bool, len(r.OtherStores))
	var out []StoreListing
	for _, s := range r.OtherStores {
		if !s.HasAdd || s.SoldOut {
			continue
		}
		if seen[s.Shop] {
			continue
		}
		seen[s.Shop] = true
		out = append(out, s)
	}
	return out
}
