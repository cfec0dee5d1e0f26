package bot

import (
	"strings"
	"testing"
	"time"

	"mandarake-watch/pkg/watch"
)

func TestSplitAddArgs(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantURL  string
		wantOK   bool
	}{
		{"Gundam https://example.com/item", "Gundam", "https://example.com/item", true},
		{"MG Gundam RX-78 https://example.com/item?x=1", "MG Gundam RX-78", "https://example.com/item?x=1", true},
		{"https://example.com/item", "", "", false},
		{"", "", "", false},
		{"   ", "", "", false},
	}

	for _, tt := range tests {
		name, rawURL, ok := splitAddArgs(tt.in)
		if ok != tt.wantOK {
			t.Errorf("splitAddArgs(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if name != tt.wantName || rawURL != tt.wantURL {
			t.Errorf("splitAddArgs(%q) = (%q, %q), want (%q, %q)", tt.in, name, rawURL, tt.wantName, tt.wantURL)
		}
	}
}

func TestFormatItem(t *testing.T) {
	checked := time.Date(2026, 8, 20, 14, 5, 9, 0, time.UTC)
	it := &watch.WatchedItem{
		ID:          "abc-1",
		Name:        "Gundam kit",
		URL:         "https://example.com/item",
		Enabled:     true,
		LastStatus:  watch.StatusOut,
		LastChecked: &checked,
	}

	out := formatItem(it)
	for _, want := range []string{"Gundam kit", "[abc-1]", "https://example.com/item", "Enabled: true", "❌ out", "20 Aug 2026, 14:05:09"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatItem() missing %q:\n%s", want, out)
		}
	}
}

func TestFormatItemNeverChecked(t *testing.T) {
	it := &watch.WatchedItem{ID: "x", Name: "New", URL: "https://example.com", Enabled: true, LastStatus: watch.StatusUnknown}
	out := formatItem(it)
	if !strings.Contains(out, "Last Checked: -") {
		t.Errorf("unchecked item should show '-':\n%s", out)
	}
	if !strings.Contains(out, "unknown") {
		t.Errorf("unchecked item should show unknown status:\n%s", out)
	}
}

func TestFormatCheckResult(t *testing.T) {
	res := &watch.StockResult{
		ItemName:        "Gundam MG",
		ParentShopName:  "Nakano",
		IsInStock:       true,
		IsInMainInStock: true,
		OtherStores: []watch.StoreListing{
			{Shop: "Shibuya", Price: "2,500 yen", HasAdd: true},
			{Shop: "Umeda", Price: "2,000 yen", HasAdd: true, SoldOut: true},
			{Shop: "Sahra", Price: "800 yen", HasAdd: true, IsDefective: true},
		},
	}

	out := formatCheckResult("my kit", res)
	for _, want := range []string{
		"Result for my kit:",
		"Gundam MG",
		"In stock: ✅",
		"Store: Nakano",
		"Shibuya - ✅ - 2,500 yen",
		"Umeda - ❌ - 2,000 yen",
		"Sahra - ✅ - 800 yen (defective item)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatCheckResult() missing %q:\n%s", want, out)
		}
	}
}
