package bot

import (
	"fmt"
	"strings"

	"mandarake-watch/pkg/watch"
)

func statusEmoji(s watch.Status) string {
	switch s {
	case watch.StatusIn:
		return "✅ in"
	case watch.StatusOut:
		return "❌ out"
	default:
		return "unknown"
	}
}

func boolEmoji(v bool) string {
	if v {
		return "✅"
	}
	return "❌"
}

// formatItem renders one watch-list entry for /list.
func formatItem(it *watch.WatchedItem) string {
	lastChecked := "-"
	if it.LastChecked != nil {
		lastChecked = it.LastChecked.Format("02 Jan 2006, 15:04:05")
	}
	return fmt.Sprintf("%s\n[%s]\n%s\nEnabled: %t\nLast status: %s\nLast Checked: %s\n",
		it.Name, it.ID, it.URL, it.Enabled, statusEmoji(it.LastStatus), lastChecked)
}

// formatCheckResult renders the /check reply, including every other store
// the page lists so the user can see sold-out ones too.
func formatCheckResult(label string, res *watch.StockResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Result for %s:\n", label)
	if res.ItemName != "" {
		b.WriteString(res.ItemName)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "In stock: %s\n", boolEmoji(res.IsInStock))
	if res.ParentShopName != "" {
		fmt.Fprintf(&b, "Store: %s\n", res.ParentShopName)
	}
	if len(res.OtherStores) > 0 {
		b.WriteString("\nOther stores:\n")
		for _, s := range res.OtherStores {
			line := fmt.Sprintf("%s - %s - %s", s.Shop, boolEmoji(s.HasAdd && !s.SoldOut), s.Price)
			if s.IsDefective {
				line += " (defective item)"
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}
