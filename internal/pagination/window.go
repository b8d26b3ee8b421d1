// Package pagination computes the compressed page-number bar shown under a
// review list.
package pagination

import (
	"strconv"
	"strings"
)

// Item is one slot in the bar: either a page link or an ellipsis.
type Item struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Active   bool `json:"active,omitempty"`
}

// Window returns the bar for current out of total pages. Page 1 and the last
// page are always present, as is every page within one of current. Each run of
// hidden pages collapses into a single ellipsis. A total below 1 is treated as
// one page and current is clamped into range.
func Window(current, total int) []Item {
	if total < 1 {
		total = 1
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	items := make([]Item, 0, 7)
	last := 0
	for p := 1; p <= total; p++ {
		if p != 1 && p != total && abs(p-current) > 1 {
			continue
		}
		if p-last > 1 {
			items = append(items, Item{Ellipsis: true})
		}
		items = append(items, Item{Page: p, Active: p == current})
		last = p
	}
	return items
}

// String renders a bar as text, e.g. "1 … 4 [5] 6 … 9".
func String(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		switch {
		case it.Ellipsis:
			parts = append(parts, "…")
		case it.Active:
			parts = append(parts, "["+strconv.Itoa(it.Page)+"]")
		default:
			parts = append(parts, strconv.Itoa(it.Page))
		}
	}
	return strings.Join(parts, " ")
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
