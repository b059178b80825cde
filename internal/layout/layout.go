// Package layout partitions an ordered item sequence into fixed-capacity
// grid pages. Pure: no I/O, deterministic, idempotent.
package layout

import (
	"outfit2pdf/internal/images"
	"outfit2pdf/internal/outfit"
)

// Grid dimensions of one catalog page.
const (
	Columns  = 4
	Rows     = 2
	Capacity = Columns * Rows
)

// Card pairs an item with its resolved image (or the placeholder).
type Card struct {
	Item  outfit.Item
	Image *images.Asset
}

// Page holds up to Capacity cards in display order. Slots beyond len(Cards)
// render blank to preserve the grid shape.
type Page struct {
	Cards []Card
}

// EmptySlots returns how many slots of the page render blank.
func (p Page) EmptySlots() int {
	return Capacity - len(p.Cards)
}

// Paginate walks cards in order, filling pages left-to-right, top-to-bottom.
// Page count is always ceil(len(cards)/Capacity).
func Paginate(cards []Card) []Page {
	if len(cards) == 0 {
		return nil
	}

	pages := make([]Page, 0, (len(cards)+Capacity-1)/Capacity)
	for start := 0; start < len(cards); start += Capacity {
		end := min(start+Capacity, len(cards))
		pages = append(pages, Page{Cards: cards[start:end]})
	}
	return pages
}
