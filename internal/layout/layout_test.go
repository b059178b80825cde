package layout

import (
	"reflect"
	"strconv"
	"testing"

	"outfit2pdf/internal/images"
	"outfit2pdf/internal/outfit"
)

func makeCards(n int) []Card {
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = Card{
			Item:  outfit.Item{ID: i + 1, Name: "item " + strconv.Itoa(i+1), Price: "10"},
			Image: images.Placeholder(),
		}
	}
	return cards
}

func TestPaginate_PageCountIsCeil(t *testing.T) {
	for _, n := range []int{1, 2, 7, 8, 9, 15, 16, 17, 100} {
		want := (n + Capacity - 1) / Capacity
		pages := Paginate(makeCards(n))
		if len(pages) != want {
			t.Fatalf("n=%d: expected %d pages, got %d", n, want, len(pages))
		}
	}
}

func TestPaginate_PreservesOrderAndCoversEveryItem(t *testing.T) {
	cards := makeCards(21)
	pages := Paginate(cards)

	var seen []int
	for _, p := range pages {
		if len(p.Cards) > Capacity {
			t.Fatalf("page holds %d cards, capacity is %d", len(p.Cards), Capacity)
		}
		for _, c := range p.Cards {
			seen = append(seen, c.Item.ID)
		}
	}
	if len(seen) != len(cards) {
		t.Fatalf("expected %d slots filled, got %d", len(cards), len(seen))
	}
	for i, id := range seen {
		if id != i+1 {
			t.Fatalf("order broken at slot %d: got item %d", i, id)
		}
	}
}

func TestPaginate_ExactCapacity(t *testing.T) {
	pages := Paginate(makeCards(8))
	if len(pages) != 1 {
		t.Fatalf("expected 1 page for 8 items, got %d", len(pages))
	}
	if pages[0].EmptySlots() != 0 {
		t.Fatalf("expected no empty slots, got %d", pages[0].EmptySlots())
	}
}

func TestPaginate_OneOverCapacity(t *testing.T) {
	pages := Paginate(makeCards(9))
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages for 9 items, got %d", len(pages))
	}
	if len(pages[1].Cards) != 1 || pages[1].EmptySlots() != 7 {
		t.Fatalf("expected second page with 1 card and 7 empty slots, got %d cards and %d empty",
			len(pages[1].Cards), pages[1].EmptySlots())
	}
}

func TestPaginate_Idempotent(t *testing.T) {
	cards := makeCards(13)
	first := Paginate(cards)
	second := Paginate(cards)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical page structure on re-run")
	}
}

func TestPaginate_EmptyInput(t *testing.T) {
	if pages := Paginate(nil); pages != nil {
		t.Fatalf("expected nil pages for empty input, got %d", len(pages))
	}
}
