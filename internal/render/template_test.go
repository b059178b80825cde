package render

import (
	"strconv"
	"strings"
	"testing"

	"outfit2pdf/internal/images"
	"outfit2pdf/internal/layout"
	"outfit2pdf/internal/outfit"
)

func cardsForTest(n int, withLink bool) []layout.Card {
	cards := make([]layout.Card, n)
	for i := range cards {
		item := outfit.Item{
			ID:    i + 1,
			Name:  "Item " + strconv.Itoa(i+1),
			Price: strconv.Itoa((i + 1) * 10),
		}
		if withLink {
			item.Link = "https://shop.example.com/item/" + strconv.Itoa(i+1)
		}
		cards[i] = layout.Card{Item: item, Image: images.Placeholder()}
	}
	return cards
}

func TestBuildHTML_SinglePage(t *testing.T) {
	pages := layout.Paginate(cardsForTest(3, true))
	html, err := BuildHTML(pages, "Autumn look")
	if err != nil {
		t.Fatalf("build html: %v", err)
	}

	if got := strings.Count(html, `<section class="page">`); got != 1 {
		t.Fatalf("expected 1 page section, got %d", got)
	}
	if got := strings.Count(html, "data:image/png;base64,"); got != 3 {
		t.Fatalf("expected 3 inlined images, got %d", got)
	}
	if got := strings.Count(html, `class="card card-empty"`); got != 5 {
		t.Fatalf("expected 5 blank slots, got %d", got)
	}
	if !strings.Contains(html, `href="https://shop.example.com/item/1"`) {
		t.Fatalf("expected clickable card link")
	}
	if !strings.Contains(html, "Autumn look") {
		t.Fatalf("expected outfit description in document")
	}
}

func TestBuildHTML_MultiPageGridShape(t *testing.T) {
	pages := layout.Paginate(cardsForTest(10, false))
	html, err := BuildHTML(pages, "")
	if err != nil {
		t.Fatalf("build html: %v", err)
	}

	if got := strings.Count(html, `<section class="page">`); got != 2 {
		t.Fatalf("expected 2 page sections, got %d", got)
	}
	// Second page: 2 cards, 6 blanks preserving the 4x2 grid.
	if got := strings.Count(html, `class="card card-empty"`); got != 6 {
		t.Fatalf("expected 6 blank slots overall, got %d", got)
	}
	if strings.Contains(html, "<a ") {
		t.Fatalf("items without links must not render anchors")
	}
	if strings.Contains(html, `class="description"`) {
		t.Fatalf("empty description must not render a header")
	}
}

func TestBuildHTML_EscapesUntrustedText(t *testing.T) {
	cards := cardsForTest(1, false)
	cards[0].Item.Name = `<script>alert("x")</script>`
	html, err := BuildHTML(layout.Paginate(cards), `B&W "classics"`)
	if err != nil {
		t.Fatalf("build html: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("item name must be escaped")
	}
	if !strings.Contains(html, "B&amp;W") {
		t.Fatalf("description must be escaped")
	}
}

func TestBuildHTML_DataURIsSurviveTemplating(t *testing.T) {
	html, err := BuildHTML(layout.Paginate(cardsForTest(1, false)), "")
	if err != nil {
		t.Fatalf("build html: %v", err)
	}
	if strings.Contains(html, "ZgotmplZ") {
		t.Fatalf("data URI was sanitized away by html/template")
	}
}
