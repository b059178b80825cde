// Package outfit holds the core catalog entities and request validation.
// Keep this package free of transport (HTTP) and infrastructure concerns.
package outfit

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
)

// Item is a single product entry in an outfit. Immutable once validated.
type Item struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Link     string `json:"link,omitempty"`
	Price    string `json:"price"`
}

// Outfit is an ordered, non-empty collection of items plus an optional
// free-form description. Item order is display order.
type Outfit struct {
	Description string `json:"outfit_description,omitempty"`
	Items       []Item `json:"items"`
}

// DeliveryRequest is the top-level unit of work: one outfit rendered to PDF
// and mailed to one recipient.
type DeliveryRequest struct {
	Email  string `json:"email"`
	Outfit Outfit `json:"outfit"`
}

// ValidationError carries every offending field found in a request, not just
// the first one.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Fields, "; ")
}

// Validate checks a delivery request and returns a ValidationError listing all
// problems, or nil if the request is well-formed. It has no side effects.
func Validate(req *DeliveryRequest) error {
	var fields []string

	if req.Email == "" {
		fields = append(fields, "email: missing")
	} else if _, err := mail.ParseAddress(req.Email); err != nil {
		fields = append(fields, "email: not a valid address")
	}

	if len(req.Outfit.Items) == 0 {
		fields = append(fields, "outfit.items: must not be empty")
	}

	for i, it := range req.Outfit.Items {
		if strings.TrimSpace(it.Name) == "" {
			fields = append(fields, fmt.Sprintf("outfit.items[%d].name: missing", i))
		}
		if it.ImageURL == "" {
			fields = append(fields, fmt.Sprintf("outfit.items[%d].image_url: missing", i))
		} else if !validHTTPURL(it.ImageURL) {
			fields = append(fields, fmt.Sprintf("outfit.items[%d].image_url: not a valid http(s) url", i))
		}
		if it.Link != "" && !validHTTPURL(it.Link) {
			fields = append(fields, fmt.Sprintf("outfit.items[%d].link: not a valid http(s) url", i))
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func validHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
