package adapters

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// GenericAdapter is the fallback for unknown sites. It prefers a single
// <article> or <main> element and otherwise keeps the whole body.
type GenericAdapter struct{}

// NewGenericAdapter creates the fallback adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true
func (a *GenericAdapter) CanHandle(*url.URL) bool {
	return true
}

// ContentRoot picks the lone article or main element. Pages listing
// several articles keep the body.
func (a *GenericAdapter) ContentRoot(doc *goquery.Document) *goquery.Selection {
	if root := firstNonEmpty(doc, "article", "main", `[role="main"]`); root != nil {
		return root
	}
	return body(doc)
}
