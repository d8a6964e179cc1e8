// Package adapters picks the part of a page that holds its readable
// content. Site adapters know where well-known publishers keep the
// article body and which blocks around it are noise.
package adapters

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Adapter narrows a parsed page down to its content
type Adapter interface {
	// Name identifies the adapter in logs
	Name() string

	// CanHandle reports whether the adapter knows pages at u
	CanHandle(u *url.URL) bool

	// ContentRoot returns the selection whose text is the page content.
	// It may remove noise elements from doc.
	ContentRoot(doc *goquery.Document) *goquery.Selection
}

// Registry holds site adapters and the generic fallback
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a registry with the built-in adapters
func NewRegistry() *Registry {
	r := &Registry{generic: NewGenericAdapter()}
	r.Register(NewWikipediaAdapter())
	r.Register(NewLegalAdapter())
	return r
}

// Register adds a site adapter. Earlier registrations win.
func (r *Registry) Register(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// FindAdapter returns the first adapter that handles rawURL, or the
// generic one
func (r *Registry) FindAdapter(rawURL string) Adapter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return r.generic
	}
	for _, a := range r.adapters {
		if a.CanHandle(u) {
			return a
		}
	}
	return r.generic
}

// firstNonEmpty returns the first selector match that has any text
func firstNonEmpty(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		s := doc.Find(sel)
		if s.Length() != 1 {
			continue
		}
		if strings.TrimSpace(s.Text()) != "" {
			return s
		}
	}
	return nil
}

// body returns <body>, or the whole document for fragments
func body(doc *goquery.Document) *goquery.Selection {
	if b := doc.Find("body"); b.Length() > 0 {
		return b
	}
	return doc.Selection
}

// hostMatches reports whether host is domain or one of its subdomains
func hostMatches(host, domain string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return host == domain || strings.HasSuffix(host, "."+domain)
}
