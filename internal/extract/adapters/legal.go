package adapters

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// legalDomains publish statutes and court documents
var legalDomains = []string{
	"legislation.gov.uk",
	"law.cornell.edu",
	"justice.gov",
	"gov.uk",
}

// legalSegments are path segments that mark legal documents on other sites
var legalSegments = map[string]bool{
	"statute": true, "statutes": true,
	"law": true, "laws": true,
	"legal": true,
	"regulation": true, "regulations": true,
}

// LegalAdapter reads legislation and court sites, whose pages wrap the
// document text in navigation and breadcrumbs
type LegalAdapter struct{}

// NewLegalAdapter creates a legal document adapter
func NewLegalAdapter() *LegalAdapter {
	return &LegalAdapter{}
}

// Name returns the adapter name
func (a *LegalAdapter) Name() string {
	return "legal"
}

// CanHandle matches known legal domains and legal-looking paths
func (a *LegalAdapter) CanHandle(u *url.URL) bool {
	for _, domain := range legalDomains {
		if hostMatches(u.Hostname(), domain) {
			return true
		}
	}

	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if legalSegments[seg] {
			return true
		}
	}
	return false
}

// ContentRoot returns the document body without site chrome
func (a *LegalAdapter) ContentRoot(doc *goquery.Document) *goquery.Selection {
	doc.Find("nav, header, footer, .breadcrumb, .breadcrumbs").Remove()

	if root := firstNonEmpty(doc, "#viewLegContents", "#content", "main", "article"); root != nil {
		return root
	}
	return body(doc)
}
