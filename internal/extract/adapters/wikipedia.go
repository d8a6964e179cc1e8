package adapters

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// wikipediaNoise is stripped from article content: citation markers,
// reference lists, navigation boxes, edit links and maintenance banners
var wikipediaNoise = []string{
	"sup.reference",
	".reflist",
	".references",
	".navbox",
	".mw-editsection",
	".hatnote",
	".ambox",
	"table.metadata",
	"#toc",
	".mw-references-wrap",
}

// WikipediaAdapter reads the parser output of Wikipedia articles
type WikipediaAdapter struct{}

// NewWikipediaAdapter creates a Wikipedia adapter
func NewWikipediaAdapter() *WikipediaAdapter {
	return &WikipediaAdapter{}
}

// Name returns the adapter name
func (a *WikipediaAdapter) Name() string {
	return "wikipedia"
}

// CanHandle matches wikipedia.org in any language
func (a *WikipediaAdapter) CanHandle(u *url.URL) bool {
	return hostMatches(u.Hostname(), "wikipedia.org")
}

// ContentRoot returns the article body without references and navigation
func (a *WikipediaAdapter) ContentRoot(doc *goquery.Document) *goquery.Selection {
	root := doc.Find("#mw-content-text .mw-parser-output").First()
	if root.Length() == 0 {
		root = doc.Find("#mw-content-text").First()
	}
	if root.Length() == 0 {
		return NewGenericAdapter().ContentRoot(doc)
	}

	for _, sel := range wikipediaNoise {
		root.Find(sel).Remove()
	}
	return root
}
