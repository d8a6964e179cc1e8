package adapters

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parse(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func TestRegistry_FindAdapter(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		url  string
		want string
	}{
		{"https://en.wikipedia.org/wiki/Borscht", "wikipedia"},
		{"https://uk.wikipedia.org/wiki/Борщ", "wikipedia"},
		{"https://notwikipedia.org/wiki/x", "generic"},
		{"https://www.legislation.gov.uk/ukpga/2018/12", "legal"},
		{"https://www.law.cornell.edu/uscode/text/17/107", "legal"},
		{"https://example.com/laws/privacy", "legal"},
		{"https://example.com/lawnmowers", "generic"},
		{"https://news.example.com/2026/10/story", "generic"},
		{"::not a url", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := r.FindAdapter(tt.url).Name(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRegistry_RegisterOrder(t *testing.T) {
	r := &Registry{generic: NewGenericAdapter()}
	r.Register(NewLegalAdapter())
	r.Register(NewWikipediaAdapter())

	// A Wikipedia page about a law matches the legal adapter first
	if got := r.FindAdapter("https://en.wikipedia.org/wiki/law/x").Name(); got != "legal" {
		t.Errorf("expected earlier registration to win, got %s", got)
	}
}

func TestGenericAdapter_ContentRoot(t *testing.T) {
	a := NewGenericAdapter()

	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "single article",
			page: `<body><nav>Home News</nav><article><p>The story.</p></article><footer>(c)</footer></body>`,
			want: "The story.",
		},
		{
			name: "main element",
			page: `<body><nav>Menu</nav><main>Main text</main></body>`,
			want: "Main text",
		},
		{
			name: "several articles keep body",
			page: `<body><article>One</article>
<article>Two</article></body>`,
			want: "One Two",
		},
		{
			name: "empty article keeps body",
			page: `<body><article> </article><p>Loose text</p></body>`,
			want: "Loose text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := text(a.ContentRoot(parse(t, tt.page))); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestWikipediaAdapter_ContentRoot(t *testing.T) {
	page := `<html><body>
<div id="mw-navigation">Main page Contents</div>
<div id="mw-content-text"><div class="mw-parser-output">
<div class="hatnote">For other uses, see Borscht (disambiguation).</div>
<p>Borscht is a sour soup.<sup class="reference">[1]</sup></p>
<h2>History<span class="mw-editsection">[edit]</span></h2>
<p>It is common in Eastern Europe.</p>
<div class="reflist"><ol><li>Some source</li></ol></div>
<table class="navbox"><tr><td>Soups</td></tr></table>
</div></div>
</body></html>`

	got := text(NewWikipediaAdapter().ContentRoot(parse(t, page)))
	want := "Borscht is a sour soup. History It is common in Eastern Europe."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestWikipediaAdapter_FallsBackToGeneric(t *testing.T) {
	got := text(NewWikipediaAdapter().ContentRoot(parse(t, `<body><main>Mirror text</main></body>`)))
	if got != "Mirror text" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestLegalAdapter(t *testing.T) {
	a := NewLegalAdapter()

	u, _ := url.Parse("https://www.justice.gov/opa/pr/x")
	if !a.CanHandle(u) {
		t.Error("expected justice.gov to be handled")
	}

	page := `<body><header>GOV.UK</header><div class="breadcrumb">Home › Acts</div>
<div id="viewLegContents"><p>1 Overview</p>
<p>This Act makes provision.</p></div>
<footer>Crown copyright</footer></body>`
	got := text(a.ContentRoot(parse(t, page)))
	if got != "1 Overview This Act makes provision." {
		t.Errorf("unexpected text %q", got)
	}
}
