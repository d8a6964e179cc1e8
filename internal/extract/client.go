// Package extract turns a URL into the title and readable text that the
// classifier sees.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ppiankov/veritas/internal/cache"
	"github.com/ppiankov/veritas/internal/extract/adapters"
	"github.com/ppiankov/veritas/internal/model"
	"github.com/ppiankov/veritas/internal/util"
)

// DefaultMaxChars bounds extracted text when no limit is configured
const DefaultMaxChars = 5000

// UntitledPage is the title reported for pages without one
const UntitledPage = "Untitled"

// Client extracts readable text from web pages
type Client struct {
	fetcher  *Fetcher
	robots   *util.RobotsChecker
	cache    *cache.Extractions
	adapters *adapters.Registry
	maxChars int
	logger   *slog.Logger

	onCrawlDelay func(host string, delay time.Duration)
	delaySeen    sync.Map // host -> struct{}
}

// NewClient creates a client around fetcher. Text is cut to maxChars runes.
func NewClient(fetcher *Fetcher, maxChars int) *Client {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Client{
		fetcher:  fetcher,
		adapters: adapters.NewRegistry(),
		maxChars: maxChars,
		logger:   slog.Default(),
	}
}

// WithRobots makes the client honour robots.txt
func (c *Client) WithRobots(r *util.RobotsChecker) *Client {
	c.robots = r
	return c
}

// WithCrawlDelay reports the robots.txt crawl delay of each new host to fn.
// Only used together with WithRobots.
func (c *Client) WithCrawlDelay(fn func(host string, delay time.Duration)) *Client {
	c.onCrawlDelay = fn
	return c
}

// WithCache serves repeated URLs from ext
func (c *Client) WithCache(ext *cache.Extractions) *Client {
	c.cache = ext
	return c
}

// WithLogger sets the logger
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// Extract fetches rawURL and returns its title and collapsed body text.
// Errors are extraction failures with a short reason.
func (c *Client) Extract(ctx context.Context, rawURL string) (*model.Extraction, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &model.Failure{Kind: model.FailureExtraction, Reason: err.Error(), Err: err}
	}

	if ext, ok := c.cache.Get(rawURL); ok {
		c.logger.Debug("extraction cache hit", "url", rawURL)
		return ext, nil
	}

	if c.robots != nil {
		allowed, err := c.robots.Allowed(ctx, rawURL)
		if err == nil && !allowed {
			return nil, &model.Failure{Kind: model.FailureExtraction, Reason: "blocked by robots.txt"}
		}
		c.reportCrawlDelay(ctx, rawURL)
	}

	res, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	ext, err := c.parse(rawURL, res)
	if err != nil {
		return nil, &model.Failure{Kind: model.FailureExtraction, Reason: err.Error(), Err: err}
	}

	if err := c.cache.Put(rawURL, ext); err != nil {
		c.logger.Warn("extraction cache write failed", "url", rawURL, "error", err)
	}

	return ext, nil
}

func (c *Client) reportCrawlDelay(ctx context.Context, rawURL string) {
	if c.onCrawlDelay == nil {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	if _, seen := c.delaySeen.LoadOrStore(u.Host, struct{}{}); seen {
		return
	}
	if delay := c.robots.CrawlDelay(ctx, rawURL); delay > 0 {
		c.logger.Debug("honouring crawl delay", "host", u.Host, "delay", delay)
		c.onCrawlDelay(u.Host, delay)
	}
}

func (c *Client) parse(rawURL string, res *FetchResult) (*model.Extraction, error) {
	mediaType := "text/html"
	if res.ContentType != "" {
		mt, _, err := mime.ParseMediaType(res.ContentType)
		if err != nil {
			return nil, fmt.Errorf("unsupported content type %q", res.ContentType)
		}
		mediaType = mt
	}

	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}

	switch mediaType {
	case "text/plain":
		return &model.Extraction{
			URL:   finalURL,
			Title: UntitledPage,
			Text:  truncateRunes(collapseSpace(string(res.Body)), c.maxChars),
		}, nil
	case "text/html", "application/xhtml+xml":
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	title := pageTitle(doc)
	adapter := c.adapters.FindAdapter(finalURL)
	c.logger.Debug("extracting content", "url", finalURL, "adapter", adapter.Name())

	return &model.Extraction{
		URL:   finalURL,
		Title: title,
		Text:  truncateRunes(bodyText(adapter.ContentRoot(doc)), c.maxChars),
	}, nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}
	return nil
}

func pageTitle(doc *goquery.Document) string {
	if title := collapseSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if title := collapseSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if title := collapseSpace(og); title != "" {
			return title
		}
	}
	return UntitledPage
}

func bodyText(root *goquery.Selection) string {
	var buf strings.Builder
	for _, n := range root.Nodes {
		readableText(n, &buf)
	}
	return collapseSpace(buf.String())
}

// readableText writes text nodes under n, skipping non-content elements.
// Every text node is followed by a space so adjacent blocks do not merge.
func readableText(n *html.Node, buf *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "iframe", "template", "svg", "head":
			return
		}
	}

	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
		buf.WriteByte(' ')
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		readableText(child, buf)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}
