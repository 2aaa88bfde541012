package extractors

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
	"golang.org/x/net/html"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// HTMLStrategy tries to pull a title and body text out of markup.
// ok is false when the strategy produced nothing usable.
type HTMLStrategy func(markup string, base *url.URL) (title, text string, ok bool)

// NamedStrategy pairs a strategy with a name for logging.
type NamedStrategy struct {
	Name string
	Fn   HTMLStrategy
}

// DefaultHTMLStrategies is the fallback chain, first success wins:
// precision readability, secondary readability, bare DOM strip.
func DefaultHTMLStrategies() []NamedStrategy {
	return []NamedStrategy{
		{Name: "trafilatura", Fn: Trafilatura},
		{Name: "readability", Fn: Readability},
		{Name: "dom", Fn: DOMStrip},
	}
}

// HTMLExtractor runs the strategy chain and collects outbound links.
type HTMLExtractor struct {
	strategies []NamedStrategy
}

// NewHTMLExtractor creates an extractor over the given chain.
func NewHTMLExtractor(strategies ...NamedStrategy) *HTMLExtractor {
	return &HTMLExtractor{strategies: strategies}
}

func (e *HTMLExtractor) Extract(ctx context.Context, in domain.ExtractInput) (*domain.Extraction, error) {
	markup := string(in.Body)
	base, _ := url.Parse(in.BaseURL)

	for _, s := range e.strategies {
		title, text, ok := runStrategy(s.Fn, markup, base)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		return &domain.Extraction{
			Title:    title,
			Text:     text,
			Links:    ExtractLinks(markup, base),
			Strategy: s.Name,
		}, nil
	}

	return nil, fmt.Errorf("%w: all html strategies empty for %s", domain.ErrExtraction, in.BaseURL)
}

// runStrategy treats a panicking strategy as a miss.
func runStrategy(fn HTMLStrategy, markup string, base *url.URL) (title, text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			title, text, ok = "", "", false
		}
	}()
	return fn(markup, base)
}

func (e *HTMLExtractor) Name() string {
	return "html"
}

func (e *HTMLExtractor) SupportedTypes() []string {
	return []string{"text/html", "application/xhtml+xml", "application/xml", "text/xml"}
}

func (e *HTMLExtractor) Priority() int {
	return 50
}

// Trafilatura extracts the main content favouring precision over recall.
func Trafilatura(markup string, base *url.URL) (string, string, bool) {
	result, err := trafilatura.Extract(strings.NewReader(markup), trafilatura.Options{
		OriginalURL:     base,
		Focus:           trafilatura.FavorPrecision,
		ExcludeComments: true,
	})
	if err != nil || result == nil {
		return "", "", false
	}
	text := strings.TrimSpace(result.ContentText)
	return result.Metadata.Title, text, text != ""
}

// Readability runs the Arc90-style readability algorithm.
func Readability(markup string, base *url.URL) (string, string, bool) {
	if base == nil {
		base = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(markup), base)
	if err != nil {
		return "", "", false
	}
	text := strings.TrimSpace(article.TextContent)
	return article.Title, text, text != ""
}

// strippedSelectors are removed before flattening in DOMStrip.
const strippedSelectors = "script, style, noscript, template, nav, header, footer, aside"

// blockElements end a line when flattening.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "main": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "pre": true, "blockquote": true, "table": true, "ul": true, "ol": true,
}

// DOMStrip removes page chrome and flattens what is left.
// Title comes from <title>, else the first <h1>.
func DOMStrip(markup string, _ *url.URL) (string, string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", "", false
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	doc.Find(strippedSelectors).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var buf bytes.Buffer
	for _, n := range root.Nodes {
		flatten(&buf, n)
	}
	text := strings.TrimSpace(buf.String())
	return title, text, text != ""
}

func flatten(buf *bytes.Buffer, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			if buf.Len() > 0 {
				last := buf.Bytes()[buf.Len()-1]
				if last != '\n' && last != ' ' {
					buf.WriteByte(' ')
				}
			}
			buf.WriteString(t)
		}
		return
	case html.ElementNode:
		if n.Data == "title" || n.Data == "head" {
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		flatten(buf, c)
	}

	if n.Type == html.ElementNode && blockElements[n.Data] {
		buf.WriteByte('\n')
	}
}

// ExtractLinks resolves every anchor against base and returns http(s) targets,
// fragment-free and deduplicated in first-seen order.
func ExtractLinks(markup string, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			return
		}

		var u *url.URL
		var err error
		if base != nil {
			u, err = base.Parse(href)
		} else {
			u, err = url.Parse(href)
		}
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return
		}
		u.Fragment = ""
		u.RawFragment = ""

		link := u.String()
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}
