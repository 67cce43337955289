package extract

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// metaSelectors maps metadata keys to the head elements that carry them.
var metaSelectors = []struct {
	key      string
	selector string
}{
	{"description", "meta[name='description']"},
	{"keywords", "meta[name='keywords']"},
	{"author", "meta[name='author']"},
	{"og:title", "meta[property='og:title']"},
	{"og:description", "meta[property='og:description']"},
	{"og:image", "meta[property='og:image']"},
}

// extractMetadata pulls title and meta tags from the document head.
func extractMetadata(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)

	if title := normalizeSpace(doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	}
	for _, ms := range metaSelectors {
		if content, ok := doc.Find(ms.selector).First().Attr("content"); ok && content != "" {
			meta[ms.key] = content
		}
	}
	return meta
}

// extractLinks returns the de-duplicated absolute URLs of anchor elements in
// document order.
func extractLinks(doc *goquery.Document, baseURL string) []string {
	return collectURLs(doc, baseURL, "a[href]", "href")
}

// extractImages returns the de-duplicated absolute URLs of image elements in
// document order.
func extractImages(doc *goquery.Document, baseURL string) []string {
	return collectURLs(doc, baseURL, "img[src]", "src")
}

func collectURLs(doc *goquery.Document, baseURL, selector, attr string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var out []string
	seen := make(map[string]struct{})
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr(attr)
		if !ok {
			return
		}
		resolved := resolveURL(base, raw)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	})
	return out
}

// resolveURL makes raw absolute against base, skipping fragments and
// non-navigational schemes.
func resolveURL(base *url.URL, raw string) string {
	raw = normalizeSpace(raw)
	if raw == "" || raw == "#" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch ref.Scheme {
	case "", "http", "https":
	default:
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
