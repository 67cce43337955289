package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// contentSelectors lists the elements considered visible text blocks.
const contentSelectors = "p, h1, h2, h3, h4, h5, h6, li, div, span, td, th"

// contentText returns the visible text blocks of the main content region in
// document order, each at least MinTextLength characters, joined by blank
// lines.
func contentText(doc *goquery.Document, cfg Config) string {
	root := mainContent(doc)

	var blocks []string
	root.Find(contentSelectors).Each(func(_ int, s *goquery.Selection) {
		text := normalizeSpace(s.Text())
		if utf8.RuneCountInString(text) >= cfg.MinTextLength {
			blocks = append(blocks, text)
		}
	})

	return strings.Join(blocks, "\n\n")
}
