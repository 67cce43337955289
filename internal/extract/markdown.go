package extract

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// toMarkdown converts the main content region to markdown. Elements are
// emitted group by group (headings first, then paragraphs, lists and so on)
// so the output is fully determined by the document structure.
func toMarkdown(doc *goquery.Document, baseURL string, cfg Config) string {
	root := mainContent(doc)
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var parts []string
	add := func(part string) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	longEnough := func(text string) bool {
		return text != "" && utf8.RuneCountInString(text) >= cfg.MinTextLength
	}

	for level := 1; level <= 6; level++ {
		root.Find(fmt.Sprintf("h%d", level)).Each(func(_ int, s *goquery.Selection) {
			if text := normalizeSpace(s.Text()); longEnough(text) {
				add(strings.Repeat("#", level) + " " + text + "\n")
			}
		})
	}

	root.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); longEnough(text) {
			add(text + "\n")
		}
	})

	if cfg.Links {
		root.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			text := normalizeSpace(s.Text())
			target := resolveURL(base, href)
			if target != "" && longEnough(text) {
				add(fmt.Sprintf("[%s](%s)", text, target))
			}
		})
	}

	if cfg.Images {
		root.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			target := resolveURL(base, src)
			if target != "" {
				add(fmt.Sprintf("![%s](%s)\n", s.AttrOr("alt", ""), target))
			}
		})
	}

	root.Find("ol > li").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); longEnough(text) {
			add("1. " + text + "\n")
		}
	})
	root.Find("ul > li").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); longEnough(text) {
			add("- " + text + "\n")
		}
	})

	root.Find("pre > code").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			add("```\n" + text + "\n```\n")
		}
	})
	root.Find("code").Each(func(_ int, s *goquery.Selection) {
		if s.Parent().Is("pre") {
			return
		}
		if text := normalizeSpace(s.Text()); text != "" {
			add("`" + text + "`")
		}
	})

	root.Find("blockquote").Each(func(_ int, s *goquery.Selection) {
		text := normalizeSpace(s.Text())
		if !longEnough(text) {
			return
		}
		add("> " + text + "\n")
	})

	root.Find("strong, b").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); text != "" {
			add("**" + text + "**")
		}
	})
	root.Find("em, i").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); text != "" {
			add("*" + text + "*")
		}
	})

	markdown := strings.Join(parts, "\n")
	for strings.Contains(markdown, "\n\n\n") {
		markdown = strings.ReplaceAll(markdown, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(markdown)
}
