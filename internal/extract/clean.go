package extract

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// cleanDocument removes unwanted regions in place according to the config.
// It runs before any strategy so every representation sees the same tree.
func cleanDocument(doc *goquery.Document, cfg Config) {
	if cfg.StripScripts {
		doc.Find("script, noscript").Remove()
	}
	if cfg.StripStyles {
		doc.Find("style, link[rel='stylesheet']").Remove()
	}
	if cfg.StripNav {
		doc.Find("nav, [role='navigation']").Remove()
	}
	if cfg.StripHeaders {
		doc.Find("header").Remove()
	}
	if cfg.StripFooters {
		doc.Find("footer").Remove()
	}
	if cfg.StripComments {
		for _, root := range doc.Nodes {
			removeComments(root)
		}
	}
}

// removeComments strips comment nodes from the subtree rooted at n.
func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}
