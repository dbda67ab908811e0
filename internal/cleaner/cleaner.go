// Package cleaner normalizes a parsed document before content scoring.
package cleaner

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/JakeFAU/article-pipeline/internal/dom"
)

// removedTags are dropped with their contents.
var removedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"link": true, "svg": true, "canvas": true,
	"button": true, "input": true, "select": true, "textarea": true,
}

// unwrappedTags carry no meaning of their own; their children are kept.
var unwrappedTags = map[string]bool{
	"span": true, "font": true, "center": true, "nobr": true,
	"big": true, "small": true, "o:p": true,
}

// protectedTags are never removed by the denylist.
var protectedTags = map[string]bool{"html": true, "head": true, "body": true}

// contentHints rescue a denylisted node that also names itself as content,
// e.g. class="article-body has-sidebar". Hints and denylist entries are
// compared against whole id/class/name tokens here, so "related-articles"
// is not a hint.
var contentHints = map[string]bool{
	"article": true, "article-body": true, "article-content": true,
	"story": true, "story-body": true, "entry-content": true,
	"post-body": true, "post-content": true, "main-content": true,
}

// divBreakers prevent a div from being turned into a paragraph.
var divBreakers = map[string]bool{"img": true, "table": true, "iframe": true, "video": true, "embed": true, "object": true}

// Cleaner strips boilerplate from a tree. It is stateless after construction
// and safe for concurrent use on distinct trees.
type Cleaner struct {
	denylist []string
}

// New returns a Cleaner that removes elements whose id, class or name
// contains one of denylist (case-insensitive).
func New(denylist []string) *Cleaner {
	lowered := make([]string, 0, len(denylist))
	for _, d := range denylist {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			lowered = append(lowered, d)
		}
	}
	return &Cleaner{denylist: lowered}
}

// Clean modifies root in place and returns it. Clean(Clean(t)) renders
// identically to Clean(t).
func (c *Cleaner) Clean(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	c.removeNoise(root)
	unwrapWrappers(root)
	divsToParagraphs(root)
	mergeText(root)
	trimBlockWhitespace(root)
	return root
}

func (c *Cleaner) removeNoise(root *html.Node) {
	var doomed []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		switch n.Type {
		case html.CommentNode:
			doomed = append(doomed, n)
			return false
		case html.ElementNode:
			if removedTags[dom.Tag(n)] || c.Denied(n) {
				doomed = append(doomed, n)
				return false
			}
		}
		return true
	})
	for _, n := range doomed {
		dom.Remove(n)
	}
}

// Denied reports whether n matches the denylist. A substring match is
// enough to deny, unless one of n's tokens is a content hint and no token
// equals a denylist entry outright.
func (c *Cleaner) Denied(n *html.Node) bool {
	if n.Type != html.ElementNode || protectedTags[dom.Tag(n)] || len(c.denylist) == 0 {
		return false
	}
	tokens := strings.Fields(strings.ToLower(dom.Attr(n, "id") + " " + dom.Attr(n, "class") + " " + dom.Attr(n, "name")))
	if len(tokens) == 0 {
		return false
	}
	var partial, exact, hinted bool
	for _, tok := range tokens {
		if contentHints[tok] {
			hinted = true
		}
		for _, d := range c.denylist {
			if tok == d {
				exact = true
			} else if strings.Contains(tok, d) {
				partial = true
			}
		}
	}
	switch {
	case exact:
		return true
	case partial:
		return !hinted
	default:
		return false
	}
}

func unwrapWrappers(root *html.Node) {
	var wrappers []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && unwrappedTags[dom.Tag(n)] {
			wrappers = append(wrappers, n)
		}
		return true
	})
	// Innermost first so every unwrap sees an attached parent.
	for i := len(wrappers) - 1; i >= 0; i-- {
		dom.Unwrap(wrappers[i])
	}
}

// divsToParagraphs renames divs that hold only inline content and some text.
func divsToParagraphs(root *html.Node) {
	for _, div := range dom.ElementsByTag(root, "div") {
		if dom.HasBlockChild(div) || hasBreaker(div) {
			continue
		}
		if dom.Text(div) == "" {
			continue
		}
		dom.Rename(div, "p")
	}
}

func hasBreaker(n *html.Node) bool {
	found := false
	for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
		dom.Walk(c, func(d *html.Node) bool {
			if d.Type == html.ElementNode && divBreakers[dom.Tag(d)] {
				found = true
			}
			return !found
		})
	}
	return found
}

func mergeText(root *html.Node) {
	dom.Walk(root, func(n *html.Node) bool {
		if n.FirstChild != nil {
			dom.MergeAdjacentText(n)
		}
		return true
	})
}

// trimBlockWhitespace drops whitespace-only text that sits next to a block
// boundary: between block siblings, or first/last inside a block.
func trimBlockWhitespace(root *html.Node) {
	var doomed []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if n.Type != html.TextNode || strings.TrimSpace(n.Data) != "" {
			return true
		}
		if n.Parent != nil && dom.IsElement(n.Parent, "pre", "textarea") {
			return true
		}
		prev, next := n.PrevSibling, n.NextSibling
		atEdge := prev == nil || next == nil
		blockParent := n.Parent == nil || n.Parent.Type == html.DocumentNode || dom.IsBlock(n.Parent)
		if dom.IsBlock(prev) || dom.IsBlock(next) || (atEdge && blockParent) {
			doomed = append(doomed, n)
		}
		return true
	})
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}
