// Package dom provides small accessors over golang.org/x/net/html trees:
// attribute access, text content, traversal, removal and structural cloning.
package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/article-pipeline/internal/text"
)

// Parse builds a fresh tree from markup. Every call returns an independent tree.
func Parse(markup string) (*html.Node, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return root, nil
}

// Render serializes n and its descendants.
func Render(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}

// Document wraps n for goquery selector queries. The tree is shared, not copied.
func Document(n *html.Node) *goquery.Document {
	return goquery.NewDocumentFromNode(n)
}

// Tag returns the lower-case tag name of an element, or "" for other node types.
func Tag(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

// IsElement reports whether n is an element with one of the given tags.
// With no tags it reports whether n is any element.
func IsElement(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	t := Tag(n)
	for _, want := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// Attr returns the value of key, or "".
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether key is present, even with an empty value.
func HasAttr(n *html.Node, key string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

// SetAttr replaces or appends key.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// DelAttr removes key if present.
func DelAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, key) {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// Rename changes the element's tag.
func Rename(n *html.Node, tag string) {
	n.Data = tag
	n.DataAtom = atom.Lookup([]byte(tag))
}

// Children returns the element children of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's subtree. fn may detach the node it is given, and should then return false.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// ElementsByTag collects descendants of n (n included) with one of tags, in document order.
func ElementsByTag(n *html.Node, tags ...string) []*html.Node {
	var out []*html.Node
	Walk(n, func(c *html.Node) bool {
		if IsElement(c, tags...) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// FirstByTag returns the first element with tag, or nil.
func FirstByTag(n *html.Node, tag string) *html.Node {
	var found *html.Node
	Walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if IsElement(c, tag) {
			found = c
			return false
		}
		return true
	})
	return found
}

// Remove detaches n. Text that followed n stays where it was and is merged
// with any text that preceded n.
func Remove(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	prev := n.PrevSibling
	parent.RemoveChild(n)
	mergeAt(prev)
}

// Unwrap replaces n by its children.
func Unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
	MergeAdjacentText(parent)
}

// MergeAdjacentText joins runs of sibling text nodes directly under n.
func MergeAdjacentText(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		mergeAt(c)
	}
}

func mergeAt(c *html.Node) {
	if c == nil || c.Type != html.TextNode {
		return
	}
	for next := c.NextSibling; next != nil && next.Type == html.TextNode; next = c.NextSibling {
		c.Data += next.Data
		c.Parent.RemoveChild(next)
	}
}

// Clone makes a deep copy of n with no links back into the source tree.
func Clone(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	out := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		out.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out.AppendChild(Clone(c))
	}
	return out
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "dd": true, "details": true, "dialog": true, "div": true,
	"dl": true, "dt": true, "fieldset": true, "figcaption": true, "figure": true,
	"footer": true, "form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hgroup": true, "hr": true,
	"html": true, "li": true, "main": true, "nav": true, "ol": true, "p": true,
	"pre": true, "section": true, "table": true, "tbody": true, "td": true,
	"tfoot": true, "th": true, "thead": true, "tr": true, "ul": true,
	"head": true, "title": true, "caption": true, "center": true,
}

// IsBlock reports whether n is a block-level element.
func IsBlock(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && blockTags[Tag(n)]
}

// RawText concatenates all descendant text. Block elements and <br> are
// separated by a single space so words in adjacent blocks do not fuse.
func RawText(n *html.Node) string {
	var b strings.Builder
	writeText(&b, n)
	return b.String()
}

func writeText(b *strings.Builder, n *html.Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	}
	boundary := IsBlock(n) || IsElement(n, "br")
	if boundary {
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if boundary {
		b.WriteByte(' ')
	}
}

// Text returns the whitespace-normalized text content of n.
func Text(n *html.Node) string {
	return text.InnerTrim(RawText(n))
}

// OwnText returns only the text nodes that are direct children of n.
func OwnText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return text.InnerTrim(b.String())
}

// LinkText returns the text found inside <a> descendants of n.
func LinkText(n *html.Node) string {
	var parts []string
	Walk(n, func(c *html.Node) bool {
		if IsElement(c, "a") {
			parts = append(parts, Text(c))
			return false
		}
		return true
	})
	return strings.Join(parts, " ")
}

// HasBlockChild reports whether any descendant of n is a block element.
func HasBlockChild(n *html.Node) bool {
	found := false
	for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
		Walk(c, func(d *html.Node) bool {
			if found {
				return false
			}
			if IsBlock(d) {
				found = true
				return false
			}
			return true
		})
	}
	return found
}
