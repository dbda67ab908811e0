package extractor

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/JakeFAU/article-pipeline/internal/dom"
	"github.com/JakeFAU/article-pipeline/internal/text"
)

// allowedTags is the minimal markup vocabulary kept in article HTML, with
// the attributes each tag may carry.
var allowedTags = map[string][]string{
	"a": {"href"}, "img": {"src", "alt"},
	"p": nil, "br": nil, "blockquote": nil,
	"em": nil, "i": nil, "strong": nil, "b": nil,
	"h1": nil, "h2": nil, "h3": nil, "h4": nil, "h5": nil, "h6": nil,
	"ul": nil, "ol": nil, "li": nil,
}

// Format renders node as plain text and as allow-listed markup. Paragraph
// boundaries become blank lines and <br> a single newline in the text.
// Elements outside the allow-list are unwrapped so their text survives.
func Format(node *html.Node) (plain, markup string) {
	if node == nil {
		return "", ""
	}
	return formatText(node), formatMarkup(node)
}

func formatText(node *html.Node) string {
	var (
		paragraphs []string
		buf        strings.Builder
	)
	flush := func() {
		var lines []string
		for _, line := range strings.Split(buf.String(), "\n") {
			if line = text.InnerTrim(line); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
		}
		buf.Reset()
	}

	var walk func(n *html.Node, pre bool)
	walk = func(n *html.Node, pre bool) {
		switch n.Type {
		case html.TextNode:
			if pre {
				buf.WriteString(n.Data)
			} else {
				buf.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
			}
			return
		case html.CommentNode:
			return
		}
		if dom.IsElement(n, "br") {
			buf.WriteByte('\n')
			return
		}
		block := dom.IsBlock(n)
		if block {
			flush()
		}
		pre = pre || dom.IsElement(n, "pre")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, pre)
		}
		if block {
			flush()
		}
	}
	walk(node, false)
	flush()
	return strings.Join(paragraphs, "\n\n")
}

func formatMarkup(node *html.Node) string {
	work := dom.Clone(node)
	wrapper := &html.Node{Type: html.ElementNode, Data: "div"}
	wrapper.AppendChild(work)
	simplify(wrapper)

	var b strings.Builder
	for c := wrapper.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(dom.Render(c))
	}
	return strings.TrimSpace(b.String())
}

// simplify rewrites the children of n in place. Leaf block containers
// become paragraphs; other disallowed elements are replaced by their
// children, padded with whitespace when they were blocks so words from
// neighbouring blocks stay apart.
func simplify(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.ElementNode:
			simplify(c)
			tag := dom.Tag(c)
			if attrs, ok := allowedTags[tag]; ok {
				keepAttrs(c, attrs)
				break
			}
			if dom.IsBlock(c) && !dom.HasBlockChild(c) {
				dom.Rename(c, "p")
				c.Attr = nil
				break
			}
			if dom.IsBlock(c) {
				n.InsertBefore(&html.Node{Type: html.TextNode, Data: "\n"}, c)
				n.InsertBefore(&html.Node{Type: html.TextNode, Data: "\n"}, c.NextSibling)
			}
			unwrapInPlace(c)
		}
		c = next
	}
}

func unwrapInPlace(c *html.Node) {
	parent := c.Parent
	for child := c.FirstChild; child != nil; {
		following := child.NextSibling
		c.RemoveChild(child)
		parent.InsertBefore(child, c)
		child = following
	}
	parent.RemoveChild(c)
}

func keepAttrs(n *html.Node, allowed []string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		for _, k := range allowed {
			if strings.EqualFold(a.Key, k) {
				out = append(out, html.Attribute{Key: k, Val: a.Val})
				break
			}
		}
	}
	n.Attr = out
}
