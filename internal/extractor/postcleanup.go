package extractor

import (
	"golang.org/x/net/html"

	"github.com/JakeFAU/article-pipeline/internal/dom"
)

var mediaTags = []string{"img", "video", "iframe", "embed", "object", "picture", "figure"}

// PostCleanup prunes the direct children of the best node that do not read
// like article prose. Paragraphs are kept unless they contain no stopwords;
// other children are dropped for high link density or low text density.
// Headings and media holders survive. Scores are not recomputed.
func (e *Extractor) PostCleanup(node *html.Node) *html.Node {
	if node == nil {
		return nil
	}
	for _, child := range dom.Children(node) {
		if e.keepChild(child) {
			continue
		}
		e.logger.Debug("post cleanup removed node", zapNode(child))
		dom.Remove(child)
	}
	return node
}

func (e *Extractor) keepChild(n *html.Node) bool {
	switch dom.Tag(n) {
	case "h1", "h2", "h3", "h4", "h5", "h6", "br", "hr":
		return LinkDensity(n) <= e.settings.MaxLinkDensity
	case "p":
		body := dom.Text(n)
		if body == "" {
			return len(dom.ElementsByTag(n, mediaTags...)) > 0
		}
		if e.lang.HasStopwords() && e.lang.Stats(body).StopwordCount == 0 {
			return false
		}
		return true
	}
	if dom.IsElement(n, mediaTags...) || (len(dom.ElementsByTag(n, mediaTags...)) > 0 && dom.Text(n) == "") {
		return true
	}
	if LinkDensity(n) > e.settings.MaxLinkDensity {
		return false
	}
	return TextDensity(n) >= e.settings.MinTextDensity
}
