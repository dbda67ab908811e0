package extractor

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/article-pipeline/internal/dom"
	"github.com/JakeFAU/article-pipeline/internal/text"
)

// candidateTags are the paragraph-like elements whose own text is scored.
var candidateTags = []string{"p", "pre", "td", "blockquote"}

var (
	positiveHints = []string{"article", "body", "content", "entry", "main", "post", "story", "text", "prose"}
	negativeHints = []string{"comment", "sidebar", "footer", "related", "share", "nav", "promo", "widget", "meta", "byline", "masthead"}
)

// scoredNode is the transient annotation attached to a node for one
// CalculateBestNode call.
type scoredNode struct {
	node          *html.Node
	parent        *html.Node
	content       float64
	accumulated   float64
	stopwordRatio float64
	linkDensity   float64
}

// CalculateBestNode returns the ancestor that accumulated the highest
// propagated paragraph score, or nil when nothing reaches MinScore.
func (e *Extractor) CalculateBestNode(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	scores := make(map[*html.Node]*scoredNode)
	annotate := func(n *html.Node) *scoredNode {
		sn, ok := scores[n]
		if !ok {
			sn = &scoredNode{node: n, parent: n.Parent}
			scores[n] = sn
		}
		return sn
	}

	damping := e.settings.ParentDamping
	qualified := 0
	for _, n := range dom.ElementsByTag(root, candidateTags...) {
		sn, ok := e.scoreCandidate(n)
		if !ok {
			continue
		}
		qualified++
		own := annotate(n)
		own.content = sn.content
		own.stopwordRatio = sn.stopwordRatio
		own.linkDensity = sn.linkDensity

		weight := damping
		for anc, depth := n.Parent, 0; anc != nil && depth < 2; anc, depth = anc.Parent, depth+1 {
			if anc.Type != html.ElementNode {
				break
			}
			annotate(anc).accumulated += sn.content * weight
			weight *= damping
		}
	}

	var (
		best      *html.Node
		bestScore float64
	)
	dom.Walk(root, func(n *html.Node) bool {
		sn, ok := scores[n]
		if !ok || sn.accumulated == 0 {
			return true
		}
		total := sn.accumulated * e.hintWeight(n)
		if best == nil || total > bestScore {
			best, bestScore = n, total
		}
		return true
	})

	if best == nil || bestScore < e.settings.MinScore {
		e.logger.Debug("no content node above threshold",
			zap.Int("qualified", qualified),
			zap.Float64("best_score", bestScore),
			zap.Float64("min_score", e.settings.MinScore))
		return nil
	}
	return best
}

// scoreCandidate computes a paragraph's own score. ok is false when the
// node does not qualify: no text, too few stopwords or too many links.
func (e *Extractor) scoreCandidate(n *html.Node) (scoredNode, bool) {
	body := dom.Text(n)
	length := text.RuneLen(body)
	if length == 0 {
		return scoredNode{}, false
	}
	stats := e.lang.Stats(body)
	ratio := stats.StopwordRatio()
	if e.lang.HasStopwords() && ratio < e.settings.MinStopwordRatio {
		return scoredNode{}, false
	}
	density := LinkDensity(n)
	if density > e.settings.MaxLinkDensity {
		return scoredNode{}, false
	}

	var base float64
	if e.lang.HasStopwords() {
		base = float64(stats.StopwordCount)
	} else {
		base = float64(stats.WordCount) / 3
	}
	base += float64(length) / 100

	score := base / (1 + e.settings.LinkDensityPenalty*density)
	score *= e.hintWeight(n)
	return scoredNode{node: n, content: score, stopwordRatio: ratio, linkDensity: density}, true
}

// hintWeight scales a score by the class/id semantics of n.
func (e *Extractor) hintWeight(n *html.Node) float64 {
	hints := strings.ToLower(dom.Attr(n, "class") + " " + dom.Attr(n, "id"))
	if strings.TrimSpace(hints) == "" {
		return 1
	}
	weight := 1.0
	if containsAny(hints, negativeHints) {
		weight *= 1 - e.settings.NegativeHintPenalty
	}
	if containsAny(hints, positiveHints) {
		weight *= 1 + e.settings.PositiveHintBonus
	}
	return weight
}

// LinkDensity is the share of n's text that sits inside anchors.
func LinkDensity(n *html.Node) float64 {
	total := text.RuneLen(dom.Text(n))
	if total == 0 {
		return 0
	}
	return float64(text.RuneLen(dom.LinkText(n))) / float64(total)
}

// TextDensity is visible text length per block-level element in n's subtree.
func TextDensity(n *html.Node) float64 {
	blocks := 0
	dom.Walk(n, func(c *html.Node) bool {
		if dom.IsBlock(c) {
			blocks++
		}
		return true
	})
	if blocks == 0 {
		blocks = 1
	}
	return float64(text.RuneLen(dom.Text(n))) / float64(blocks)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
