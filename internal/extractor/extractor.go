// Package extractor locates the main content subtree of a cleaned document
// and pulls article metadata out of the pristine one.
package extractor

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/article-pipeline/internal/config"
	"github.com/JakeFAU/article-pipeline/internal/dom"
	"github.com/JakeFAU/article-pipeline/internal/logging"
	"github.com/JakeFAU/article-pipeline/internal/text"
)

// Extractor holds the scoring thresholds and language behaviour for one article.
type Extractor struct {
	settings config.Settings
	lang     text.Language
	logger   *zap.Logger
}

// New returns an Extractor. A nil logger is replaced with a no-op logger.
func New(settings config.Settings, lang text.Language, logger *zap.Logger) *Extractor {
	return &Extractor{
		settings: settings,
		lang:     lang,
		logger:   logging.OrNop(logger),
	}
}

// Language returns the language the extractor scores with.
func (e *Extractor) Language() text.Language {
	return e.lang
}

func zapNode(n *html.Node) zap.Field {
	desc := dom.Tag(n)
	if id := dom.Attr(n, "id"); id != "" {
		desc += "#" + id
	}
	if class := strings.TrimSpace(dom.Attr(n, "class")); class != "" {
		desc += "." + strings.Join(strings.Fields(class), ".")
	}
	return zap.String("node", desc)
}
