package fetcher

import (
	"strings"

	"github.com/JakeFAU/article-pipeline/internal/dom"
)

// ExtractMetaRefresh returns the target of a <meta http-equiv="refresh">
// directive in markup, or "". Content looks like "0;URL='http://x'".
func ExtractMetaRefresh(markup string) string {
	root, err := dom.Parse(markup)
	if err != nil {
		return ""
	}
	var content string
	for _, meta := range dom.ElementsByTag(root, "meta") {
		if strings.EqualFold(strings.TrimSpace(dom.Attr(meta, "http-equiv")), "refresh") {
			content = dom.Attr(meta, "content")
			break
		}
	}
	if content == "" {
		return ""
	}
	_, target, ok := strings.Cut(content, ";")
	if !ok {
		return ""
	}
	target = strings.TrimSpace(target)
	if len(target) >= 4 && strings.EqualFold(target[:4], "url=") {
		target = strings.TrimSpace(target[4:])
	}
	return strings.Trim(target, `'"`)
}
