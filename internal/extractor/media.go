package extractor

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/article-pipeline/internal/article"
	"github.com/JakeFAU/article-pipeline/internal/dom"
	"github.com/JakeFAU/article-pipeline/internal/text"
)

// ImageURLs returns every <img src> under root, resolved and de-duplicated
// in document order.
func ImageURLs(root *html.Node, pageURL string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, img := range dom.ElementsByTag(root, "img") {
		src := resolve(pageURL, imageSource(img))
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}

// FirstImageURL returns the first image inside node, or "".
func FirstImageURL(node *html.Node, pageURL string) string {
	for _, img := range dom.ElementsByTag(node, "img") {
		if src := resolve(pageURL, imageSource(img)); src != "" {
			return src
		}
	}
	return ""
}

func imageSource(img *html.Node) string {
	src := strings.TrimSpace(dom.Attr(img, "src"))
	if src == "" || strings.HasPrefix(src, "data:") {
		src = strings.TrimSpace(dom.Attr(img, "data-src"))
	}
	if strings.HasPrefix(src, "data:") {
		return ""
	}
	return src
}

var tagSelectors = []string{
	`a[rel="tag"]`,
	`a[href*="/tag/"]`,
	`a[href*="/tags/"]`,
	`a[href*="/topic/"]`,
	`a[href*="?keyword="]`,
}

// Tags returns the distinct texts of tag links.
func Tags(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sel := range tagSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			t := text.InnerTrim(s.Text())
			if t == "" || seen[t] {
				return
			}
			seen[t] = true
			out = append(out, t)
		})
	}
	return out
}

var videoProviders = []string{"youtube", "youtu.be", "vimeo", "dailymotion", "kewego", "twitch"}

// Videos returns the sources of embedded players under node. Iframes and
// embeds must point at a known video provider; <video> elements are taken
// as-is, including their <source> children.
func Videos(node *html.Node, pageURL string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(src string) {
		src = resolve(pageURL, src)
		if src != "" && !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	for _, n := range dom.ElementsByTag(node, "iframe", "embed", "object", "video") {
		switch dom.Tag(n) {
		case "iframe", "embed":
			if src := dom.Attr(n, "src"); isProvider(src) {
				add(src)
			}
		case "object":
			if data := dom.Attr(n, "data"); isProvider(data) {
				add(data)
				continue
			}
			for _, param := range dom.ElementsByTag(n, "param") {
				if strings.EqualFold(dom.Attr(param, "name"), "movie") && isProvider(dom.Attr(param, "value")) {
					add(dom.Attr(param, "value"))
				}
			}
		case "video":
			if src := dom.Attr(n, "src"); src != "" {
				add(src)
			}
			for _, source := range dom.ElementsByTag(n, "source") {
				add(dom.Attr(source, "src"))
			}
		}
	}
	return out
}

func isProvider(src string) bool {
	src = strings.ToLower(src)
	if src == "" {
		return false
	}
	for _, p := range videoProviders {
		if strings.Contains(src, p) {
			return true
		}
	}
	return false
}

// Tables extracts tables from doc, expanding colspan and rowspan so every
// row has the same number of cells. With onlyWikitables set only tables
// carrying the "wikitable" class are read.
func Tables(doc *goquery.Document, onlyWikitables bool) []article.Table {
	sel := "table"
	if onlyWikitables {
		sel = "table.wikitable"
	}
	var out []article.Table
	doc.Find(sel).Each(func(i int, tbl *goquery.Selection) {
		caption := text.InnerTrim(tbl.ChildrenFiltered("caption").First().Text())
		if caption == "" {
			caption = strconv.Itoa(i)
		}
		rows := expandTable(ownRows(tbl))
		if len(rows) == 0 {
			return
		}
		out = append(out, article.Table{Caption: caption, Rows: rows})
	})
	return out
}

// ownRows returns the rows of tbl, skipping rows of nested tables.
func ownRows(tbl *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Closest("table").IsSelection(tbl) {
			rows = append(rows, tr)
		}
	})
	return rows
}

type pendingSpan struct {
	remaining int
	text      string
}

func expandTable(rows []*goquery.Selection) [][]string {
	var grid [][]string
	pending := make(map[int]*pendingSpan)
	width := 0

	for _, tr := range rows {
		var row []string
		col := 0
		fill := func() {
			for {
				p, ok := pending[col]
				if !ok || p.remaining == 0 {
					return
				}
				row = append(row, p.text)
				p.remaining--
				if p.remaining == 0 {
					delete(pending, col)
				}
				col++
			}
		}
		tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
			fill()
			value := text.InnerTrim(cell.Text())
			colspan := spanAttr(cell, "colspan")
			rowspan := spanAttr(cell, "rowspan")
			for k := 0; k < colspan; k++ {
				row = append(row, value)
				if rowspan > 1 {
					pending[col] = &pendingSpan{remaining: rowspan - 1, text: value}
				}
				col++
			}
		})
		fill()
		// rowspans continuing past the last explicit cell of this row
		for c := col; c < width; c++ {
			if p, ok := pending[c]; ok && p.remaining > 0 {
				for len(row) < c {
					row = append(row, "")
				}
				col = c
				fill()
				c = col - 1
			}
		}
		if len(row) == 0 {
			continue
		}
		if len(row) > width {
			width = len(row)
		}
		grid = append(grid, row)
	}
	for i := range grid {
		for len(grid[i]) < width {
			grid[i] = append(grid[i], "")
		}
	}
	return grid
}

func spanAttr(cell *goquery.Selection, name string) int {
	n, err := strconv.Atoi(strings.TrimSpace(cell.AttrOr(name, "1")))
	if err != nil || n < 1 {
		return 1
	}
	if n > 1000 {
		return 1000
	}
	return n
}
