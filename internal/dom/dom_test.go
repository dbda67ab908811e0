package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func mustParse(t *testing.T, markup string) *html.Node {
	t.Helper()
	root, err := Parse(markup)
	require.NoError(t, err)
	return root
}

func TestAttrHelpers(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<p id="x" CLASS="lead">hi</p>`)
	p := FirstByTag(root, "p")
	require.NotNil(t, p)

	assert.Equal(t, "x", Attr(p, "id"))
	assert.Equal(t, "lead", Attr(p, "class"))
	assert.False(t, HasAttr(p, "title"))

	SetAttr(p, "title", "t")
	SetAttr(p, "id", "y")
	assert.Equal(t, "y", Attr(p, "id"))
	assert.Equal(t, "t", Attr(p, "title"))

	DelAttr(p, "id")
	assert.False(t, HasAttr(p, "id"))
}

func TestRemoveKeepsTailText(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<p>before <span>drop</span> after</p>`)
	Remove(FirstByTag(root, "span"))

	p := FirstByTag(root, "p")
	assert.Equal(t, "before after", Text(p))
	require.NotNil(t, p.FirstChild)
	assert.Nil(t, p.FirstChild.NextSibling, "text nodes should be merged")
}

func TestUnwrapPreservesChildren(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<div>one <font>two <b>three</b></font> four</div>`)
	Unwrap(FirstByTag(root, "font"))

	div := FirstByTag(root, "div")
	assert.Nil(t, FirstByTag(root, "font"))
	assert.NotNil(t, FirstByTag(div, "b"))
	assert.Equal(t, "one two three four", Text(div))
}

func TestTextSeparatesBlocks(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<div><p>alpha</p><p>beta</p>gamma<br>delta</div>`)
	assert.Equal(t, "alpha beta gamma delta", Text(FirstByTag(root, "div")))
}

func TestLinkTextAndOwnText(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<p>read <a href="/x">this <b>link</b></a> now</p>`)
	p := FirstByTag(root, "p")
	assert.Equal(t, "this link", LinkText(p))
	assert.Equal(t, "read now", OwnText(p))
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<div id="a"><p>text</p></div>`)
	copyRoot := Clone(root)

	div := FirstByTag(copyRoot, "div")
	SetAttr(div, "id", "b")
	Remove(FirstByTag(div, "p"))

	assert.Equal(t, "a", Attr(FirstByTag(root, "div"), "id"))
	assert.NotNil(t, FirstByTag(root, "p"))
	assert.Nil(t, copyRoot.Parent)
}

func TestWalkSkipsSubtree(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<div><nav><a>x</a></nav><a>y</a></div>`)
	var seen []string
	Walk(root, func(n *html.Node) bool {
		if IsElement(n, "nav") {
			return false
		}
		if IsElement(n, "a") {
			seen = append(seen, Text(n))
		}
		return true
	})
	assert.Equal(t, []string{"y"}, seen)
}

func TestRenameAndBlock(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<div>x</div>`)
	div := FirstByTag(root, "div")
	Rename(div, "p")
	assert.Equal(t, "p", Tag(div))
	assert.True(t, IsBlock(div))
	assert.Contains(t, Render(div), "<p>x</p>")
	assert.False(t, HasBlockChild(div))
}

func TestDocumentBridge(t *testing.T) {
	t.Parallel()

	root := mustParse(t, `<meta property="og:title" content="Hello">`)
	got, ok := Document(root).Find(`meta[property="og:title"]`).Attr("content")
	assert.True(t, ok)
	assert.Equal(t, "Hello", got)
}
