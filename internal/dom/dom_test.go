package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><head><title>T</title><script>var x = 1;</script></head>
<body>
  <div>first</div>
  <div id="b"><p>hello</p><p>  world  </p><textarea id="t"></textarea></div>
</body></html>`

func TestXPathRoundTrip(t *testing.T) {
	doc, err := Parse(page)
	require.NoError(t, err)

	ta := FindByAttr(doc, "id", "t")
	require.NotNil(t, ta)

	path := XPath(ta)
	assert.Equal(t, "/html[1]/body[1]/div[2]/textarea[1]", path)

	back, err := ResolveXPath(doc, path)
	require.NoError(t, err)
	assert.Same(t, ta, back)
}

func TestResolveXPathErrors(t *testing.T) {
	doc, err := Parse(page)
	require.NoError(t, err)

	_, err = ResolveXPath(doc, "/html[1]/body[1]/div[9]")
	assert.Error(t, err)

	_, err = ResolveXPath(doc, "/html/body")
	assert.Error(t, err)
}

func TestTextSkipsInvisible(t *testing.T) {
	doc, err := Parse(page)
	require.NoError(t, err)

	assert.Equal(t, "first hello world", Text(doc))
	assert.Equal(t, len("firsthelloworld"), VisibleTextLen(doc))
}

func TestAttrHelpers(t *testing.T) {
	doc, err := Parse(page)
	require.NoError(t, err)
	div := FindByAttr(doc, "id", "b")
	require.NotNil(t, div)

	SetAttr(div, "data-x", "1")
	v, ok := Attr(div, "data-x")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	SetAttr(div, "data-x", "2")
	v, _ = Attr(div, "data-x")
	assert.Equal(t, "2", v)

	RemoveAttr(div, "data-x")
	_, ok = Attr(div, "data-x")
	assert.False(t, ok)
	_, ok = Attr(div, "id")
	assert.True(t, ok)
}

func TestCloneIsDeepAndDetached(t *testing.T) {
	doc, err := Parse(page)
	require.NoError(t, err)
	div := FindByAttr(doc, "id", "b")

	c := Clone(div)
	assert.Nil(t, c.Parent)
	assert.Equal(t, Render(div), Render(c))

	SetAttr(c, "id", "changed")
	v, _ := Attr(div, "id")
	assert.Equal(t, "b", v)
}
