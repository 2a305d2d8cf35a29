package preview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func countElements(n *html.Node, a atom.Atom) int {
	count := 0
	if n.Type == html.ElementNode && n.DataAtom == a {
		count++
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += countElements(c, a)
	}
	return count
}

func TestBuildAlwaysHasHeadAndBody(t *testing.T) {
	inputs := map[string]string{
		"empty":          "",
		"fragment":       "<p>Hi</p>",
		"text only":      "just words",
		"full document":  "<!DOCTYPE html><html><head><title>t</title></head><body><p>x</p></body></html>",
		"head only":      "<head><title>t</title></head>",
		"unclosed":       "<div><span>open",
		"frameset":       "<html><frameset><frame src=\"a.html\"></frameset></html>",
		"stray closers":  "</body></html></head>",
		"binary garbage": "\x00\xff<\x01>>",
		"multiple bodies": "<body><p>a</p></body><body><p>b</p></body>",
	}

	for name, src := range inputs {
		t.Run(name, func(t *testing.T) {
			doc := Build(src)
			require.NotNil(t, doc)
			require.NotNil(t, doc.Head)
			require.NotNil(t, doc.Body)

			assert.Equal(t, 1, countElements(doc.Root, atom.Html))
			assert.Equal(t, 1, countElements(doc.Root, atom.Head))
			assert.Equal(t, 1, countElements(doc.Root, atom.Body))
			assert.Equal(t, atom.Html, doc.Head.Parent.DataAtom)
			assert.Equal(t, doc.Head.Parent, doc.Body.Parent)

			var buf strings.Builder
			require.NoError(t, doc.Render(&buf))
			assert.Contains(t, buf.String(), "<head>")
			assert.Contains(t, buf.String(), "<body>")
		})
	}
}

func TestBuildFramesetSynthesizesBody(t *testing.T) {
	doc := Build(`<html><frameset><frame src="a.html"></frameset></html>`)

	assert.Equal(t, doc.Body, doc.Head.Parent.LastChild)
	assert.Equal(t, 1, countElements(doc.Root, atom.Frameset))
}

func TestBuildKeepsContent(t *testing.T) {
	doc := Build(`<!DOCTYPE html><html lang="en"><head><title>T</title></head><body><p id="x">Hi</p></body></html>`)

	out := doc.String()
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, `<html lang="en">`)
	assert.Contains(t, out, "<title>T</title>")
	assert.Contains(t, out, `<p id="x">Hi</p>`)
	assert.Equal(t, out, string(doc.Bytes()))
}

func TestScriptsAndStylesheets(t *testing.T) {
	doc := Build(`<head><link rel="stylesheet" href="a.css"><link rel="icon" href="i.png"></head>
<body><script src="lib.js"></script><script>var x = 1;</script></body>`)

	scripts := doc.Scripts()
	require.Len(t, scripts, 2)
	assert.Equal(t, "lib.js", scripts[0].Src)
	assert.Equal(t, "var x = 1;", scripts[1].Text)

	assert.Equal(t, []string{"a.css"}, doc.Stylesheets())
}

func TestETag(t *testing.T) {
	a := ETag([]byte("<html></html>"))
	b := ETag([]byte("<html> </html>"))

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ETag([]byte("<html></html>")))
	assert.True(t, strings.HasPrefix(a, `"`) && strings.HasSuffix(a, `"`))
	assert.Len(t, a, 34)
}
