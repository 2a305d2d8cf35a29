package preview

import (
	"bytes"
	"encoding/hex"
	"io"
	"strings"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/antchfx/htmlquery"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is an assembled preview. Root is the document node; its html
// element always has exactly one Head and one Body.
type Document struct {
	Root *html.Node
	Head *html.Node
	Body *html.Node

	// TransformErr is set when loop bounding failed and the user script was
	// left out of this document
	TransformErr error
}

// Script is a script element in document order
type Script struct {
	// Src is the src attribute, a data URI for attached libraries
	Src  string
	Text string
}

// Build parses htmlSource and guarantees the html, head and body elements
// exist. It accepts any text, including fragments and the empty string.
func Build(htmlSource string) *Document {
	root, err := html.Parse(strings.NewReader(htmlSource))
	if err != nil || root == nil {
		root = &html.Node{Type: html.DocumentNode}
	}

	htmlEl := child(root, atom.Html)
	if htmlEl == nil {
		htmlEl = element(atom.Html)
		root.AppendChild(htmlEl)
	}

	head := child(htmlEl, atom.Head)
	if head == nil {
		head = element(atom.Head)
		htmlEl.InsertBefore(head, htmlEl.FirstChild)
	}

	body := child(htmlEl, atom.Body)
	if body == nil {
		body = element(atom.Body)
		htmlEl.AppendChild(body)
	}

	return &Document{Root: root, Head: head, Body: body}
}

// Render writes the serialized document
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.Root)
}

// String returns the serialized document
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Bytes returns the serialized document
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}

// Scripts lists every script element in document order
func (d *Document) Scripts() []Script {
	nodes := htmlquery.Find(d.Root, "//script")
	out := make([]Script, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Script{
			Src:  htmlquery.SelectAttr(n, "src"),
			Text: htmlquery.InnerText(n),
		})
	}
	return out
}

// Stylesheets lists the href of every stylesheet link in document order
func (d *Document) Stylesheets() []string {
	nodes := htmlquery.Find(d.Root, "//link[@rel='stylesheet']")
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, htmlquery.SelectAttr(n, "href"))
	}
	return out
}

// UserScript returns the user script text when it was injected
func (d *Document) UserScript() (string, bool) {
	last := d.Body.LastChild
	if last == nil || last.Type != html.ElementNode || last.DataAtom != atom.Script {
		return "", false
	}
	text := textOf(last)
	if !strings.HasPrefix(text, "\n"+bridge.Delimiter+"\n") {
		return "", false
	}
	return text, true
}

// ETag derives a strong entity tag from serialized document bytes
func ETag(rendered []byte) string {
	sum := blake2b.Sum256(rendered)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func child(parent *html.Node, a atom.Atom) *html.Node {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

func elementWithText(a atom.Atom, text string, attrs ...html.Attribute) *html.Node {
	n := element(a, attrs...)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return n
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
