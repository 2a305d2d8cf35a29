package sandbox

import (
	"bytes"
	"errors"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var ErrNotChild = errors.New("node is not a child of this parent")

// DOM is the page tree a run operates on. It owns a private copy of the
// document and records every mutation made through it.
type DOM struct {
	doc     *goquery.Document
	changes []DOMChange
	mu      sync.RWMutex
}

// NewDOM parses source into a fresh tree
func NewDOM(source string) (*DOM, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, err
	}
	return &DOM{doc: doc}, nil
}

// Root returns the document node
func (d *DOM) Root() *html.Node {
	return d.doc.Get(0)
}

// Head returns the head element
func (d *DOM) Head() *html.Node {
	return d.first("head")
}

// Body returns the body element
func (d *DOM) Body() *html.Node {
	return d.first("body")
}

// DocumentElement returns the html element
func (d *DOM) DocumentElement() *html.Node {
	return d.first("html")
}

func (d *DOM) first(selector string) *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if sel := d.doc.Find(selector); sel.Length() > 0 {
		return sel.Get(0)
	}
	return nil
}

// Query returns the elements under scope matching a CSS selector. A nil
// scope searches the whole document. Invalid selectors match nothing.
func (d *DOM) Query(scope *html.Node, selector string) []*html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if scope == nil {
		return d.doc.Find(selector).Nodes
	}
	return selection(scope).Find(selector).Nodes
}

// ByID returns the first element whose id is id
func (d *DOM) ByID(id string) *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found *html.Node
	d.doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("id"); v == id {
			found = s.Get(0)
			return false
		}
		return true
	})
	return found
}

// Text returns the text content of n
func (d *DOM) Text(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return selection(n).Text()
}

// InnerHTML serializes the children of n
func (d *DOM) InnerHTML(n *html.Node) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}

// HTML serializes the whole document
func (d *DOM) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	if err := html.Render(&buf, d.Root()); err != nil {
		return ""
	}
	return buf.String()
}

// Changes returns accumulated DOM changes
func (d *DOM) Changes() []DOMChange {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DOMChange{}, d.changes...)
}

// CreateElement returns a detached element
func (d *DOM) CreateElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

// CreateText returns a detached text node
func (d *DOM) CreateText(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

// AppendChild moves child to the end of parent
func (d *DOM) AppendChild(parent, child *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.AppendChild(child)
	d.record("append", parent, "", describe(child))
}

// RemoveChild detaches child from parent
func (d *DOM) RemoveChild(parent, child *html.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if child.Parent != parent {
		return ErrNotChild
	}
	parent.RemoveChild(child)
	d.record("remove", parent, "", describe(child))
	return nil
}

// Attr returns the value of an attribute
func (d *DOM) Attr(n *html.Node, key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return attr(n, key)
}

// SetAttribute sets an attribute and records the change
func (d *DOM) SetAttribute(n *html.Node, key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key = strings.ToLower(key)
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			d.record("set_attribute", n, key, value)
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
	d.record("set_attribute", n, key, value)
}

// RemoveAttribute removes an attribute if present
func (d *DOM) RemoveAttribute(n *html.Node, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key = strings.ToLower(key)
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			d.record("remove_attribute", n, key, "")
			return
		}
	}
}

// SetText replaces the children of n with a single text node
func (d *DOM) SetText(n *html.Node, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n.Type == html.TextNode {
		n.Data = text
		d.record("set_text", n, "", text)
		return
	}
	removeChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	d.record("set_text", n, "", text)
}

// SetInnerHTML parses markup in the context of n and replaces its children
func (d *DOM) SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	removeChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
	d.record("set_html", n, "", markup)
	return nil
}

func (d *DOM) record(kind string, target *html.Node, property, value string) {
	d.changes = append(d.changes, DOMChange{
		Type:     kind,
		Target:   describe(target),
		Property: property,
		Value:    value,
	})
}

// selection wraps n, which may be detached from the document
func selection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// describe renders n as tag#id.class for change records
func describe(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return "#text"
	case html.DocumentNode:
		return "#document"
	case html.ElementNode:
	default:
		return "#node"
	}

	var sb strings.Builder
	sb.WriteString(n.Data)
	if id, ok := attr(n, "id"); ok && id != "" {
		sb.WriteByte('#')
		sb.WriteString(id)
	}
	if class, ok := attr(n, "class"); ok {
		for _, c := range strings.Fields(class) {
			sb.WriteByte('.')
			sb.WriteString(c)
		}
	}
	return sb.String()
}
