package sandbox

import (
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// document builds the document global over the run's DOM
func (p *page) document() *goja.Object {
	doc := p.vm.NewObject()

	p.method(doc, "getElementById", func(call goja.FunctionCall) goja.Value {
		return p.wrap(p.dom.ByID(str(call.Argument(0))))
	})
	p.method(doc, "querySelector", func(call goja.FunctionCall) goja.Value {
		return p.first(p.dom.Query(nil, str(call.Argument(0))))
	})
	p.method(doc, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return p.list(p.dom.Query(nil, str(call.Argument(0))))
	})
	p.method(doc, "getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return p.list(p.dom.Query(nil, str(call.Argument(0))))
	})
	p.method(doc, "getElementsByClassName", func(call goja.FunctionCall) goja.Value {
		classes := strings.Fields(str(call.Argument(0)))
		if len(classes) == 0 {
			return p.list(nil)
		}
		return p.list(p.dom.Query(nil, "."+strings.Join(classes, ".")))
	})
	p.method(doc, "createElement", func(call goja.FunctionCall) goja.Value {
		return p.wrap(p.dom.CreateElement(str(call.Argument(0))))
	})
	p.method(doc, "createTextNode", func(call goja.FunctionCall) goja.Value {
		return p.wrap(p.dom.CreateText(str(call.Argument(0))))
	})

	p.getter(doc, "body", func() goja.Value { return p.wrap(p.dom.Body()) })
	p.getter(doc, "head", func() goja.Value { return p.wrap(p.dom.Head()) })
	p.getter(doc, "documentElement", func() goja.Value { return p.wrap(p.dom.DocumentElement()) })
	p.getter(doc, "title", func() goja.Value {
		titles := p.dom.Query(nil, "title")
		if len(titles) == 0 {
			return p.vm.ToValue("")
		}
		return p.vm.ToValue(strings.TrimSpace(p.dom.Text(titles[0])))
	})
	return doc
}

// wrap returns the proxy object for n, creating it on first use so the
// same node always maps to the same object
func (p *page) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := p.proxies[n]; ok {
		return obj
	}

	obj := p.vm.NewObject()
	p.proxies[n] = obj
	p.nodes[obj] = n
	p.defineNode(obj, n)
	return obj
}

func (p *page) unwrap(v goja.Value) (*html.Node, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	n, ok := p.nodes[obj]
	return n, ok
}

func (p *page) mustNode(v goja.Value) *html.Node {
	n, ok := p.unwrap(v)
	if !ok {
		panic(p.vm.NewTypeError("parameter 1 is not of type 'Node'"))
	}
	return n
}

func (p *page) defineNode(obj *goja.Object, n *html.Node) {
	p.getter(obj, "nodeType", func() goja.Value {
		switch n.Type {
		case html.ElementNode:
			return p.vm.ToValue(1)
		case html.TextNode:
			return p.vm.ToValue(3)
		case html.DocumentNode:
			return p.vm.ToValue(9)
		}
		return p.vm.ToValue(8)
	})
	p.getter(obj, "nodeName", func() goja.Value { return p.vm.ToValue(nodeName(n)) })
	p.getter(obj, "parentNode", func() goja.Value { return p.wrap(n.Parent) })
	p.getter(obj, "firstChild", func() goja.Value { return p.wrap(n.FirstChild) })
	p.getter(obj, "lastChild", func() goja.Value { return p.wrap(n.LastChild) })
	p.getter(obj, "nextSibling", func() goja.Value { return p.wrap(n.NextSibling) })
	p.getter(obj, "childNodes", func() goja.Value {
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		return p.list(children)
	})
	p.accessor(obj, "textContent",
		func() goja.Value {
			if n.Type == html.TextNode {
				return p.vm.ToValue(n.Data)
			}
			return p.vm.ToValue(p.dom.Text(n))
		},
		func(v goja.Value) { p.dom.SetText(n, str(v)) },
	)
	p.method(obj, "appendChild", func(call goja.FunctionCall) goja.Value {
		child := p.mustNode(call.Argument(0))
		if n.Type == html.TextNode || contains(child, n) {
			panic(p.vm.NewTypeError("the new child element contains the parent"))
		}
		p.dom.AppendChild(n, child)
		return call.Argument(0)
	})
	p.method(obj, "removeChild", func(call goja.FunctionCall) goja.Value {
		child := p.mustNode(call.Argument(0))
		if err := p.dom.RemoveChild(n, child); err != nil {
			panic(p.vm.NewTypeError(err.Error()))
		}
		return call.Argument(0)
	})
	p.method(obj, "remove", func(goja.FunctionCall) goja.Value {
		if n.Parent != nil {
			_ = p.dom.RemoveChild(n.Parent, n)
		}
		return goja.Undefined()
	})

	if n.Type != html.ElementNode {
		return
	}

	p.getter(obj, "tagName", func() goja.Value { return p.vm.ToValue(nodeName(n)) })
	p.accessor(obj, "id",
		func() goja.Value { v, _ := p.dom.Attr(n, "id"); return p.vm.ToValue(v) },
		func(v goja.Value) { p.dom.SetAttribute(n, "id", str(v)) },
	)
	p.accessor(obj, "className",
		func() goja.Value { v, _ := p.dom.Attr(n, "class"); return p.vm.ToValue(v) },
		func(v goja.Value) { p.dom.SetAttribute(n, "class", str(v)) },
	)
	p.accessor(obj, "innerHTML",
		func() goja.Value { return p.vm.ToValue(p.dom.InnerHTML(n)) },
		func(v goja.Value) {
			if err := p.dom.SetInnerHTML(n, str(v)); err != nil {
				panic(p.vm.NewGoError(err))
			}
		},
	)
	p.getter(obj, "children", func() goja.Value {
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				children = append(children, c)
			}
		}
		return p.list(children)
	})
	_ = obj.Set("style", p.vm.NewObject())

	p.method(obj, "getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := p.dom.Attr(n, strings.ToLower(str(call.Argument(0))))
		if !ok {
			return goja.Null()
		}
		return p.vm.ToValue(v)
	})
	p.method(obj, "hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := p.dom.Attr(n, strings.ToLower(str(call.Argument(0))))
		return p.vm.ToValue(ok)
	})
	p.method(obj, "setAttribute", func(call goja.FunctionCall) goja.Value {
		p.dom.SetAttribute(n, str(call.Argument(0)), str(call.Argument(1)))
		return goja.Undefined()
	})
	p.method(obj, "removeAttribute", func(call goja.FunctionCall) goja.Value {
		p.dom.RemoveAttribute(n, str(call.Argument(0)))
		return goja.Undefined()
	})
	p.method(obj, "querySelector", func(call goja.FunctionCall) goja.Value {
		return p.first(p.dom.Query(n, str(call.Argument(0))))
	})
	p.method(obj, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return p.list(p.dom.Query(n, str(call.Argument(0))))
	})
	p.method(obj, "addEventListener", func(call goja.FunctionCall) goja.Value {
		if _, ok := goja.AssertFunction(call.Argument(1)); !ok {
			return goja.Undefined()
		}
		kind := str(call.Argument(0))
		if p.listeners[n] == nil {
			p.listeners[n] = make(map[string][]goja.Value)
		}
		p.listeners[n][kind] = append(p.listeners[n][kind], call.Argument(1))
		return goja.Undefined()
	})
	p.method(obj, "removeEventListener", func(call goja.FunctionCall) goja.Value {
		kind := str(call.Argument(0))
		handlers := p.listeners[n][kind]
		for i, h := range handlers {
			if h.StrictEquals(call.Argument(1)) {
				p.listeners[n][kind] = append(handlers[:i], handlers[i+1:]...)
				break
			}
		}
		return goja.Undefined()
	})
	p.method(obj, "click", func(goja.FunctionCall) goja.Value {
		p.dispatch(obj, n, "click")
		return goja.Undefined()
	})
}

// dispatch runs the on<kind> property and then the listeners for kind
func (p *page) dispatch(obj *goja.Object, n *html.Node, kind string) {
	event := p.vm.NewObject()
	_ = event.Set("type", kind)
	_ = event.Set("target", obj)
	_ = event.Set("preventDefault", func(goja.FunctionCall) goja.Value { return goja.Undefined() })

	handlers := []goja.Value{obj.Get("on" + kind)}
	handlers = append(handlers, p.listeners[n][kind]...)
	for _, h := range handlers {
		fn, ok := goja.AssertFunction(h)
		if !ok {
			continue
		}
		if _, err := fn(obj, event); err != nil {
			p.handle("event-"+kind, "", err)
			if p.interrupted {
				return
			}
		}
	}
}

func (p *page) first(nodes []*html.Node) goja.Value {
	if len(nodes) == 0 {
		return goja.Null()
	}
	return p.wrap(nodes[0])
}

func (p *page) list(nodes []*html.Node) goja.Value {
	items := make([]interface{}, len(nodes))
	for i, n := range nodes {
		items[i] = p.wrap(n)
	}
	return p.vm.NewArray(items...)
}

func (p *page) method(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	_ = obj.Set(name, fn)
}

func (p *page) getter(obj *goja.Object, name string, get func() goja.Value) {
	p.accessor(obj, name, get, nil)
}

// accessor defines a property backed by Go. Writes to read-only
// properties are ignored, as in sloppy-mode browser code.
func (p *page) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := p.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	setter := p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if set != nil {
			set(call.Argument(0))
		}
		return goja.Undefined()
	})
	_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToUpper(n.Data)
	case html.TextNode:
		return "#text"
	case html.DocumentNode:
		return "#document"
	}
	return "#comment"
}

// contains reports whether n is ancestor or equal to other
func contains(n, other *html.Node) bool {
	for c := other; c != nil; c = c.Parent {
		if c == n {
			return true
		}
	}
	return false
}
