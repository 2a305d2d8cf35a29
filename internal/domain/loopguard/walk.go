package loopguard

import (
	"reflect"
	"strings"

	"github.com/dop251/goja/ast"
)

var astPkg = reflect.TypeOf(ast.Program{}).PkgPath()

// site is one loop to bound. start covers any labels so the wrapping block
// keeps label and loop together.
type site struct {
	start     int
	end       int
	body      ast.Statement
	bodyStart int
}

type collector struct {
	src     string
	visited map[uintptr]bool
	sited   map[ast.Statement]bool
	sites   []site
}

// collectLoops returns loops in source order, outer loops before the loops
// they contain
func collectLoops(program *ast.Program, src string) []site {
	c := &collector{
		src:     src,
		visited: make(map[uintptr]bool),
		sited:   make(map[ast.Statement]bool),
	}
	c.walk(reflect.ValueOf(program))
	return c.sites
}

func (c *collector) walk(v reflect.Value) {
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			c.walk(v.Elem())
		}
	case reflect.Ptr:
		if v.IsNil() || v.Elem().Kind() != reflect.Struct || v.Elem().Type().PkgPath() != astPkg {
			return
		}
		if c.visited[v.Pointer()] {
			return
		}
		c.visited[v.Pointer()] = true
		if stmt, ok := v.Interface().(ast.Statement); ok {
			c.visit(stmt)
		}
		c.walk(v.Elem())
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			c.walk(v.Index(i))
		}
	case reflect.Struct:
		if v.Type().PkgPath() != astPkg {
			return
		}
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).IsExported() {
				c.walk(v.Field(i))
			}
		}
	}
}

func (c *collector) visit(stmt ast.Statement) {
	start := offset(stmt.Idx0())

	inner := stmt
	for {
		labelled, ok := inner.(*ast.LabelledStatement)
		if !ok {
			break
		}
		inner = labelled.Statement
	}

	body, end, ok := c.loopParts(inner)
	if !ok || c.sited[inner] {
		return
	}
	c.sited[inner] = true
	c.sites = append(c.sites, site{
		start:     start,
		end:       end,
		body:      body,
		bodyStart: c.bodyStart(inner, body),
	})
}

// bodyStart returns the offset where a loop body begins. The parser leaves
// some statement positions unset (an if statement starts at 0), so those are
// recovered by scanning past the loop header.
func (c *collector) bodyStart(loop, body ast.Statement) int {
	if at := offset(body.Idx0()); at > offset(loop.Idx0()) {
		return at
	}

	from := offset(loop.Idx0())
	switch s := loop.(type) {
	case *ast.DoWhileStatement:
		return skipTrivia(c.src, from+len("do"))
	case *ast.WhileStatement:
		from = offset(s.Test.Idx1())
	case *ast.ForInStatement:
		from = offset(s.Source.Idx1())
	case *ast.ForOfStatement:
		from = offset(s.Source.Idx1())
	case *ast.ForStatement:
		switch {
		case s.Update != nil:
			from = offset(s.Update.Idx1())
		case s.Test != nil:
			from = offset(s.Test.Idx1())
		default:
			return skipTrivia(c.src, closeParen(c.src, from))
		}
	}
	return headerEnd(c.src, from)
}

// headerEnd skips from the end of the last header expression over the
// closing parentheses and separators to the first body character
func headerEnd(src string, from int) int {
	i := skipTrivia(src, from)
	for i < len(src) && (src[i] == ')' || src[i] == ';') {
		i = skipTrivia(src, i+1)
	}
	return i
}

// skipTrivia skips whitespace and comments
func skipTrivia(src string, i int) int {
	for i < len(src) {
		switch {
		case strings.IndexByte(" \t\r\n", src[i]) >= 0:
			i++
		case strings.HasPrefix(src[i:], "//"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				return len(src)
			}
			i += end
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return len(src)
			}
			i += end + 4
		default:
			return i
		}
	}
	return i
}

// loopParts returns the body and end offset of a loop statement
func (c *collector) loopParts(stmt ast.Statement) (ast.Statement, int, bool) {
	var body ast.Statement
	switch s := stmt.(type) {
	case *ast.ForStatement:
		body = s.Body
	case *ast.ForInStatement:
		body = s.Body
	case *ast.ForOfStatement:
		body = s.Body
	case *ast.WhileStatement:
		body = s.Body
	case *ast.DoWhileStatement:
		if s.Body == nil {
			return nil, 0, false
		}
		end := offset(s.Idx1())
		if s.Test != nil && end <= offset(s.Test.Idx1()) {
			end = closeParen(c.src, stmtEnd(c.src, offset(s.Body.Idx1())))
		}
		return s.Body, stmtEnd(c.src, end), true
	default:
		return nil, 0, false
	}
	if body == nil {
		return nil, 0, false
	}
	return body, stmtEnd(c.src, offset(stmt.Idx1())), true
}

// closeParen returns the offset just past the parenthesis group that starts
// at or after from, skipping string literals
func closeParen(src string, from int) int {
	depth := 0
	for i := from; i < len(src); i++ {
		switch c := src[i]; c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		case '\'', '"', '`':
			for i++; i < len(src) && src[i] != c; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		}
	}
	return len(src)
}
