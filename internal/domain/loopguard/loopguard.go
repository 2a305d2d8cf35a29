// Package loopguard rewrites JavaScript so that every loop gives up after a
// wall-clock budget.
//
// Each loop statement (including its labels) is wrapped in a block that
// records a start time, and the loop body gains a check that breaks out once
// the budget is spent:
//
//	while (true) { tick(); }
//
// becomes
//
//	{var __lp0=Date.now();while (true) {if(Date.now()-__lp0>100)break; tick(); }}
//
// The rewrite only inserts text and never inserts newlines, so line numbers
// reported by the runtime still match the original source.
package loopguard

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
)

// DefaultBudget is how long a single loop may run before it is broken
const DefaultBudget = 100 * time.Millisecond

// Transform rewrites source so loops are bounded
type Transform interface {
	Rewrite(source string) (string, error)
}

// Func adapts a plain function to Transform
type Func func(source string) (string, error)

// Rewrite calls f
func (f Func) Rewrite(source string) (string, error) {
	return f(source)
}

// RewriteError reports source the rewriter could not parse
type RewriteError struct {
	Err error
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("loop rewrite: %v", e.Err)
}

func (e *RewriteError) Unwrap() error {
	return e.Err
}

// IsRewriteError reports whether err came from a failed rewrite
func IsRewriteError(err error) bool {
	var re *RewriteError
	return errors.As(err, &re)
}

// Rewriter is the goja-parser based Transform
type Rewriter struct {
	budgetMs int64
}

// New creates a rewriter. A non-positive budget selects DefaultBudget.
func New(budget time.Duration) *Rewriter {
	if budget <= 0 {
		budget = DefaultBudget
	}
	ms := budget.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return &Rewriter{budgetMs: ms}
}

// Budget returns the per-loop budget
func (r *Rewriter) Budget() time.Duration {
	return time.Duration(r.budgetMs) * time.Millisecond
}

// Rewrite parses source and bounds every loop in it. Source with no loops is
// returned unchanged.
func (r *Rewriter) Rewrite(source string) (string, error) {
	program, err := parser.ParseFile(nil, "", source, 0)
	if err != nil {
		return "", &RewriteError{Err: err}
	}

	sites := collectLoops(program, source)
	if len(sites) == 0 {
		return source, nil
	}

	var edits []edit
	for n, s := range sites {
		siteEdits, err := r.editsFor(source, n, s)
		if err != nil {
			return "", &RewriteError{Err: err}
		}
		edits = append(edits, siteEdits...)
	}
	out, err := apply(source, edits)
	if err != nil {
		return "", &RewriteError{Err: err}
	}
	return out, nil
}

func (r *Rewriter) editsFor(src string, n int, s site) ([]edit, error) {
	name := fmt.Sprintf("__lp%d", n)
	guard := fmt.Sprintf("if(Date.now()-%s>%d)break;", name, r.budgetMs)

	out := []edit{{at: s.start, text: "{var " + name + "=Date.now();"}}

	if block, ok := s.body.(*ast.BlockStatement); ok {
		out = append(out, edit{at: offset(block.LeftBrace) + 1, text: guard})
	} else {
		out = append(out,
			edit{at: s.bodyStart, text: "{" + guard},
			edit{at: stmtEnd(src, offset(s.body.Idx1())), text: "}", closer: true},
		)
	}
	out = append(out, edit{at: s.end, text: "}", closer: true})

	// Insertions must stay ordered within the loop's span
	for i := 1; i < len(out); i++ {
		if out[i].at < out[i-1].at {
			return nil, fmt.Errorf("loop %d: misplaced insertion at offset %d", n, out[i].at)
		}
	}
	return out, nil
}

// offset converts a 1-based parser position into a byte offset
func offset(idx file.Idx) int {
	return int(idx) - 1
}

// stmtEnd extends end over a trailing semicolon, which the parser leaves
// outside expression statements
func stmtEnd(src string, end int) int {
	if end > len(src) {
		return len(src)
	}
	i := end
	for i < len(src) && strings.IndexByte(" \t\r\n", src[i]) >= 0 {
		i++
	}
	if i < len(src) && src[i] == ';' {
		return i + 1
	}
	return end
}

type edit struct {
	at     int
	seq    int
	closer bool
	text   string
}

// apply inserts edits into src. At equal offsets closing braces go first,
// then openers in the order they were produced (outer loops before inner).
func apply(src string, edits []edit) (string, error) {
	for i := range edits {
		if edits[i].at < 0 || edits[i].at > len(src) {
			return "", fmt.Errorf("insertion at offset %d outside source of %d bytes", edits[i].at, len(src))
		}
		edits[i].seq = i
	}
	sort.Slice(edits, func(i, j int) bool {
		a, b := edits[i], edits[j]
		if a.at != b.at {
			return a.at < b.at
		}
		if a.closer != b.closer {
			return a.closer
		}
		return a.seq < b.seq
	})

	var sb strings.Builder
	size := len(src)
	for _, e := range edits {
		size += len(e.text)
	}
	sb.Grow(size)

	prev := 0
	for _, e := range edits {
		sb.WriteString(src[prev:e.at])
		sb.WriteString(e.text)
		prev = e.at
	}
	sb.WriteString(src[prev:])
	return sb.String(), nil
}
