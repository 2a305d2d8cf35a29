package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/livepreview/backend/internal/domain/bridge"
	"github.com/GriffinCanCode/livepreview/backend/internal/domain/preview"
	"github.com/GriffinCanCode/livepreview/backend/internal/shared/datauri"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// UserScriptName is the script name reported for errors in user code
const UserScriptName = "user.js"

var syntaxPosition = regexp.MustCompile(`Line (\d+):(\d+)`)

// page is the per-run state behind the globals a document sees. It is only
// touched from the goroutine running the VM.
type page struct {
	ctx    context.Context
	vm     *goja.Runtime
	dom    *DOM
	bridge Bridge
	config Config
	logger *zap.Logger

	messages    []string
	console     []LogEntry
	dialogs     []Dialog
	errors      []ScriptError
	dropped     int
	interrupted bool

	proxies   map[*html.Node]*goja.Object
	nodes     map[*goja.Object]*html.Node
	listeners map[*html.Node]map[string][]goja.Value

	timers   []*timer
	timerSeq int64
	clock    int64
}

type timer struct {
	id       int64
	due      int64
	interval int64
	repeat   bool
	fn       goja.Callable
	args     []goja.Value
}

func newPage(ctx context.Context, vm *goja.Runtime, dom *DOM, b Bridge, config Config, logger *zap.Logger) *page {
	return &page{
		ctx:       ctx,
		vm:        vm,
		dom:       dom,
		bridge:    b,
		config:    config,
		logger:    logger,
		proxies:   make(map[*html.Node]*goja.Object),
		nodes:     make(map[*goja.Object]*html.Node),
		listeners: make(map[*html.Node]map[string][]goja.Value),
	}
}

// install sets up the browser-like globals
func (p *page) install() error {
	global := p.vm.GlobalObject()

	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := global.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	parent := p.vm.NewObject()
	if err := parent.Set("postMessage", p.postMessage); err != nil {
		return err
	}

	console := p.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, p.consoleFunc(level)); err != nil {
			return err
		}
	}

	globals := map[string]interface{}{
		"window":        global,
		"self":          global,
		"parent":        parent,
		"top":           parent,
		"console":       console,
		"document":      p.document(),
		"alert":         p.dialog("alert", goja.Undefined()),
		"confirm":       p.dialog("confirm", p.vm.ToValue(false)),
		"prompt":        p.dialog("prompt", goja.Null()),
		"setTimeout":    p.setTimer(false),
		"setInterval":   p.setTimer(true),
		"clearTimeout":  p.clearTimer,
		"clearInterval": p.clearTimer,
	}
	for name, value := range globals {
		if err := p.vm.Set(name, value); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// runScript executes one script element. Library scripts arrive as data
// URIs; any other src is blocked since the sandbox has no network.
func (p *page) runScript(i int, s preview.Script, user bool) {
	name := fmt.Sprintf("inline-%d.js", i)
	source := s.Text
	if user {
		name = UserScriptName
	}

	if s.Src != "" {
		if !datauri.IsDataURI(s.Src) {
			p.warn("blocked external script: " + s.Src)
			return
		}
		data, _, err := datauri.Decode(s.Src)
		if err != nil {
			p.warn(fmt.Sprintf("unreadable script %d: %v", i, err))
			return
		}
		name = fmt.Sprintf("library-%d.js", i)
		source = string(data)
	}

	if _, err := p.vm.RunScript(name, source); err != nil {
		userText := ""
		if user {
			userText = source
		}
		p.handle(name, userText, err)
	}
}

// handle records an uncaught error and reports it to window.onerror
func (p *page) handle(script, userText string, err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		p.interrupted = true
		return
	}

	se := ScriptError{Script: script, Name: "Error", Message: err.Error()}
	errValue := goja.Value(goja.Null())

	var ex *goja.Exception
	var syntax *goja.CompilerSyntaxError
	switch {
	case errors.As(err, &ex):
		se = exceptionError(script, ex)
		if obj, ok := ex.Value().(*goja.Object); ok {
			errValue = obj
		}
	case errors.As(err, &syntax):
		se.Name = "SyntaxError"
	}
	if se.Line == 0 {
		if m := syntaxPosition.FindStringSubmatch(se.Message); m != nil {
			se.Line, _ = strconv.Atoi(m[1])
			se.Column, _ = strconv.Atoi(m[2])
		}
	}
	if se.Name == "SyntaxError" {
		se.Message = strings.TrimPrefix(se.Message, "SyntaxError: ")
	}
	if userText != "" {
		if line, ok := bridge.UserLine(userText, se.Line); ok {
			se.UserLine = line
		}
	}

	p.errors = append(p.errors, se)
	p.dispatchError(se, errValue)
}

func exceptionError(script string, ex *goja.Exception) ScriptError {
	se := ScriptError{Script: script, Name: "Error"}

	value := ex.Value()
	if obj, ok := value.(*goja.Object); ok {
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			se.Name = name.String()
		}
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			se.Message = msg.String()
		}
	} else if value != nil {
		se.Message = value.String()
	}

	for _, frame := range ex.Stack() {
		if pos := frame.Position(); pos.Line > 0 {
			se.Line, se.Column = pos.Line, pos.Column
			break
		}
	}
	return se
}

// dispatchError calls window.onerror the way a browser does for an uncaught
// error: (message, source, line, column, error)
func (p *page) dispatchError(se ScriptError, errValue goja.Value) {
	handler, ok := goja.AssertFunction(p.vm.GlobalObject().Get("onerror"))
	if !ok {
		return
	}

	_, err := handler(p.vm.GlobalObject(),
		p.vm.ToValue(se.Name+": "+se.Message),
		p.vm.ToValue(se.Script),
		p.vm.ToValue(se.Line),
		p.vm.ToValue(se.Column),
		errValue,
	)
	if err == nil {
		return
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		p.interrupted = true
		return
	}
	p.logger.Debug("onerror handler threw", zap.Error(err))
}

func (p *page) postMessage(call goja.FunctionCall) goja.Value {
	msg := p.serialize(call.Argument(0))
	p.messages = append(p.messages, msg)

	if p.bridge != nil {
		if err := p.bridge.Emit(p.ctx, msg); err != nil {
			p.dropped++
			p.logger.Debug("bridge refused message", zap.Error(err))
		}
	}
	return goja.Undefined()
}

// serialize turns a posted value into the string handed to the host
func (p *page) serialize(v goja.Value) string {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return v.String()
	}
	if s, ok := v.Export().(string); ok {
		return s
	}
	out, err := sonic.MarshalString(v.Export())
	if err != nil {
		return v.String()
	}
	return out
}

// consoleFunc creates a console function
func (p *page) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if !p.config.EnableConsole {
			return goja.Undefined()
		}

		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		p.console = append(p.console, LogEntry{
			Level:   level,
			Message: strings.Join(parts, " "),
			Time:    time.Now(),
		})
		return goja.Undefined()
	}
}

func (p *page) warn(message string) {
	p.logger.Debug(message)
	if p.config.EnableConsole {
		p.console = append(p.console, LogEntry{Level: "warn", Message: message, Time: time.Now()})
	}
}

// dialog records a blocking dialog call and answers it immediately
func (p *page) dialog(kind string, answer goja.Value) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		p.dialogs = append(p.dialogs, Dialog{Kind: kind, Message: str(call.Argument(0))})
		return answer
	}
}

func (p *page) setTimer(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return p.vm.ToValue(0)
		}

		delay := call.Argument(1).ToInteger()
		if delay < 0 {
			delay = 0
		}
		if repeat && delay == 0 {
			delay = 1
		}

		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		p.timerSeq++
		p.timers = append(p.timers, &timer{
			id:       p.timerSeq,
			due:      p.clock + delay,
			interval: delay,
			repeat:   repeat,
			fn:       fn,
			args:     args,
		})
		return p.vm.ToValue(p.timerSeq)
	}
}

func (p *page) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	for i, t := range p.timers {
		if t.id == id {
			p.timers = append(p.timers[:i], p.timers[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

// flushTimers runs queued callbacks in virtual time order until the queue
// drains or the callback budget is spent
func (p *page) flushTimers() {
	for runs := 0; runs < p.config.MaxTimerRuns && len(p.timers) > 0; runs++ {
		if p.interrupted || p.ctx.Err() != nil {
			p.interrupted = true
			return
		}

		next := 0
		for i, t := range p.timers {
			if t.due < p.timers[next].due {
				next = i
			}
		}
		t := p.timers[next]
		p.timers = append(p.timers[:next], p.timers[next+1:]...)
		p.clock = t.due
		if t.repeat {
			t.due += t.interval
			p.timers = append(p.timers, t)
		}

		if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
			p.handle(fmt.Sprintf("timer-%d", t.id), "", err)
		}
	}
}

func (p *page) result() *Result {
	return &Result{
		Messages:    p.messages,
		Console:     p.console,
		Dialogs:     p.dialogs,
		Errors:      p.errors,
		DOMChanges:  p.dom.Changes(),
		Document:    p.dom.HTML(),
		Interrupted: p.interrupted,
		Dropped:     p.dropped,
	}
}

// str converts a JS argument to a string, mapping undefined and null to ""
func str(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
