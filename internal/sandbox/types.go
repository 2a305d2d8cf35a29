package sandbox

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed      = errors.New("sandbox runtime is closed")
	ErrInterrupted = errors.New("sandbox run interrupted")
)

// Config defines sandbox configuration
type Config struct {
	Timeout          time.Duration // Whole-run timeout, including timers
	MaxCallStackSize int           // goja call stack limit
	AcquireTimeout   time.Duration // Pool acquisition timeout
	MaxTimerRuns     int           // Timer callbacks run after the page scripts
	EnableConsole    bool          // Record console output
}

// Result holds the observable outcome of a page run
type Result struct {
	Messages    []string      // Strings posted to window.parent, in order
	Console     []LogEntry    // Console output
	Dialogs     []Dialog      // alert/confirm/prompt calls that reached the default handlers
	Errors      []ScriptError // Uncaught errors, in order
	DOMChanges  []DOMChange   // DOM modifications
	Document    string        // Serialized document after the run
	Duration    time.Duration // Execution time
	Interrupted bool          // Stopped by timeout or cancellation
	Dropped     int           // Messages the bridge refused
}

// Status summarizes a result for metrics and logs
func (r *Result) Status() string {
	switch {
	case r.Interrupted:
		return "interrupted"
	case len(r.Errors) > 0:
		return "error"
	default:
		return "ok"
	}
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Dialog records a call to one of the blocking dialog functions
type Dialog struct {
	Kind    string `json:"kind"` // alert, confirm, prompt
	Message string `json:"message"`
}

// ScriptError is an uncaught error raised by a page script
type ScriptError struct {
	Script   string `json:"script"`
	Name     string `json:"name"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	UserLine int    `json:"userLine,omitempty"` // Line in the user's source, when the error is in user code
}

// DOMChange represents a DOM modification
type DOMChange struct {
	Type     string `json:"type"`   // append, remove, set_attribute, remove_attribute, set_text, set_html
	Target   string `json:"target"` // Short description such as div#id.class
	Property string `json:"property,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Bridge is the one-way channel from page scripts to the host
type Bridge interface {
	Emit(ctx context.Context, message string) error
}

// Default configuration
func DefaultConfig() Config {
	return Config{
		Timeout:          5 * time.Second,
		MaxCallStackSize: 1024,
		AcquireTimeout:   5 * time.Second,
		MaxTimerRuns:     1000,
		EnableConsole:    true,
	}
}
