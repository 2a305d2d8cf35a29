package bridge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// MaxEnvelopeBytes bounds a single incoming message
const MaxEnvelopeBytes = 64 << 10

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
)

// ErrorPayload describes an uncaught error raised inside the preview
type ErrorPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

// Envelope is a message posted from the preview to its host
type Envelope struct {
	Type  string        `json:"type"`
	Error *ErrorPayload `json:"error,omitempty"`
}

// String renders the error the way a console would
func (p ErrorPayload) String() string {
	if p.Message == "" {
		return p.Name
	}
	return p.Name + ": " + p.Message
}

// wire mirrors Envelope with every field optional so missing values can be
// told apart from zero values
type wire struct {
	Type  *string `json:"type"`
	Error *struct {
		Name    *string  `json:"name"`
		Message *string  `json:"message"`
		Line    *float64 `json:"line"`
		Column  *float64 `json:"column"`
	} `json:"error"`
}

// ParseEnvelope decodes a message received from a preview. Input is
// untrusted: unknown types, missing fields and wrongly typed fields are
// rejected.
func ParseEnvelope(raw string) (*Envelope, error) {
	if len(raw) > MaxEnvelopeBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedMessage, len(raw))
	}
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedMessage)
	}

	var w wire
	if err := sonic.UnmarshalString(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if w.Type == nil {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if *w.Type != MessageTypeError {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, *w.Type)
	}
	if w.Error == nil {
		return nil, fmt.Errorf("%w: missing error", ErrMalformedMessage)
	}

	payload := &ErrorPayload{Name: "Error"}
	if w.Error.Name != nil && *w.Error.Name != "" {
		payload.Name = *w.Error.Name
	}
	if w.Error.Message != nil {
		payload.Message = *w.Error.Message
	}
	var err error
	if payload.Line, err = position("line", w.Error.Line); err != nil {
		return nil, err
	}
	if payload.Column, err = position("column", w.Error.Column); err != nil {
		return nil, err
	}

	return &Envelope{Type: *w.Type, Error: payload}, nil
}

func position(field string, v *float64) (int, error) {
	if v == nil {
		return 0, nil
	}
	if *v < 0 || *v != float64(int(*v)) {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrMalformedMessage, field)
	}
	return int(*v), nil
}
