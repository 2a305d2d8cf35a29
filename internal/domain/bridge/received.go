package bridge

// Received is an incoming preview message after decoding
type Received struct {
	Raw      string    `json:"raw"`
	Envelope *Envelope `json:"envelope,omitempty"`
	// UserLine is the error line in the user's source, when it falls in
	// user code
	UserLine int    `json:"userLine,omitempty"`
	Invalid  string `json:"invalid,omitempty"`
}

// Decode parses raw and correlates its error line against text, the
// document or script the line was reported for. Malformed messages are
// returned with Invalid set rather than as an error.
func Decode(raw, text string) Received {
	r := Received{Raw: raw}
	env, err := ParseEnvelope(raw)
	if err != nil {
		r.Invalid = err.Error()
		return r
	}
	r.Envelope = env
	if env.Error != nil && env.Error.Line > 0 {
		if line, ok := UserLine(text, env.Error.Line); ok {
			r.UserLine = line
		}
	}
	return r
}

// Type returns the envelope type, or "invalid"
func (r Received) Type() string {
	if r.Envelope == nil {
		return "invalid"
	}
	return r.Envelope.Type
}
