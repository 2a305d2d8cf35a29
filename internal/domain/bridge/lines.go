package bridge

import "strings"

// UserLine maps a 1-based line reported for text (a whole document or a
// single script body) to the corresponding line of the user's source. It
// returns false when text has no delimiter or the line falls before user
// code.
func UserLine(text string, line int) (int, bool) {
	idx := strings.Index(text, Delimiter)
	if idx < 0 {
		return 0, false
	}
	delimiterLine := strings.Count(text[:idx], "\n") + 1
	userLine := line - delimiterLine
	if userLine < 1 {
		return 0, false
	}
	return userLine, true
}
