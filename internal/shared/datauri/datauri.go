// Package datauri encodes and decodes the base64 data URIs used to embed
// library assets into a preview document.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// CSS is the media type prefix for stylesheet assets
	CSS = "text/css;charset=utf-8"
	// JavaScript is the media type prefix for script assets
	JavaScript = "text/javascript;charset=utf-8"
)

var ErrNotDataURI = errors.New("not a base64 data URI")

// Encode returns "data:<mediaType>;base64,<payload>" using standard base64
func Encode(mediaType string, content []byte) string {
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(content)))
	sb.WriteString("data:")
	sb.WriteString(mediaType)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(content))
	return sb.String()
}

// Decode parses a base64 data URI, returning the payload and its media type
func Decode(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", ErrNotDataURI
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrNotDataURI
	}

	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", ErrNotDataURI
	}

	content, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode payload: %w", err)
	}
	return content, mediaType, nil
}

// IsDataURI reports whether s looks like a data URI
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}
