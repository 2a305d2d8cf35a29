package library

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Manifest file names recognized by the loader
var manifestNames = map[string]bool{
	"library.yaml": true,
	"library.yml":  true,
	"library.toml": true,
}

// Manifest is the on-disk description of a library. CSS and JavaScript
// accept either a single reference or a list; each reference is a glob
// relative to the manifest directory or an http(s) URL.
type Manifest struct {
	Key        string `yaml:"key" toml:"key"`
	Name       string `yaml:"name" toml:"name"`
	Version    string `yaml:"version" toml:"version"`
	Frame      bool   `yaml:"frame" toml:"frame"`
	CSS        any    `yaml:"css" toml:"css"`
	JavaScript any    `yaml:"javascript" toml:"javascript"`
}

// IsManifest reports whether path names a library manifest
func IsManifest(path string) bool {
	return manifestNames[strings.ToLower(filepath.Base(path))]
}

// ReadManifest parses a YAML or TOML manifest. A missing key defaults to the
// manifest directory name.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	if m.Key == "" {
		m.Key = filepath.Base(filepath.Dir(path))
	}
	return m, nil
}

// CSSRefs returns the stylesheet references as a list
func (m Manifest) CSSRefs() ([]string, error) {
	refs, err := castList(m.CSS)
	if err != nil {
		return nil, fmt.Errorf("css: %w", err)
	}
	return refs, nil
}

// JavaScriptRefs returns the script references as a list
func (m Manifest) JavaScriptRefs() ([]string, error) {
	refs, err := castList(m.JavaScript)
	if err != nil {
		return nil, fmt.Errorf("javascript: %w", err)
	}
	return refs, nil
}

// castList normalizes a one-or-many value to a list
func castList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("entry %d: expected string, got %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %T", v)
	}
}
