// Package project defines the Project record handed to the preview assembler.
package project

import "strings"

// NewProjectHTML is the markup a freshly created project starts with
const NewProjectHTML = `<!DOCTYPE html>
<html>
  <head>
    <title>Page Title</title>
  </head>
  <body>

  </body>
</html>
`

// Sources holds the three source fragments of a project. Any may be empty.
type Sources struct {
	HTML       string `json:"html"`
	CSS        string `json:"css"`
	JavaScript string `json:"javascript"`
}

// Project is the input to preview assembly. It is treated as immutable.
type Project struct {
	Key              string   `json:"projectKey,omitempty"`
	Sources          Sources  `json:"sources"`
	EnabledLibraries []string `json:"enabledLibraries"`
}

// New returns an empty project seeded with the new-project template
func New(key string) Project {
	return Project{
		Key:     key,
		Sources: Sources{HTML: NewProjectHTML},
	}
}

// Libraries returns the enabled library keys with set semantics: blanks and
// duplicates are dropped and first-seen order is kept.
func (p Project) Libraries() []string {
	return Dedupe(p.EnabledLibraries)
}

// HasLibrary reports whether key is enabled
func (p Project) HasLibrary(key string) bool {
	for _, k := range p.EnabledLibraries {
		if k == key {
			return true
		}
	}
	return false
}

// ToggleLibrary returns a copy of p with key added (at the end) or removed
func (p Project) ToggleLibrary(key string) Project {
	libs := make([]string, 0, len(p.EnabledLibraries)+1)
	found := false
	for _, k := range p.Libraries() {
		if k == key {
			found = true
			continue
		}
		libs = append(libs, k)
	}
	if !found {
		libs = append(libs, key)
	}

	out := p
	out.EnabledLibraries = libs
	return out
}

// WithSource returns a copy of p with one source slot replaced.
// Unknown languages leave the project unchanged.
func (p Project) WithSource(language, value string) Project {
	out := p
	switch strings.ToLower(language) {
	case "html":
		out.Sources.HTML = value
	case "css":
		out.Sources.CSS = value
	case "javascript", "js":
		out.Sources.JavaScript = value
	}
	return out
}

// Size returns the combined byte length of all sources
func (p Project) Size() int {
	return len(p.Sources.HTML) + len(p.Sources.CSS) + len(p.Sources.JavaScript)
}

// Dedupe removes blanks and duplicates while preserving order
func Dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
