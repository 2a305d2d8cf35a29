package library

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Asset is one stylesheet or script, raw and not yet encoded
type Asset struct {
	Name    string
	Content []byte
}

// Digest returns the hex blake2b-256 of the asset content
func (a Asset) Digest() string {
	sum := blake2b.Sum256(a.Content)
	return hex.EncodeToString(sum[:])
}

// Library is a named set of assets attached to previews as a unit
type Library struct {
	Key        string
	Name       string
	Version    string
	CSS        []Asset
	JavaScript []Asset
}

// Registry is an ordered, immutable key -> Library mapping
type Registry struct {
	name  string
	keys  []string
	byKey map[string]Library
}

// NewRegistry builds a registry preserving the given order. Duplicate or
// empty keys are rejected.
func NewRegistry(name string, libs ...Library) (*Registry, error) {
	r := &Registry{
		name:  name,
		keys:  make([]string, 0, len(libs)),
		byKey: make(map[string]Library, len(libs)),
	}
	for _, lib := range libs {
		if lib.Key == "" {
			return nil, fmt.Errorf("registry %s: library with empty key", name)
		}
		if _, dup := r.byKey[lib.Key]; dup {
			return nil, fmt.Errorf("registry %s: duplicate library key %q", name, lib.Key)
		}
		r.keys = append(r.keys, lib.Key)
		r.byKey[lib.Key] = lib
	}
	return r, nil
}

// MustRegistry is NewRegistry for static definitions
func MustRegistry(name string, libs ...Library) *Registry {
	r, err := NewRegistry(name, libs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Empty returns a registry with no libraries
func Empty(name string) *Registry {
	return MustRegistry(name)
}

// Name identifies the registry in logs and metrics
func (r *Registry) Name() string {
	if r == nil {
		return ""
	}
	return r.name
}

// Lookup resolves key. A nil registry resolves nothing.
func (r *Registry) Lookup(key string) (Library, bool) {
	if r == nil {
		return Library{}, false
	}
	lib, ok := r.byKey[key]
	return lib, ok
}

// Keys returns keys in declared order
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Libraries returns libraries in declared order
func (r *Registry) Libraries() []Library {
	if r == nil {
		return nil
	}
	out := make([]Library, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.byKey[k])
	}
	return out
}

// Len returns the number of libraries
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// AssetInfo describes an asset without its content
type AssetInfo struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Digest string `json:"digest"`
}

// Summary describes a library for listings
type Summary struct {
	Key        string      `json:"key"`
	Name       string      `json:"name,omitempty"`
	Version    string      `json:"version,omitempty"`
	CSS        []AssetInfo `json:"css"`
	JavaScript []AssetInfo `json:"javascript"`
}

// Describe lists the registry contents in declared order
func (r *Registry) Describe() []Summary {
	libs := r.Libraries()
	out := make([]Summary, 0, len(libs))
	for _, lib := range libs {
		out = append(out, Summary{
			Key:        lib.Key,
			Name:       lib.Name,
			Version:    lib.Version,
			CSS:        describeAssets(lib.CSS),
			JavaScript: describeAssets(lib.JavaScript),
		})
	}
	return out
}

func describeAssets(assets []Asset) []AssetInfo {
	out := make([]AssetInfo, 0, len(assets))
	for _, a := range assets {
		out = append(out, AssetInfo{Name: a.Name, Size: len(a.Content), Digest: a.Digest()})
	}
	return out
}
