package library

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

const (
	UserRegistryName  = "user"
	FrameRegistryName = "frame"

	// MaxAssetBytes caps a single local asset
	MaxAssetBytes = 4 << 20
)

// Fetcher downloads remote assets
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Registries are the two lookups consulted during assembly
type Registries struct {
	User  *Registry
	Frame *Registry
}

// DefaultRegistries has no user libraries and the builtin frame libraries
func DefaultRegistries() Registries {
	return Registries{
		User:  Empty(UserRegistryName),
		Frame: DefaultFrameRegistry(),
	}
}

// Loader builds registries from manifests on disk
type Loader struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewLoader creates a loader. fetcher may be nil, in which case remote asset
// references are rejected.
func NewLoader(fetcher Fetcher, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{fetcher: fetcher, logger: logger.Named("library")}
}

// Load scans dir recursively for manifests. Libraries marked frame go to the
// frame registry after the builtin ones; the rest form the user registry.
// Order within each registry follows manifest path order.
func (l *Loader) Load(ctx context.Context, dir string) (Registries, error) {
	if dir == "" {
		return DefaultRegistries(), nil
	}

	paths, err := l.discover(ctx, dir)
	if err != nil {
		return Registries{}, err
	}

	var user, frame []Library
	frame = append(frame, Builtin()...)

	for _, path := range paths {
		m, err := ReadManifest(path)
		if err != nil {
			return Registries{}, fmt.Errorf("library manifest %s: %w", path, err)
		}

		lib, err := l.build(ctx, m, filepath.Dir(path))
		if err != nil {
			return Registries{}, fmt.Errorf("library %q (%s): %w", m.Key, path, err)
		}

		l.logger.Debug("loaded library",
			zap.String("key", lib.Key),
			zap.Bool("frame", m.Frame),
			zap.Int("css", len(lib.CSS)),
			zap.Int("javascript", len(lib.JavaScript)),
		)

		if m.Frame {
			frame = append(frame, lib)
		} else {
			user = append(user, lib)
		}
	}

	userReg, err := NewRegistry(UserRegistryName, user...)
	if err != nil {
		return Registries{}, err
	}
	frameReg, err := NewRegistry(FrameRegistryName, frame...)
	if err != nil {
		return Registries{}, err
	}

	l.logger.Info("library registries loaded",
		zap.String("dir", dir),
		zap.Int("user", userReg.Len()),
		zap.Int("frame", frameReg.Len()),
	)
	return Registries{User: userReg, Frame: frameReg}, nil
}

func (l *Loader) discover(ctx context.Context, dir string) ([]string, error) {
	var (
		mu    sync.Mutex
		paths []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() || !IsManifest(p) {
			return nil
		}
		mu.Lock()
		paths = append(paths, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	sort.Strings(paths)
	return paths, nil
}

func (l *Loader) build(ctx context.Context, m Manifest, base string) (Library, error) {
	cssRefs, err := m.CSSRefs()
	if err != nil {
		return Library{}, err
	}
	jsRefs, err := m.JavaScriptRefs()
	if err != nil {
		return Library{}, err
	}

	lib := Library{Key: m.Key, Name: m.Name, Version: m.Version}
	if lib.CSS, err = l.resolve(ctx, base, cssRefs); err != nil {
		return Library{}, err
	}
	if lib.JavaScript, err = l.resolve(ctx, base, jsRefs); err != nil {
		return Library{}, err
	}
	return lib, nil
}

// resolve expands references in listed order; a glob contributes its
// matches in lexical order
func (l *Loader) resolve(ctx context.Context, base string, refs []string) ([]Asset, error) {
	var assets []Asset
	for _, ref := range refs {
		if isRemote(ref) {
			a, err := l.fetch(ctx, ref)
			if err != nil {
				return nil, err
			}
			assets = append(assets, a)
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(base), filepath.ToSlash(ref), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", ref, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("asset %q: no files match", ref)
		}
		sort.Strings(matches)

		for _, match := range matches {
			data, err := readLimited(filepath.Join(base, filepath.FromSlash(match)))
			if err != nil {
				return nil, fmt.Errorf("asset %q: %w", match, err)
			}
			text, err := toUTF8(data)
			if err != nil {
				return nil, fmt.Errorf("asset %q: %w", match, err)
			}
			assets = append(assets, Asset{Name: match, Content: text})
		}
	}
	return assets, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (Asset, error) {
	if l.fetcher == nil {
		return Asset{}, fmt.Errorf("asset %q: remote assets are disabled", url)
	}
	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q: %w", url, err)
	}
	text, err := toUTF8(data)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %q: %w", url, err)
	}
	return Asset{Name: url, Content: text}, nil
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxAssetBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxAssetBytes {
		return nil, fmt.Errorf("larger than %d bytes", MaxAssetBytes)
	}
	return data, nil
}

// toUTF8 rejects binary content and transcodes legacy encodings
func toUTF8(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	if !isText(data) {
		return nil, fmt.Errorf("binary content (%s)", mimetype.Detect(data).String())
	}
	if utf8.Valid(data) {
		return data, nil
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return nil, fmt.Errorf("not utf-8 and charset unknown")
	}

	r, err := charset.NewReaderLabel(result.Charset, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("transcode from %s: %w", result.Charset, err)
	}
	return io.ReadAll(r)
}

func isText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
