package library

import (
	"embed"
)

//go:embed builtin/*
var builtinFS embed.FS

// SwalKey is the preview-frame library providing the non-blocking alert
// replacement installed as window.swal
const SwalKey = "sweetalert"

// Builtin returns the preview-frame libraries compiled into the binary, in
// declared order
func Builtin() []Library {
	return []Library{
		{
			Key:        SwalKey,
			Name:       "Non-blocking alert",
			Version:    "1.0.0",
			CSS:        []Asset{mustAsset("builtin/swal.css")},
			JavaScript: []Asset{mustAsset("builtin/swal.js")},
		},
	}
}

// DefaultFrameRegistry holds only the builtin preview-frame libraries
func DefaultFrameRegistry() *Registry {
	return MustRegistry(FrameRegistryName, Builtin()...)
}

func mustAsset(name string) Asset {
	data, err := builtinFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return Asset{Name: name, Content: data}
}
