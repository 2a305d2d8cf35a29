package library

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOrderAndLookup(t *testing.T) {
	reg, err := NewRegistry("user",
		Library{Key: "zepto"},
		Library{Key: "alpha"},
		Library{Key: "mid"},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"zepto", "alpha", "mid"}, reg.Keys())
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, "user", reg.Name())

	lib, ok := reg.Lookup("alpha")
	assert.True(t, ok)
	assert.Equal(t, "alpha", lib.Key)

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsBadKeys(t *testing.T) {
	_, err := NewRegistry("user", Library{Key: "a"}, Library{Key: "a"})
	assert.Error(t, err)

	_, err = NewRegistry("user", Library{})
	assert.Error(t, err)

	assert.Panics(t, func() { MustRegistry("user", Library{Key: "x"}, Library{Key: "x"}) })
}

func TestNilRegistry(t *testing.T) {
	var reg *Registry

	_, ok := reg.Lookup("anything")
	assert.False(t, ok)
	assert.Nil(t, reg.Keys())
	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.Describe())
}

func TestRegistryKeysIsACopy(t *testing.T) {
	reg := MustRegistry("user", Library{Key: "a"}, Library{Key: "b"})
	keys := reg.Keys()
	keys[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, reg.Keys())
}

func TestAssetDigest(t *testing.T) {
	a := Asset{Content: []byte("console.log(1)")}
	b := Asset{Content: []byte("console.log(2)")}

	digest := a.Digest()
	raw, err := hex.DecodeString(digest)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
	assert.Equal(t, digest, Asset{Name: "other", Content: []byte("console.log(1)")}.Digest())
	assert.NotEqual(t, digest, b.Digest())
}

func TestDescribe(t *testing.T) {
	reg := MustRegistry("user", Library{
		Key:        "foo",
		Version:    "1.2.3",
		CSS:        []Asset{{Name: "foo.css", Content: []byte("a{}")}},
		JavaScript: []Asset{{Name: "a.js", Content: []byte("A")}, {Name: "b.js", Content: []byte("BB")}},
	})

	summary := reg.Describe()
	require.Len(t, summary, 1)
	assert.Equal(t, "foo", summary[0].Key)
	assert.Equal(t, "1.2.3", summary[0].Version)
	require.Len(t, summary[0].JavaScript, 2)
	assert.Equal(t, "a.js", summary[0].JavaScript[0].Name)
	assert.Equal(t, 2, summary[0].JavaScript[1].Size)
	assert.Equal(t, reg.Libraries()[0].CSS[0].Digest(), summary[0].CSS[0].Digest)
}

func TestBuiltin(t *testing.T) {
	frame := DefaultFrameRegistry()
	assert.Equal(t, []string{SwalKey}, frame.Keys())

	lib, ok := frame.Lookup(SwalKey)
	require.True(t, ok)
	require.Len(t, lib.JavaScript, 1)
	require.Len(t, lib.CSS, 1)
	assert.Contains(t, string(lib.JavaScript[0].Content), "window.swal = swal")
	assert.Contains(t, string(lib.CSS[0].Content), ".swal-overlay")
}
