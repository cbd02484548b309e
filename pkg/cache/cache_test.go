package cache

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarle/cvet/pkg/frontend"
	"github.com/quarle/cvet/pkg/program"
)

func unit(path string, fns ...string) *frontend.File {
	f := &frontend.File{Path: path}
	for _, name := range fns {
		f.Functions = append(f.Functions, &program.Function{
			Name: name,
			File: path,
			Line: 1,
			Body: &program.Stmt{Kind: program.StmtBlock},
		})
	}
	return f
}

func TestParseCache_Basic(t *testing.T) {
	c := New(Options{MaxEntries: 3})

	c.Put("a", unit("a.c", "fa"))
	c.Put("b", unit("b.c", "fb"))
	c.Put("c", unit("c.c", "fc"))

	assert.Equal(t, 3, c.Len())

	f, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "a.c", f.Path)

	f, found = c.Get("b")
	require.True(t, found)
	assert.Equal(t, "b.c", f.Path)
}

func TestParseCache_LRU_Eviction(t *testing.T) {
	c := New(Options{MaxEntries: 3})

	c.Put("a", unit("a.c"))
	c.Put("b", unit("b.c"))
	c.Put("c", unit("c.c"))

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Put("d", unit("d.c"))

	assert.Equal(t, 3, c.Len())

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")

	_, found = c.Get("a")
	assert.True(t, found, "a should still be present")

	_, found = c.Get("c")
	assert.True(t, found, "c should still be present")

	_, found = c.Get("d")
	assert.True(t, found, "d should be present")
}

func TestParseCache_Delete(t *testing.T) {
	c := New(Options{MaxEntries: 10})

	c.Put("a", unit("a.c"))
	c.Put("b", unit("b.c"))

	c.Delete("a")

	assert.Equal(t, 1, c.Len())

	_, found := c.Get("a")
	assert.False(t, found)

	f, found := c.Get("b")
	require.True(t, found)
	assert.Equal(t, "b.c", f.Path)
}

func TestParseCache_Clear(t *testing.T) {
	c := New(Options{MaxEntries: 10})

	c.Put("a", unit("a.c"))
	c.Put("b", unit("b.c"))

	c.Clear()

	assert.Equal(t, 0, c.Len())
}

func TestParseCache_Update(t *testing.T) {
	c := New(Options{MaxEntries: 10})

	c.Put("a", unit("v1.c"))
	c.Put("a", unit("v2.c"))

	f, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "v2.c", f.Path)

	assert.Equal(t, 1, c.Len())
}

func TestParseCache_SaveLoad(t *testing.T) {
	c := New(Options{MaxEntries: 10})
	c.Put("key1", unit("one.c", "alpha", "beta"))
	c.Put("key2", unit("two.c", "gamma"))

	var buf bytes.Buffer
	err := c.Save(&buf)
	require.NoError(t, err)

	c2 := New(Options{MaxEntries: 10})
	err = c2.Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, 2, c2.Len())

	f, found := c2.Get("key1")
	require.True(t, found)
	assert.Equal(t, "one.c", f.Path)
	require.Len(t, f.Functions, 2)
	assert.Equal(t, "alpha", f.Functions[0].Name)
}

func TestParseCache_SaveLoadPreservesRecency(t *testing.T) {
	c := New(Options{MaxEntries: 3})
	c.Put("a", unit("a.c"))
	c.Put("b", unit("b.c"))
	c.Put("c", unit("c.c"))
	c.Get("a")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	c2 := New(Options{MaxEntries: 3})
	require.NoError(t, c2.Load(&buf))

	// 'b' is still the least recently used after the roundtrip
	c2.Put("d", unit("d.c"))
	_, found := c2.Get("b")
	assert.False(t, found, "b should have been evicted after reload")
}

func TestParseCache_LoadCorrupt(t *testing.T) {
	c := New(Options{MaxEntries: 10})
	err := c.Load(bytes.NewReader([]byte("not msgpack at all")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseCache_PersistRestore(t *testing.T) {
	dir := t.TempDir()

	c := New(Options{MaxEntries: 10, Dir: dir})
	c.Put("key1", unit("one.c", "alpha"))

	require.NoError(t, c.Persist())

	c2 := New(Options{MaxEntries: 10, Dir: dir})
	require.NoError(t, c2.Restore())

	f, found := c2.Get("key1")
	require.True(t, found)
	assert.Equal(t, "one.c", f.Path)
}

func TestParseCache_RestoreMissingFile(t *testing.T) {
	c := New(Options{MaxEntries: 10, Dir: t.TempDir()})

	err := c.Restore()
	require.NoError(t, err, "restoring from an empty directory should not error")
	assert.Equal(t, 0, c.Len())
}

func TestParseCache_Stats(t *testing.T) {
	c := New(Options{MaxEntries: 10})

	c.Put("key1", unit("one.c"))
	c.Get("key1")
	c.Get("key2")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestKey(t *testing.T) {
	h1 := Key([]byte("int main(void) { return 0; }"))
	h2 := Key([]byte("int main(void) { return 0; }"))
	h3 := Key([]byte("int main(void) { return 1; }"))

	assert.Equal(t, h1, h2, "same content should produce same key")
	assert.NotEqual(t, h1, h3, "different content should produce different keys")
	assert.Len(t, h1, 64, "SHA256 key should be 64 hex characters")
}
