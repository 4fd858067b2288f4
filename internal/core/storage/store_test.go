package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name string `json:"name"`
}

func openMem(t *testing.T) *Engine {
	t.Helper()
	eng, err := Open(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestStore_PutGetDelete(t *testing.T) {
	s := NewStore(openMem(t), "tcf/test/")

	require.NoError(t, s.PutJSON("a", record{Name: "alpha"}))

	var got record
	require.NoError(t, s.GetJSON("a", &got))
	assert.Equal(t, "alpha", got.Name)

	require.NoError(t, s.Delete("a"))
	assert.True(t, IsNotFound(s.GetJSON("a", &got)))
}

func TestStore_PrefixIsolation(t *testing.T) {
	eng := openMem(t)
	a := NewStore(eng, "a/")
	b := NewStore(eng, "b/")

	require.NoError(t, a.PutJSON("x", record{Name: "in-a"}))
	require.NoError(t, b.PutJSON("y", record{Name: "in-b"}))

	var keys []string
	require.NoError(t, a.ForEachJSON(
		func() interface{} { return new(record) },
		func(key string, v interface{}) { keys = append(keys, key) },
	))
	assert.Equal(t, []string{"x"}, keys)
}

func TestStore_CorruptedEntrySkipped(t *testing.T) {
	eng := openMem(t)
	s := NewStore(eng, "p/")

	require.NoError(t, eng.Put([]byte("p/bad"), []byte("{not json")))
	require.NoError(t, s.PutJSON("good", record{Name: "ok"}))

	var names []string
	require.NoError(t, s.ForEachJSON(
		func() interface{} { return new(record) },
		func(_ string, v interface{}) { names = append(names, v.(*record).Name) },
	))
	assert.Equal(t, []string{"ok"}, names)

	var r record
	assert.ErrorIs(t, s.GetJSON("bad", &r), ErrCorrupted)
}

func TestEngine_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	eng, err := Open(Options{Path: dir})
	require.NoError(t, err)
	require.NoError(t, NewStore(eng, "p/").PutJSON("k", record{Name: "kept"}))
	require.NoError(t, eng.Close())

	eng, err = Open(Options{Path: dir})
	require.NoError(t, err)
	defer eng.Close()

	var r record
	require.NoError(t, NewStore(eng, "p/").GetJSON("k", &r))
	assert.Equal(t, "kept", r.Name)
}

func TestEngine_Closed(t *testing.T) {
	eng, err := Open(Options{})
	require.NoError(t, err)
	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, err = eng.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, eng.Put([]byte("k"), nil), ErrClosed)
	_, err = eng.Get(nil)
	assert.ErrorIs(t, err, ErrClosed)
}
