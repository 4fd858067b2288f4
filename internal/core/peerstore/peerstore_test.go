package peerstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tcf/internal/core/storage"
	"github.com/dep2p/go-tcf/pkg/types"
)

func openStore(t *testing.T, dir string) (*Store, *storage.Engine) {
	t.Helper()
	eng, err := storage.Open(storage.Options{Path: dir})
	require.NoError(t, err)
	return New(eng), eng
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s, eng := openStore(t, "")
	defer eng.Close()
	defer s.Close()

	s.Save(types.Attributes{types.AttrID: "a", types.AttrName: "alpha", types.AttrDNSName: "host.local"})
	s.Save(types.Attributes{types.AttrID: "b", types.AttrName: "beta"})
	require.NoError(t, s.Flush())

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, types.Attributes{types.AttrID: "a", types.AttrName: "alpha"}, loaded[0])

	s.Delete("a")
	require.NoError(t, s.Flush())
	loaded, err = s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b", loaded[0].ID())
}

func TestStore_WritesAreOrdered(t *testing.T) {
	s, eng := openStore(t, "")
	defer eng.Close()
	defer s.Close()

	for i := 0; i < 20; i++ {
		s.Save(types.Attributes{types.AttrID: "p", types.AttrName: string(rune('a' + i))})
	}
	s.Delete("p")
	s.Save(types.Attributes{types.AttrID: "p", types.AttrName: "last"})
	require.NoError(t, s.Flush())

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "last", loaded[0][types.AttrName])
}

func TestStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s, eng := openStore(t, dir)
	s.Save(types.Attributes{types.AttrID: "kept", types.AttrHost: "10.0.0.1"})
	require.NoError(t, s.Close())
	require.NoError(t, eng.Close())

	s, eng = openStore(t, dir)
	defer eng.Close()
	defer s.Close()

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "10.0.0.1", loaded[0][types.AttrHost])
}

func TestStore_Closed(t *testing.T) {
	s, eng := openStore(t, "")
	defer eng.Close()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Flush(), ErrClosed)
	s.Save(types.Attributes{types.AttrID: "dropped"})
}
