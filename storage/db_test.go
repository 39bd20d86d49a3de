package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBMissingKeyReturnsNil(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	got, err := db.Get([]byte("absent"))
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	got, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)

	require.NoError(t, db1.Put([]byte("coin/1"), []byte("record")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("coin/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("record"), got)

	missing, err := db2.Get([]byte("coin/2"))
	require.NoError(t, err)
	require.Nil(t, missing)
}
