package bptree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bptreedb/internal/bufferpool"
	"bptreedb/internal/dblog"
	"bptreedb/internal/diskmanager"
	"bptreedb/internal/header"
	"bptreedb/internal/txn"
)

func TestVerifyIndexFileOnDiskRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verify.idx")

	dm, err := diskmanager.Open(path, diskmanager.BackendFile)
	require.NoError(t, err)

	bpm, err := bufferpool.New(64, dm, nil)
	require.NoError(t, err)

	hdr := header.New(bpm)
	tree, err := New[int32]("verify_pk", bpm, hdr, Int32Codec{}, CompareInt32, 4, 4)
	require.NoError(t, err)

	tx := txn.New(1)
	for i := int32(0); i < 25; i++ {
		_, err := tree.Insert(i, rid(int(i)), tx)
		require.NoError(t, err)
	}

	require.NoError(t, bpm.Close())
	require.NoError(t, dm.Close())

	err = VerifyIndexFile(path, "verify_pk", Int32Codec{}, CompareInt32, dblog.Nop{})
	require.NoError(t, err)
}

func TestVerifyIndexFileOnUnregisteredIndexIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.idx")

	dm, err := diskmanager.Open(path, diskmanager.BackendFile)
	require.NoError(t, err)
	require.NoError(t, dm.Close())

	err = VerifyIndexFile[int32](path, "missing", Int32Codec{}, CompareInt32, dblog.Nop{})
	require.NoError(t, err)
}
