package bufferpool

import (
	"path/filepath"
	"testing"

	"bptreedb/internal/diskmanager"
	"bptreedb/internal/xerrors"
)

func newTestPool(t *testing.T, capacity int) (*Manager, *diskmanager.Manager) {
	t.Helper()
	dm, err := diskmanager.Open(filepath.Join(t.TempDir(), "bp.idx"), diskmanager.BackendFile)
	if err != nil {
		t.Fatalf("open disk manager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })

	bpm, err := New(capacity, dm, nil)
	if err != nil {
		t.Fatalf("new buffer pool: %v", err)
	}
	t.Cleanup(func() { bpm.Close() })
	return bpm, dm
}

func TestNewPageThenFetchRoundTrip(t *testing.T) {
	bpm, _ := newTestPool(t, 4)

	pg, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	pg.Data[0] = 0x42
	id := pg.ID
	if err := bpm.UnpinPage(id, true); err != nil {
		t.Fatalf("UnpinPage: %v", err)
	}
	if err := bpm.FlushPage(id); err != nil {
		t.Fatalf("FlushPage: %v", err)
	}

	fetched, err := bpm.FetchPage(id)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if fetched.Data[0] != 0x42 {
		t.Fatalf("FetchPage: payload not preserved across flush and fetch")
	}
	bpm.UnpinPage(id, false)
}

func TestEvictionSkipsPinnedPages(t *testing.T) {
	bpm, _ := newTestPool(t, 2)

	p1, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage 1: %v", err)
	}
	p2, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage 2: %v", err)
	}
	// Both pages remain pinned; a third allocation has nothing to evict.
	if _, err := bpm.NewPage(); err != xerrors.ErrAllPinned {
		t.Fatalf("NewPage with all frames pinned: got err %v, want %v", err, xerrors.ErrAllPinned)
	}

	bpm.UnpinPage(p1.ID, false)
	p3, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage after freeing a frame: %v", err)
	}
	if p3.ID == p2.ID {
		t.Fatal("NewPage evicted a still-pinned page")
	}
	bpm.UnpinPage(p2.ID, false)
	bpm.UnpinPage(p3.ID, false)
}

func TestDeletePageRejectsPinned(t *testing.T) {
	bpm, _ := newTestPool(t, 4)

	pg, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	if err := bpm.DeletePage(pg.ID); err == nil {
		t.Fatal("DeletePage on a pinned page: expected error, got nil")
	}
	bpm.UnpinPage(pg.ID, false)
	if err := bpm.DeletePage(pg.ID); err != nil {
		t.Fatalf("DeletePage after unpin: %v", err)
	}
}
