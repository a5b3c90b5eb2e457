package page

import "testing"

func TestPinCountFloorsAtZero(t *testing.T) {
	p := New(1)
	if got := p.Unpin(); got != 0 {
		t.Fatalf("Unpin on fresh page: got %d, want 0", got)
	}

	p.Pin()
	p.Pin()
	if got := p.PinCount(); got != 2 {
		t.Fatalf("PinCount after two Pin: got %d, want 2", got)
	}
	p.Unpin()
	p.Unpin()
	p.Unpin()
	if got := p.PinCount(); got != 0 {
		t.Fatalf("PinCount after overshooting Unpin: got %d, want 0", got)
	}
}

func TestDirtyFlag(t *testing.T) {
	p := New(1)
	if p.Dirty() {
		t.Fatal("fresh page reported dirty")
	}
	p.MarkDirty()
	if !p.Dirty() {
		t.Fatal("MarkDirty did not set dirty flag")
	}
	p.ClearDirty()
	if p.Dirty() {
		t.Fatal("ClearDirty did not clear dirty flag")
	}
}

func TestResetClearsPayload(t *testing.T) {
	p := New(1)
	p.Data[0] = 0xFF
	p.MarkDirty()
	p.Reset(2)
	if p.ID != 2 {
		t.Fatalf("Reset id: got %d, want 2", p.ID)
	}
	if p.Data[0] != 0 {
		t.Fatal("Reset did not clear payload")
	}
	if p.Dirty() {
		t.Fatal("Reset did not clear dirty flag")
	}
}
