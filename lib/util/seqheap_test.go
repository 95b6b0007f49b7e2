package util

import (
	"testing"
)

// TestSeqHeapEmpty tests the creation of a new SeqHeap
func TestSeqHeapEmpty(t *testing.T) {
	h := NewSeqHeap()

	if h.Len() != 0 {
		t.Errorf("new heap should be empty, but has length %d", h.Len())
	}
	if _, _, ok := h.Min(); ok {
		t.Error("Min() on empty heap should report false")
	}
	if _, ok := h.Remove(3); ok {
		t.Error("Remove() on empty heap should report false")
	}
}

// TestSeqHeapMin tests that Min follows inserts, updates and removals
func TestSeqHeapMin(t *testing.T) {
	tests := []struct {
		name     string
		ops      func(h *SeqHeap)
		wantSlot int
		wantSeq  uint32
		wantLen  int
	}{
		{
			name: "inserts",
			ops: func(h *SeqHeap) {
				h.Set(0, 5)
				h.Set(1, 2)
				h.Set(2, 9)
			},
			wantSlot: 1, wantSeq: 2, wantLen: 3,
		},
		{
			name: "update moves slot behind others",
			ops: func(h *SeqHeap) {
				h.Set(0, 5)
				h.Set(1, 2)
				h.Set(2, 9)
				h.Set(1, 10)
			},
			wantSlot: 0, wantSeq: 5, wantLen: 3,
		},
		{
			name: "remove min",
			ops: func(h *SeqHeap) {
				h.Set(0, 5)
				h.Set(1, 2)
				h.Set(2, 9)
				h.Remove(1)
			},
			wantSlot: 0, wantSeq: 5, wantLen: 2,
		},
		{
			name: "equal sequence numbers prefer lower slot",
			ops: func(h *SeqHeap) {
				h.Set(4, 1)
				h.Set(2, 1)
				h.Set(3, 1)
			},
			wantSlot: 2, wantSeq: 1, wantLen: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSeqHeap()
			tt.ops(h)

			slot, seq, ok := h.Min()
			if !ok {
				t.Fatal("Min() should return an entry")
			}
			if slot != tt.wantSlot || seq != tt.wantSeq {
				t.Errorf("Min() = (%d,%d), want (%d,%d)", slot, seq, tt.wantSlot, tt.wantSeq)
			}
			if h.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", h.Len(), tt.wantLen)
			}
		})
	}
}

// TestSeqHeapLookup tests Seq and Contains
func TestSeqHeapLookup(t *testing.T) {
	h := NewSeqHeap()
	h.Set(7, 70)

	if !h.Contains(7) || h.Contains(8) {
		t.Fatal("Contains() returned wrong result")
	}
	if seq, ok := h.Seq(7); !ok || seq != 70 {
		t.Fatalf("Seq(7) = (%d,%v), want (70,true)", seq, ok)
	}
	if seq, ok := h.Remove(7); !ok || seq != 70 {
		t.Fatalf("Remove(7) = (%d,%v), want (70,true)", seq, ok)
	}
	if h.Contains(7) {
		t.Fatal("slot 7 should be gone")
	}
}
