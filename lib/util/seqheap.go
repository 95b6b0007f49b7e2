package util

import (
	"container/heap"
	"strconv"
)

// SeqHeap is a min-heap of slot indexes ordered by sequence number, with
// O(1) lookup by slot. The permanent store uses it to find the slot holding
// the oldest write without scanning.
//
// Operations:
//   - Set:    O(log n), inserts a slot or moves it to its new sequence number
//   - Remove: O(log n)
//   - Min:    O(1)
//
// SeqHeap is not safe for concurrent use, callers guard it with the same
// lock that guards the slots it indexes.
type SeqHeap struct {
	entries []*seqEntry
	bySlot  map[int]*seqEntry
}

type seqEntry struct {
	slot  int
	seq   uint32
	index int // position in entries, maintained by the heap methods
}

func (e *seqEntry) String() string {
	return "{slot: " + strconv.Itoa(e.slot) + ", seq: " + strconv.FormatUint(uint64(e.seq), 10) + "}"
}

// NewSeqHeap creates an empty heap.
func NewSeqHeap() *SeqHeap {
	return &SeqHeap{
		entries: make([]*seqEntry, 0),
		bySlot:  make(map[int]*seqEntry),
	}
}

// --------------------------------------------------------------------------
// heap.Interface
// --------------------------------------------------------------------------

func (h *SeqHeap) Len() int { return len(h.entries) }

func (h *SeqHeap) Less(i, j int) bool {
	// ties are broken by slot index so the result is deterministic
	if h.entries[i].seq == h.entries[j].seq {
		return h.entries[i].slot < h.entries[j].slot
	}
	return h.entries[i].seq < h.entries[j].seq
}

func (h *SeqHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *SeqHeap) Push(x interface{}) {
	e := x.(*seqEntry)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
	h.bySlot[e.slot] = e
}

func (h *SeqHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	h.entries = old[:n-1]
	delete(h.bySlot, e.slot)
	return e
}

// --------------------------------------------------------------------------
// Slot operations
// --------------------------------------------------------------------------

// Set records seq for slot, inserting the slot if it is not indexed yet.
func (h *SeqHeap) Set(slot int, seq uint32) {
	if e, ok := h.bySlot[slot]; ok {
		e.seq = seq
		heap.Fix(h, e.index)
		return
	}
	heap.Push(h, &seqEntry{slot: slot, seq: seq})
}

// Remove drops slot from the index and returns its sequence number.
func (h *SeqHeap) Remove(slot int) (uint32, bool) {
	e, ok := h.bySlot[slot]
	if !ok {
		return 0, false
	}
	heap.Remove(h, e.index)
	return e.seq, true
}

// Min returns the slot with the smallest sequence number.
func (h *SeqHeap) Min() (slot int, seq uint32, ok bool) {
	if len(h.entries) == 0 {
		return 0, 0, false
	}
	return h.entries[0].slot, h.entries[0].seq, true
}

// Seq returns the sequence number recorded for slot.
func (h *SeqHeap) Seq(slot int) (uint32, bool) {
	e, ok := h.bySlot[slot]
	if !ok {
		return 0, false
	}
	return e.seq, true
}

// Contains reports whether slot is indexed.
func (h *SeqHeap) Contains(slot int) bool {
	_, ok := h.bySlot[slot]
	return ok
}
