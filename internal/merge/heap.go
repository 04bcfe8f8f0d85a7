package merge

import (
	"github.com/freeeve/linesort/internal/record"
)

// cursorHeap implements heap.Interface over live cursors for k-way merge
type cursorHeap []*Cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, _ := h[i].Head()
	b, _ := h[j].Head()
	if cmp := record.Compare(a, b); cmp != 0 {
		return cmp < 0
	}
	// Equal heads: lower cursor index wins so selection stays deterministic
	return h[i].index < h[j].index
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) {
	*h = append(*h, x.(*Cursor))
}

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
