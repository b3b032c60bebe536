// Package enginetest provides an in-process stand-in for the native engine.
//
// Its entry points have the exact Go types the bridge binds native symbols
// to, and every string it returns lives in a fake native heap that records
// allocations and frees, so tests can check the ownership discipline without
// loading a shared library.
package enginetest

import (
	"sync"
	"unsafe"
)

// Heap hands out NUL-terminated buffers and accounts for their release.
type Heap struct {
	mu      sync.Mutex
	live    map[uintptr][]byte
	freed   map[uintptr][]byte
	frees   map[uintptr]int
	allocs  int
	invalid int
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{
		live:  make(map[uintptr][]byte),
		freed: make(map[uintptr][]byte),
		frees: make(map[uintptr]int),
	}
}

// String allocates s. The empty string is returned as a null pointer, the
// way the engine reports an absent value.
func (h *Heap) String(s string) uintptr {
	if s == "" {
		return 0
	}
	return h.Bytes([]byte(s))
}

// Bytes allocates raw bytes, which need not be valid UTF-8.
func (h *Heap) Bytes(b []byte) uintptr {
	buf := make([]byte, len(b)+1)
	copy(buf, b)
	ptr := uintptr(unsafe.Pointer(&buf[0]))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.live[ptr] = buf
	h.allocs++
	return ptr
}

// Free releases ptr. Freeing null is a no-op. Freed buffers are retained so
// their addresses are never reused within one heap.
func (h *Heap) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frees[ptr]++
	if buf, ok := h.live[ptr]; ok {
		delete(h.live, ptr)
		h.freed[ptr] = buf
		return
	}
	if _, ok := h.freed[ptr]; !ok {
		h.invalid++
	}
}

// FreeCount returns how many times ptr was passed to Free.
func (h *Heap) FreeCount(ptr uintptr) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frees[ptr]
}

// TotalFrees returns the number of non-null Free calls.
func (h *Heap) TotalFrees() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.frees {
		n += c
	}
	return n
}

// Allocs returns the number of allocations made.
func (h *Heap) Allocs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocs
}

// Outstanding returns the number of buffers not yet freed.
func (h *Heap) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// DoubleFrees returns the number of pointers freed more than once.
func (h *Heap) DoubleFrees() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.frees {
		if c > 1 {
			n++
		}
	}
	return n
}

// InvalidFrees returns the number of frees of pointers this heap never
// allocated.
func (h *Heap) InvalidFrees() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invalid
}

// goString reads a NUL-terminated argument passed by the bridge.
func goString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}
