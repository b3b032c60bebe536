package bridge

import (
	"unicode/utf8"
	"unsafe"
)

// cStringBytes copies the NUL-terminated byte sequence at ptr into Go
// memory. ptr must be non-zero and valid for reading.
func cStringBytes(ptr uintptr) []byte {
	// ptr is an engine allocation outside the Go heap, so the GC neither
	// tracks nor moves it and the conversion is sound.
	p := unsafe.Pointer(ptr)
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

// nativeString is a scoped handle on a string buffer allocated by the
// engine. It is released through FreeString at most once.
type nativeString struct {
	ptr  uintptr
	free FreeFunc
}

func (b *Bridge) acquire(ptr uintptr) *nativeString {
	return &nativeString{ptr: ptr, free: b.free}
}

// bytes copies the buffer contents. It must not be called after release.
func (s *nativeString) bytes() []byte {
	if s.ptr == 0 {
		return nil
	}
	return cStringBytes(s.ptr)
}

// release hands the buffer back to the engine. Safe to call repeatedly.
func (s *nativeString) release() {
	if s.ptr == 0 {
		return
	}
	ptr := s.ptr
	s.ptr = 0
	s.free(ptr)
}

// takeOwnership copies the engine string at ptr into a Go string and frees
// the native buffer. A null pointer yields "" and issues no free. Bytes that
// are not valid UTF-8 yield "" and count as a decode failure.
func (b *Bridge) takeOwnership(field string, ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	s := b.acquire(ptr)
	defer s.release()
	return b.decode(field, s.bytes())
}

// borrow copies a string the engine keeps ownership of, such as callback
// arguments. It never frees.
func (b *Bridge) borrow(field string, ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	return b.decode(field, cStringBytes(ptr))
}

func (b *Bridge) decode(field string, raw []byte) string {
	if !utf8.Valid(raw) {
		b.decodeFailures.Add(1)
		b.logger.Warn().
			Str("field", field).
			Int("bytes", len(raw)).
			Msg("dropping native string that is not valid UTF-8")
		return ""
	}
	return string(raw)
}

// DecodeFailures returns how many native strings were dropped because they
// were not valid UTF-8.
func (b *Bridge) DecodeFailures() uint64 {
	return b.decodeFailures.Load()
}
