package vol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

var byteOrder = binary.LittleEndian

// reader is a bounds-checked cursor over a whole .vol file. The first
// failure sticks and every later read returns zero values.
type reader struct {
	buf []byte
	pos int64
	err error
}

func (r *reader) seek(off int64) {
	r.pos = off
}

func (r *reader) take(n int64, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos < 0 || r.pos+n > int64(len(r.buf)) {
		r.err = &FormatError{
			Op:     "decode",
			Field:  field,
			Offset: r.pos,
			Err:    fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, int64(len(r.buf))-r.pos),
		}
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) int32(field string) int32 {
	b := r.take(4, field)
	if b == nil {
		return 0
	}
	return int32(byteOrder.Uint32(b))
}

func (r *reader) uint64(field string) uint64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return byteOrder.Uint64(b)
}

func (r *reader) float32(field string) float32 {
	b := r.take(4, field)
	if b == nil {
		return 0
	}
	return math.Float32frombits(byteOrder.Uint32(b))
}

func (r *reader) float64(field string) float64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return math.Float64frombits(byteOrder.Uint64(b))
}

// cstring reads a fixed-width NUL padded string, dropping trailing NULs only
func (r *reader) cstring(width int64, field string) string {
	b := r.take(width, field)
	if b == nil {
		return ""
	}
	return strings.TrimRight(string(b), "\x00")
}

func (r *reader) bytes(dst []byte, field string) {
	b := r.take(int64(len(dst)), field)
	if b != nil {
		copy(dst, b)
	}
}

func (r *reader) float32s(dst []float32, field string) {
	b := r.take(int64(len(dst))*4, field)
	if b == nil {
		return
	}
	for i := range dst {
		dst[i] = math.Float32frombits(byteOrder.Uint32(b[i*4:]))
	}
}

// writer fills a byte buffer at explicit offsets, growing it when a write
// lands past the current end. Bytes never written stay zero.
type writer struct {
	buf []byte
	pos int64
	err error
}

func newWriter(size int64) *writer {
	return &writer{buf: make([]byte, size)}
}

func (w *writer) seek(off int64) {
	w.pos = off
}

func (w *writer) next(n int64) []byte {
	if w.err != nil {
		return nil
	}
	if end := w.pos + n; end > int64(len(w.buf)) {
		grown := make([]byte, end)
		copy(grown, w.buf)
		w.buf = grown
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b
}

func (w *writer) int32(v int32) {
	if b := w.next(4); b != nil {
		byteOrder.PutUint32(b, uint32(v))
	}
}

func (w *writer) uint64(v uint64) {
	if b := w.next(8); b != nil {
		byteOrder.PutUint64(b, v)
	}
}

func (w *writer) float32(v float32) {
	if b := w.next(4); b != nil {
		byteOrder.PutUint32(b, math.Float32bits(v))
	}
}

func (w *writer) float64(v float64) {
	if b := w.next(8); b != nil {
		byteOrder.PutUint64(b, math.Float64bits(v))
	}
}

func (w *writer) cstring(s string, width int64, field string) {
	if w.err != nil {
		return
	}
	if int64(len(s)) > width {
		w.err = &FormatError{
			Op:     "encode",
			Field:  field,
			Offset: w.pos,
			Err:    fmt.Errorf("%w: %d bytes into %d", ErrFieldTooWide, len(s), width),
		}
		return
	}
	if b := w.next(width); b != nil {
		copy(b, s)
	}
}

func (w *writer) bytes(src []byte) {
	if b := w.next(int64(len(src))); b != nil {
		copy(b, src)
	}
}

func (w *writer) float32s(src []float32) {
	b := w.next(int64(len(src)) * 4)
	if b == nil {
		return
	}
	for i, v := range src {
		byteOrder.PutUint32(b[i*4:], math.Float32bits(v))
	}
}
