package classfile

import (
	"encoding/binary"

	"github.com/cojen/boxtin/boxtinerr"
)

// byteReader is a minimal forward-only cursor over a class-file byte slice.
// The codec makes a single forward pass, per spec §4.1.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader {
	return &byteReader{data: data}
}

func (r *byteReader) remaining() int { return len(r.data) - r.pos }

func (r *byteReader) u1() (uint8, error) {
	if r.remaining() < 1 {
		return 0, boxtinerr.NewIgnorable("unexpected end of class file")
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) u2() (uint16, error) {
	if r.remaining() < 2 {
		return 0, boxtinerr.NewIgnorable("unexpected end of class file")
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) u4() (uint32, error) {
	if r.remaining() < 4 {
		return 0, boxtinerr.NewIgnorable("unexpected end of class file")
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, boxtinerr.NewIgnorable("unexpected end of class file")
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// byteWriter is a minimal append-only big-endian writer used by Emit.
type byteWriter struct {
	buf []byte
}

func (w *byteWriter) u1(v uint8)  { w.buf = append(w.buf, v) }
func (w *byteWriter) u2(v uint16) { w.buf = append(w.buf, byte(v>>8), byte(v)) }
func (w *byteWriter) u4(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
func (w *byteWriter) raw(b []byte) { w.buf = append(w.buf, b...) }
