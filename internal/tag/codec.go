// Package tag encodes cells and columns into versioned binary documents.
// All multi-byte values are little-endian. Every document ends with a
// blake2b-256 digest of everything before it.
package tag

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrTruncated = errors.New("tag: truncated document")
	ErrChecksum  = errors.New("tag: checksum mismatch")
	ErrVersion   = errors.New("tag: unsupported version")
	ErrMismatch  = errors.New("tag: coordinate mismatch")
	ErrKind      = errors.New("tag: wrong document kind")
)

const digestLen = blake2b.Size256

type writer struct {
	buf []byte
}

func newWriter(kind, version byte) *writer {
	w := &writer{buf: make([]byte, 0, 256)}
	w.writeC(kind)
	w.writeC(version)
	return w
}

func (w *writer) writeC(v byte) { w.buf = append(w.buf, v) }

func (w *writer) writeD(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *writer) writeQ(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

// writeBytes writes a 4-byte length prefix followed by b.
func (w *writer) writeBytes(b []byte) {
	w.writeD(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) writeS(s string) { w.writeBytes([]byte(s)) }

// seal appends the digest and returns the finished document.
func (w *writer) seal() []byte {
	sum := blake2b.Sum256(w.buf)
	return append(w.buf, sum[:]...)
}

type reader struct {
	data []byte
	off  int
	err  error
}

// open verifies the digest and returns a reader positioned after the
// kind and version bytes.
func open(data []byte, kind byte) (*reader, byte, error) {
	if len(data) < digestLen+2 {
		return nil, 0, ErrTruncated
	}
	body := data[:len(data)-digestLen]
	sum := blake2b.Sum256(body)
	if string(sum[:]) != string(data[len(body):]) {
		return nil, 0, ErrChecksum
	}
	if body[0] != kind {
		return nil, 0, fmt.Errorf("%w: got %d want %d", ErrKind, body[0], kind)
	}
	return &reader{data: body, off: 2}, body[1], nil
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = ErrTruncated
		return false
	}
	return true
}

func (r *reader) readC() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) readD() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v
}

func (r *reader) readQ() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}

func (r *reader) readBytes() []byte {
	n := r.readD()
	if n == 0 || !r.need(int(n)) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:])
	r.off += int(n)
	return out
}

func (r *reader) readS() string { return string(r.readBytes()) }

// readCount reads a list length and rejects counts that could not fit in
// the remaining bytes.
func (r *reader) readCount(minElem int) int {
	n := r.readD()
	if r.err != nil {
		return 0
	}
	if n < 0 || int64(n)*int64(minElem) > int64(len(r.data)-r.off) || n > math.MaxInt32/2 {
		r.err = ErrTruncated
		return 0
	}
	return int(n)
}
