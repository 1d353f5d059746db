package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frames carry a 2-byte little-endian length that counts itself, followed
// by the packet body.
const (
	frameHeaderSize = 2
	MaxFramePayload = 0xFFFF - frameHeaderSize
)

// ErrFrameTooLarge is returned by WriteFrame for a body that cannot be
// described by the length header. Nothing is written in that case.
var ErrFrameTooLarge = errors.New("frame payload too large")

// ReadFrame reads one frame from r and returns its body.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	n := int(binary.LittleEndian.Uint16(header[:])) - frameHeaderSize
	if n <= 0 {
		return nil, fmt.Errorf("invalid frame length: %d", n+frameHeaderSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body (%d bytes): %w", n, err)
	}
	return body, nil
}

// WriteFrame writes body to w as one frame using a single Write call, so a
// failed write never leaves a header without its body on a healthy stream.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("write frame: empty body")
	}
	if len(body) > MaxFramePayload {
		return fmt.Errorf("write frame (%d bytes): %w", len(body), ErrFrameTooLarge)
	}
	buf := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	binary.LittleEndian.PutUint16(buf, uint16(len(body)+frameHeaderSize))
	buf = append(buf, body...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
