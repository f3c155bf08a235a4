package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrames and MaxFrameSize bound what ReadMessage will allocate for, so a
// misbehaving or garbage peer cannot force an unbounded allocation.
const (
	MaxFrames    = 1024
	MaxFrameSize = 64 << 20 // 64MiB
)

// WriteMessage writes frames as one wire message: a frame count followed by
// length-prefixed frames, all big-endian uint32. A nil frame and an empty
// frame both round-trip as a zero-length frame.
func WriteMessage(w io.Writer, frames [][]byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frames)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame count: %w", err)
	}
	for i, f := range frames {
		binary.BigEndian.PutUint32(hdr[:], uint32(len(f)))
		if _, err := w.Write(hdr[:]); err != nil {
			return fmt.Errorf("wire: write frame %d length: %w", i, err)
		}
		if len(f) == 0 {
			continue
		}
		if _, err := w.Write(f); err != nil {
			return fmt.Errorf("wire: write frame %d body: %w", i, err)
		}
	}
	if bw, ok := w.(*bufio.Writer); ok {
		return bw.Flush()
	}
	return nil
}

// ReadMessage reads one wire message written by WriteMessage.
func ReadMessage(r io.Reader) ([][]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err // preserve io.EOF for callers checking connection close
	}
	count := binary.BigEndian.Uint32(hdr[:])
	if count > MaxFrames {
		return nil, fmt.Errorf("wire: frame count %d exceeds limit %d", count, MaxFrames)
	}
	frames := make([][]byte, count)
	for i := range frames {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("wire: read frame %d length: %w", i, err)
		}
		size := binary.BigEndian.Uint32(hdr[:])
		if size > MaxFrameSize {
			return nil, fmt.Errorf("wire: frame %d size %d exceeds limit %d", i, size, MaxFrameSize)
		}
		if size == 0 {
			frames[i] = []byte{}
			continue
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("wire: read frame %d body: %w", i, err)
		}
		frames[i] = buf
	}
	return frames, nil
}
