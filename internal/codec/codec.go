package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ChunkSize is the alignment boundary every section of the format is
// padded to (spec §4.2: "all chunks are aligned to 16-byte boundaries").
const ChunkSize = 16

// padLen returns the number of zero bytes needed to round n up to the
// next multiple of ChunkSize. If n is already aligned, no padding is
// needed.
func padLen(n int) int {
	r := n % ChunkSize
	if r == 0 {
		return 0
	}
	return ChunkSize - r
}

// roundUp16 rounds n up to the next multiple of ChunkSize.
func roundUp16(n int) int {
	return n + padLen(n)
}

// writePadded writes data followed by enough zero bytes to bring the
// total written length to the next 16-byte boundary.
func writePadded(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("codec: could not write %d bytes: %w", len(data), err)
	}
	if p := padLen(len(data)); p > 0 {
		if _, err := w.Write(make([]byte, p)); err != nil {
			return fmt.Errorf("codec: could not write padding: %w", err)
		}
	}
	return nil
}

// readFull reads exactly len(buf) bytes, treating io.EOF/io.ErrUnexpectedEOF
// as ErrTruncated.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrTruncated
		}
		return fmt.Errorf("codec: read failed: %w", err)
	}
	return nil
}

// readPadded reads n meaningful bytes, then discards the padding needed
// to reach the next 16-byte boundary.
func readPadded(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return nil, err
	}
	if p := padLen(n); p > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(p)); err != nil {
			return nil, ErrTruncated
		}
	}
	return buf, nil
}

func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readInt64(r io.Reader) (int64, error) {
	v, err := readUint64(r)
	return int64(v), err
}

func writeMarker(w io.Writer, marker string) error {
	_, err := io.WriteString(w, marker)
	if err != nil {
		return fmt.Errorf("codec: could not write marker %q: %w", marker, err)
	}
	return nil
}

// expectMarker reads len(marker) bytes and checks they match exactly.
func expectMarker(r io.Reader, marker string) error {
	buf := make([]byte, len(marker))
	if err := readFull(r, buf); err != nil {
		return err
	}
	if string(buf) != marker {
		return fmt.Errorf("codec: expected marker %q, got %q: %w", marker, buf, ErrMalformed)
	}
	return nil
}

// zeroPad returns s as bytes, truncated or zero-padded to exactly n bytes.
func zeroPad(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

// trimZero trims trailing NUL bytes from a fixed-size text field.
func trimZero(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return string(b[:i])
}
