package codec

import (
	"fmt"
	"io"
)

// ExtFlags packs eight (active, essential) bit pairs into the two
// extension-flag bytes of a commit-meta block (spec §4.2). Flags are
// inherited by child commits; a merge takes the bitwise OR of its
// parents' flags (see MergeExtFlags).
type ExtFlags uint16

// ReclassifyFlag is the only flag the format has ever defined. It is
// deprecated: this codec reads and carries it forward but never acts on
// it or sets it on newly written commits.
const ReclassifyFlag = 0

// Active reports whether flag pair i is active.
func (f ExtFlags) Active(i int) bool {
	return f&(1<<(uint(i)*2)) != 0
}

// Essential reports whether flag pair i is marked essential.
func (f ExtFlags) Essential(i int) bool {
	return f&(1<<(uint(i)*2+1)) != 0
}

// MergeExtFlags combines parent flag sets by bitwise OR, per spec §4.2
// ("merges take the bitwise OR of parents' flags").
func MergeExtFlags(flags ...ExtFlags) ExtFlags {
	var out ExtFlags
	for _, f := range flags {
		out |= f
	}
	return out
}

// userMetaTagPlain is the default (no tag) user-metadata marker.
var userMetaTagPlain = [2]byte{0, 0}

// userMetaTagText marks user metadata as text ("TT"), the only other tag
// the format defines.
var userMetaTagText = [2]byte{'T', 'T'}

// CommitMeta is the metadata attached to every PartState: the commit-meta
// block shared by snapshot and commit-log bodies (spec §4.2).
type CommitMeta struct {
	Timestamp    int64
	CommitNumber uint32
	Flags        ExtFlags
	// ExtPayload is whatever lies beyond the fixed extension-header
	// fields. Nothing defined today uses it; it is preserved byte-for-
	// byte so an unknown future extension survives a read/write round
	// trip undisturbed.
	ExtPayload []byte
	// TextUserMeta selects the "TT" tag instead of the default.
	TextUserMeta bool
	UserMeta     []byte
}

// ExtraMetadataBytes returns the byte representation of everything in m
// beyond the timestamp and commit number, in the order the meta-sum
// algorithm folds it in (spec §4.1's "extra_metadata_bytes"): flags,
// extension payload, user-metadata tag and bytes.
func (m CommitMeta) ExtraMetadataBytes() []byte {
	out := make([]byte, 0, 4+len(m.ExtPayload)+2+len(m.UserMeta))
	out = append(out, byte(m.Flags>>8), byte(m.Flags))
	out = append(out, m.ExtPayload...)
	if m.TextUserMeta {
		out = append(out, userMetaTagText[:]...)
	} else {
		out = append(out, userMetaTagPlain[:]...)
	}
	out = append(out, m.UserMeta...)
	return out
}

func roundUp8(n int) int {
	if r := n % 8; r != 0 {
		return n + (8 - r)
	}
	return n
}

// WriteCommitMeta writes a commit-meta block: timestamp, extension
// header + payload, then the XM user-metadata block.
func WriteCommitMeta(w io.Writer, m CommitMeta) error {
	var ts [8]byte
	putUint64(ts[:], uint64(m.Timestamp))
	if _, err := w.Write(ts[:]); err != nil {
		return fmt.Errorf("codec: could not write commit timestamp: %w", err)
	}

	extPadded := make([]byte, roundUp8(len(m.ExtPayload)))
	copy(extPadded, m.ExtPayload)
	clusters := (8 + len(extPadded)) / 8
	if clusters > 0xFF {
		return fmt.Errorf("codec: extension payload too long for one byte of clusters: %w", ErrMalformed)
	}

	head := make([]byte, 8)
	head[0] = 'F'
	head[1] = byte(clusters)
	head[2] = byte(m.Flags >> 8)
	head[3] = byte(m.Flags)
	putUint32(head[4:8], m.CommitNumber)
	if _, err := w.Write(head); err != nil {
		return fmt.Errorf("codec: could not write extension header: %w", err)
	}
	if _, err := w.Write(extPadded); err != nil {
		return fmt.Errorf("codec: could not write extension payload: %w", err)
	}

	if err := writeMarker(w, "XM"); err != nil {
		return err
	}
	tag := userMetaTagPlain
	if m.TextUserMeta {
		tag = userMetaTagText
	}
	if _, err := w.Write(tag[:]); err != nil {
		return fmt.Errorf("codec: could not write user-metadata tag: %w", err)
	}
	var lenBuf [4]byte
	putUint32(lenBuf[:], uint32(len(m.UserMeta)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("codec: could not write user-metadata length: %w", err)
	}
	if err := writePadded(w, m.UserMeta); err != nil {
		return err
	}
	return nil
}

// ReadCommitMeta parses a commit-meta block written by WriteCommitMeta.
func ReadCommitMeta(r io.Reader) (CommitMeta, error) {
	var m CommitMeta

	ts, err := readInt64(r)
	if err != nil {
		return m, err
	}
	m.Timestamp = ts

	head := make([]byte, 8)
	if err := readFull(r, head); err != nil {
		return m, err
	}
	if head[0] != 'F' {
		return m, fmt.Errorf("codec: expected extension header marker 'F', got %q: %w", head[0], ErrMalformed)
	}
	clusters := int(head[1])
	if clusters < 1 {
		return m, fmt.Errorf("codec: extension header cluster count %d too small: %w", clusters, ErrMalformed)
	}
	m.Flags = ExtFlags(uint16(head[2])<<8 | uint16(head[3]))
	m.CommitNumber = readUint32From(head[4:8])

	payloadLen := clusters*8 - 8
	if payloadLen > 0 {
		payload := make([]byte, payloadLen)
		if err := readFull(r, payload); err != nil {
			return m, err
		}
		m.ExtPayload = payload
	}

	if err := expectMarker(r, "XM"); err != nil {
		return m, err
	}
	tag := make([]byte, 2)
	if err := readFull(r, tag); err != nil {
		return m, err
	}
	m.TextUserMeta = tag[0] == 'T' && tag[1] == 'T'

	umLen, err := readUint32(r)
	if err != nil {
		return m, err
	}
	userMeta, err := readPadded(r, int(umLen))
	if err != nil {
		return m, err
	}
	m.UserMeta = userMeta

	return m, nil
}

func readUint32From(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
