package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/pippin-db/pippin/internal/sum"
)

// FileKind distinguishes the two file kinds the format defines.
type FileKind int

const (
	// KindSnapshot identifies a `.pip` snapshot file.
	KindSnapshot FileKind = iota
	// KindCommitLog identifies a `.piplog` commit-log file.
	KindCommitLog
)

const magicLen = 16

// magicDates lists every date token this codec still accepts, newest
// first. Anything older is rejected outright (spec §4.2).
var magicDates = []string{"20160815", "20160516", "20160310"}

func magicLetters(kind FileKind) string {
	if kind == KindSnapshot {
		return "SS"
	}
	return "CL"
}

func buildMagic(kind FileKind, date string) string {
	return "PIPPIN" + magicLetters(kind) + date
}

// currentMagic returns the magic this codec writes.
func currentMagic(kind FileKind) string {
	return buildMagic(kind, magicDates[0])
}

// matchMagic checks a 16-byte buffer against every accepted magic for
// kind, returning whether it matched and whether the match was the
// current (non-deprecated) one.
func matchMagic(kind FileKind, b []byte) (matched bool, current bool) {
	for i, date := range magicDates {
		if string(b) == buildMagic(kind, date) {
			return true, i == 0
		}
	}
	return false, false
}

// oldestAcceptedDate is the earliest format date still readable; any
// well-formed magic naming an older date is a recognizable Pippin file
// this codec has simply outgrown (spec §4.2: "older are rejected"),
// distinct from a magic that isn't a Pippin file at all.
var oldestAcceptedDate = magicDates[len(magicDates)-1]

// looksObsolete reports whether b carries this kind's 8-letter prefix
// ("PIPPINSS"/"PIPPINCL") followed by an 8-digit date older than every
// date this codec accepts, i.e. a magic matchMagic correctly rejected
// but that still names a real, just-too-old, format revision.
func looksObsolete(kind FileKind, b []byte) bool {
	prefix := "PIPPIN" + magicLetters(kind)
	if len(b) != magicLen || string(b[:len(prefix)]) != prefix {
		return false
	}
	date := string(b[len(prefix):])
	if len(date) != 8 {
		return false
	}
	for _, c := range date {
		if c < '0' || c > '9' {
			return false
		}
	}
	return date < oldestAcceptedDate
}

// RepoNameLen is the fixed width of the zero-padded repository name field.
const RepoNameLen = 16

// Block is a header block whose meaning is driven by the first byte of
// its content: 'R' (remark, always ignorable), 'U' (user byte field,
// passed through), any other uppercase letter (essential; unknown ones
// force safe mode), or a lowercase letter (inessential; unknown ones are
// silently ignored).
type Block struct {
	Tag     byte
	Payload []byte
}

// partitionIdTag is the header block tag this codec uses to carry the
// partition's 40-bit id (spec §3: "stored in header"). The spec leaves
// the concrete block encoding to the implementation; 'P' is essential,
// so a reader that doesn't understand it correctly falls back to safe
// mode rather than silently ignoring the partition id.
const partitionIdTag = 'P'

// PartitionIdBlock builds the header block carrying a partition's id.
func PartitionIdBlock(id sum.PartitionId) Block {
	payload := make([]byte, 5)
	v := uint64(id)
	for i := 4; i >= 0; i-- {
		payload[i] = byte(v)
		v >>= 8
	}
	return Block{Tag: partitionIdTag, Payload: payload}
}

// FindPartitionId extracts the partition id carried by h's blocks, if any.
func FindPartitionId(h *Header) (sum.PartitionId, bool) {
	for _, b := range h.Blocks {
		if b.Tag != partitionIdTag || len(b.Payload) != 5 {
			continue
		}
		var v uint64
		for _, byt := range b.Payload {
			v = v<<8 | uint64(byt)
		}
		return sum.PartitionId(v), true
	}
	return 0, false
}

// IsEssential reports whether an unrecognized block of this shape would
// force safe mode, per spec §4.2 ("Any other capital letter -> essential").
func (b Block) IsEssential() bool {
	if b.Tag < 'A' || b.Tag > 'Z' {
		return false
	}
	switch b.Tag {
	case 'R', 'U', partitionIdTag:
		return false
	default:
		return true
	}
}

// Header is the parsed, pre-body portion of a snapshot or commit-log
// file: the magic, the repository name, and the sequence of header
// blocks up to and including the terminal SUM block.
type Header struct {
	Kind        FileKind
	Deprecated  bool
	RepoName    string
	Blocks      []Block
	SafeMode    bool
	SumAlgo     string
	SumParam    string
	IntegritySum sum.Sum
}

// WriteHeader writes magic + repo name + blocks + the terminal SUM block,
// then appends the header's own integrity sum (the BLAKE2b digest of
// every byte written so far).
func WriteHeader(w io.Writer, kind FileKind, repoName string, blocks []Block) error {
	hw := &hashingWriter{w: w, h: sum.NewHasher()}

	if _, err := hw.Write([]byte(currentMagic(kind))); err != nil {
		return err
	}
	if _, err := hw.Write(zeroPad(repoName, RepoNameLen)); err != nil {
		return err
	}
	for _, b := range blocks {
		if err := writeBlockBShape(hw, b.Tag, b.Payload); err != nil {
			return err
		}
	}
	// Terminal SUM block, always the compact H-line shape.
	sumLine := fmt.Sprintf("SUM %s %s", sum.AlgorithmName, sum.AlgorithmParam)
	if err := writeBlockHShape(hw, sumLine); err != nil {
		return err
	}

	headerSum := hw.h.Sum()
	if _, err := w.Write(headerSum.Bytes()); err != nil {
		return fmt.Errorf("codec: could not write header integrity sum: %w", err)
	}
	return nil
}

// writeBlockHShape writes a 16-byte line whose first byte is 'H'.
// content must fit in 15 bytes once zero-padded.
func writeBlockHShape(w io.Writer, content string) error {
	if len(content) > ChunkSize-1 {
		return fmt.Errorf("codec: H-shape block content %q too long: %w", content, ErrMalformed)
	}
	buf := make([]byte, ChunkSize)
	buf[0] = 'H'
	copy(buf[1:], content)
	_, err := w.Write(buf)
	return err
}

// writeBlockBShape writes a block using the Bbbb variable-length shape:
// 1 byte 'B', 3-byte big-endian length (including the 4-byte marker),
// then the content (tag byte + payload), rounded up to 16 bytes.
func writeBlockBShape(w io.Writer, tag byte, payload []byte) error {
	content := append([]byte{tag}, payload...)
	total := 4 + len(content)
	marker := [4]byte{'B', byte(total >> 16), byte(total >> 8), byte(total)}
	if _, err := w.Write(marker[:]); err != nil {
		return fmt.Errorf("codec: could not write block marker: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("codec: could not write block content: %w", err)
	}
	if p := padLen(total); p > 0 {
		if _, err := w.Write(make([]byte, p)); err != nil {
			return fmt.Errorf("codec: could not write block padding: %w", err)
		}
	}
	return nil
}

// ReadHeader parses a header from r, verifying its trailing integrity
// sum. Essential-unknown blocks set Header.SafeMode instead of aborting,
// per spec §4.2.
func ReadHeader(r io.Reader, kind FileKind) (*Header, error) {
	hr := &hashingReader{r: r, h: sum.NewHasher()}

	magic := make([]byte, magicLen)
	if err := readFull(hr, magic); err != nil {
		return nil, err
	}
	matched, current := matchMagic(kind, magic)
	if !matched {
		if looksObsolete(kind, magic) {
			return nil, ErrObsoleteMagic
		}
		return nil, ErrBadMagic
	}

	repoNameBuf, err := readFull16(hr, RepoNameLen)
	if err != nil {
		return nil, err
	}

	h := &Header{
		Kind:       kind,
		Deprecated: !current,
		RepoName:   trimZero(repoNameBuf),
	}

	for {
		shape := make([]byte, 1)
		if err := readFull(hr, shape); err != nil {
			return nil, err
		}

		var content []byte
		switch shape[0] {
		case 'H':
			rest, err := readFull16(hr, ChunkSize-1)
			if err != nil {
				return nil, err
			}
			content = trimZeroBytes(rest)
		case 'Q':
			digit := make([]byte, 1)
			if err := readFull(hr, digit); err != nil {
				return nil, err
			}
			x, ok := base36Value(digit[0])
			if !ok {
				return nil, fmt.Errorf("codec: invalid Q-block digit %q: %w", digit, ErrMalformed)
			}
			total := x * ChunkSize
			if total < 2 {
				return nil, fmt.Errorf("codec: Q-block too short: %w", ErrMalformed)
			}
			rest := make([]byte, total-2)
			if err := readFull(hr, rest); err != nil {
				return nil, err
			}
			content = trimZeroBytes(rest)
		case 'B':
			lenBuf := make([]byte, 3)
			if err := readFull(hr, lenBuf); err != nil {
				return nil, err
			}
			total := int(lenBuf[0])<<16 | int(lenBuf[1])<<8 | int(lenBuf[2])
			if total < 4 {
				return nil, fmt.Errorf("codec: B-block length %d too small: %w", total, ErrMalformed)
			}
			contentLen := total - 4
			rawContent := make([]byte, contentLen)
			if err := readFull(hr, rawContent); err != nil {
				return nil, err
			}
			if p := padLen(total); p > 0 {
				if _, err := io.CopyN(io.Discard, hr, int64(p)); err != nil {
					return nil, ErrTruncated
				}
			}
			content = trimZeroBytes(rawContent)
		default:
			return nil, fmt.Errorf("codec: unknown header block shape %q: %w", shape, ErrMalformed)
		}

		if strings.HasPrefix(string(content), "SUM") {
			fields := strings.Fields(string(content))
			if len(fields) != 3 {
				return nil, fmt.Errorf("codec: malformed SUM block %q: %w", content, ErrMalformed)
			}
			h.SumAlgo = fields[1]
			h.SumParam = fields[2]
			if h.SumAlgo != sum.AlgorithmName || h.SumParam != sum.AlgorithmParam {
				return nil, ErrUnsupportedSumAlgorithm
			}
			break
		}

		if len(content) == 0 {
			return nil, fmt.Errorf("codec: empty header block: %w", ErrMalformed)
		}
		b := Block{Tag: content[0], Payload: content[1:]}
		if b.IsEssential() {
			h.SafeMode = true
		}
		h.Blocks = append(h.Blocks, b)
	}

	computed := hr.h.Sum()
	gotBuf := make([]byte, sum.Size)
	if err := readFull(r, gotBuf); err != nil {
		return nil, err
	}
	got, _ := sum.FromBytes(gotBuf)
	if got != computed {
		return nil, ErrChecksumMismatch
	}
	h.IntegritySum = got
	return h, nil
}

func trimZeroBytes(b []byte) []byte {
	i := len(b)
	for i > 0 && b[i-1] == 0 {
		i--
	}
	return b[:i]
}

func readFull16(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func base36Value(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}

// hashingWriter tees every byte written through it into a running Sum.
type hashingWriter struct {
	w io.Writer
	h *sum.Hasher
}

func (hw *hashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	if n > 0 {
		_, _ = hw.h.Write(p[:n])
	}
	if err != nil {
		return n, fmt.Errorf("codec: write failed: %w", err)
	}
	return n, nil
}

// hashingReader tees every byte read through it into a running Sum.
type hashingReader struct {
	r io.Reader
	h *sum.Hasher
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.h.Write(p[:n])
	}
	return n, err
}
