package codec

import (
	"fmt"
	"io"

	"github.com/pippin-db/pippin/internal/sum"
)

// ElementRecord is one element as it appears in a snapshot or commit
// record: an id, its payload, and the element sum read from (or to be
// written to) the file.
type ElementRecord struct {
	Id      sum.ElementId
	Payload []byte
	Sum     sum.Sum
}

// Snapshot is a fully parsed snapshot file: header plus body.
type Snapshot struct {
	Header           *Header
	Parents          []sum.Sum
	Meta             CommitMeta
	Elements         []ElementRecord
	StateSum         sum.Sum
	BodyIntegritySum sum.Sum
}

const (
	snapshotMarker = "SNAPSH"
	elementsMarker = "ELEMENTS"
	elementMarker  = "ELEMENT"
	bytesMarker    = "BYTES"
	eltMovesMarker = "ELTMOVES"
	stateSumMarker = "STATESUM"
)

// WriteSnapshot writes a complete snapshot file: header, then body
// (SNAPSH banner, commit-meta, parent sums, element count, elements,
// STATESUM, body integrity sum).
func WriteSnapshot(w io.Writer, repoName string, partition sum.PartitionId, extraBlocks []Block, parents []sum.Sum, meta CommitMeta, elements []ElementRecord, stateSum sum.Sum) error {
	if len(parents) > 0xFF {
		return fmt.Errorf("codec: snapshot has too many parents for one byte: %w", ErrMalformed)
	}
	blocks := append([]Block{PartitionIdBlock(partition)}, extraBlocks...)
	if err := WriteHeader(w, KindSnapshot, repoName, blocks); err != nil {
		return err
	}

	hw := &hashingWriter{w: w, h: sum.NewHasher()}

	banner := []byte(snapshotMarker)
	banner = append(banner, byte(len(parents)), 'U')
	if _, err := hw.Write(banner); err != nil {
		return err
	}
	if err := WriteCommitMeta(hw, meta); err != nil {
		return err
	}
	for _, p := range parents {
		if _, err := hw.Write(p.Bytes()); err != nil {
			return err
		}
	}

	if err := writeMarker(hw, elementsMarker); err != nil {
		return err
	}
	var countBuf [8]byte
	putUint64(countBuf[:], uint64(len(elements)))
	if _, err := hw.Write(countBuf[:]); err != nil {
		return err
	}

	for _, el := range elements {
		if err := writeElementSection(hw, el); err != nil {
			return err
		}
	}

	if err := writeMarker(hw, stateSumMarker); err != nil {
		return err
	}
	if _, err := hw.Write(countBuf[:]); err != nil {
		return err
	}
	if _, err := hw.Write(stateSum.Bytes()); err != nil {
		return err
	}

	bodySum := hw.h.Sum()
	if _, err := w.Write(bodySum.Bytes()); err != nil {
		return fmt.Errorf("codec: could not write body integrity sum: %w", err)
	}
	return nil
}

func writeElementSection(w io.Writer, el ElementRecord) error {
	if _, err := w.Write(zeroPad(elementMarker, 8)); err != nil {
		return err
	}
	var idBuf [8]byte
	putUint64(idBuf[:], uint64(el.Id))
	if _, err := w.Write(idBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(zeroPad(bytesMarker, 8)); err != nil {
		return err
	}
	var lenBuf [8]byte
	putUint64(lenBuf[:], uint64(len(el.Payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if err := writePadded(w, el.Payload); err != nil {
		return err
	}
	s := el.Sum
	if s.IsZero() {
		s = sum.ElementSum(el.Id, el.Payload)
	}
	if _, err := w.Write(s.Bytes()); err != nil {
		return err
	}
	return nil
}

// ReadSnapshot parses a complete snapshot file, verifying the header's
// integrity sum, every element sum, and the body's own integrity sum.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	h, err := ReadHeader(r, KindSnapshot)
	if err != nil {
		return nil, err
	}

	hr := &hashingReader{r: r, h: sum.NewHasher()}

	if err := expectMarker(hr, snapshotMarker); err != nil {
		return nil, err
	}
	counts := make([]byte, 2)
	if err := readFull(hr, counts); err != nil {
		return nil, err
	}
	parentCount := int(counts[0])

	meta, err := ReadCommitMeta(hr)
	if err != nil {
		return nil, err
	}

	parents := make([]sum.Sum, parentCount)
	for i := range parents {
		buf := make([]byte, sum.Size)
		if err := readFull(hr, buf); err != nil {
			return nil, err
		}
		parents[i], _ = sum.FromBytes(buf)
	}

	if err := expectMarker(hr, elementsMarker); err != nil {
		return nil, err
	}
	elementCount, err := readUint64(hr)
	if err != nil {
		return nil, err
	}

	elements := make([]ElementRecord, 0, elementCount)
	for i := uint64(0); i < elementCount; i++ {
		el, err := readElementSection(hr)
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}

	tail := make([]byte, 8)
	if err := readFull(hr, tail); err != nil {
		return nil, err
	}
	if string(trimZeroBytes(tail)) == eltMovesMarker {
		return nil, ErrDeprecatedSectionUnsupported
	}
	if string(tail) != stateSumMarker {
		return nil, fmt.Errorf("codec: expected STATESUM marker, got %q: %w", tail, ErrMalformed)
	}

	repeatCount, err := readUint64(hr)
	if err != nil {
		return nil, err
	}
	if repeatCount != elementCount {
		return nil, fmt.Errorf("codec: STATESUM element count %d != %d: %w", repeatCount, elementCount, ErrMalformed)
	}

	stateSumBuf := make([]byte, sum.Size)
	if err := readFull(hr, stateSumBuf); err != nil {
		return nil, err
	}
	stateSum, _ := sum.FromBytes(stateSumBuf)

	computed := hr.h.Sum()
	gotBuf := make([]byte, sum.Size)
	if err := readFull(r, gotBuf); err != nil {
		return nil, err
	}
	got, _ := sum.FromBytes(gotBuf)
	if got != computed {
		return nil, ErrChecksumMismatch
	}

	return &Snapshot{
		Header:           h,
		Parents:          parents,
		Meta:             meta,
		Elements:         elements,
		StateSum:         stateSum,
		BodyIntegritySum: got,
	}, nil
}

func readElementSection(r io.Reader) (ElementRecord, error) {
	var el ElementRecord

	if err := expectMarker(r, zeroPadString(elementMarker, 8)); err != nil {
		return el, err
	}
	idVal, err := readUint64(r)
	if err != nil {
		return el, err
	}
	el.Id = sum.ElementId(idVal)

	if err := expectMarker(r, zeroPadString(bytesMarker, 8)); err != nil {
		return el, err
	}
	length, err := readUint64(r)
	if err != nil {
		return el, err
	}
	payload, err := readPadded(r, int(length))
	if err != nil {
		return el, err
	}
	el.Payload = payload

	sumBuf := make([]byte, sum.Size)
	if err := readFull(r, sumBuf); err != nil {
		return el, err
	}
	declared, _ := sum.FromBytes(sumBuf)
	if declared != sum.ElementSum(el.Id, el.Payload) {
		return el, ErrChecksumMismatch
	}
	el.Sum = declared
	return el, nil
}

func zeroPadString(s string, n int) string {
	return string(zeroPad(s, n))
}
