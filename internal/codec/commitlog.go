package codec

import (
	"fmt"
	"io"

	"github.com/pippin-db/pippin/internal/sum"
)

// ChangeKind distinguishes the three per-element operations a commit can
// carry (spec §4.2, §4.3).
type ChangeKind int

const (
	ChangeDelete ChangeKind = iota
	ChangeInsert
	ChangeReplace
)

// Change is one per-element mutation inside a Commit.
type Change struct {
	Kind    ChangeKind
	Id      sum.ElementId
	Payload []byte
	Sum     sum.Sum
}

// CommitRecord is one parsed commit or merge record from a commit-log
// file.
type CommitRecord struct {
	IsMerge      bool
	Meta         CommitMeta
	Parents      []sum.Sum
	Changes      []Change
	StateSum     sum.Sum
	IntegritySum sum.Sum
}

const commitLogBanner = "COMMIT LOG      "

// WriteCommitLogBanner writes the header followed by the fixed
// "COMMIT LOG" banner that opens every commit-log body.
func WriteCommitLogBanner(w io.Writer, repoName string, partition sum.PartitionId, extraBlocks []Block) error {
	blocks := append([]Block{PartitionIdBlock(partition)}, extraBlocks...)
	if err := WriteHeader(w, KindCommitLog, repoName, blocks); err != nil {
		return err
	}
	_, err := io.WriteString(w, commitLogBanner)
	if err != nil {
		return fmt.Errorf("codec: could not write commit-log banner: %w", err)
	}
	return nil
}

// ReadCommitLogBanner reads the header and fixed banner, returning the
// header for its partition id and safe-mode flag.
func ReadCommitLogBanner(r io.Reader) (*Header, error) {
	h, err := ReadHeader(r, KindCommitLog)
	if err != nil {
		return nil, err
	}
	if err := expectMarker(r, commitLogBanner); err != nil {
		return nil, err
	}
	return h, nil
}

// WriteCommitRecord appends one commit or merge record. A record with
// exactly one parent is written as a plain "COMMIT" (the parent count is
// implicit); two or more parents are written as "MERGE" with an explicit
// parent count byte, since only a merge's parent count can vary.
func WriteCommitRecord(w io.Writer, rec CommitRecord) error {
	if len(rec.Parents) == 0 {
		return fmt.Errorf("codec: commit record has no parents: %w", ErrMalformed)
	}
	if len(rec.Parents) > 0xFF {
		return fmt.Errorf("codec: commit record has too many parents for one byte: %w", ErrMalformed)
	}

	hw := &hashingWriter{w: w, h: sum.NewHasher()}

	isMerge := len(rec.Parents) > 1
	if isMerge {
		if _, err := hw.Write([]byte("MERGE")); err != nil {
			return err
		}
		if _, err := hw.Write([]byte{byte(len(rec.Parents))}); err != nil {
			return err
		}
	} else {
		if _, err := hw.Write([]byte("COMMIT")); err != nil {
			return err
		}
	}
	if _, err := hw.Write([]byte{0x00, 'U'}); err != nil {
		return err
	}

	if err := WriteCommitMeta(hw, rec.Meta); err != nil {
		return err
	}
	for _, p := range rec.Parents {
		if _, err := hw.Write(p.Bytes()); err != nil {
			return err
		}
	}

	if err := writeMarker(hw, elementsMarker); err != nil {
		return err
	}
	var countBuf [8]byte
	putUint64(countBuf[:], uint64(len(rec.Changes)))
	if _, err := hw.Write(countBuf[:]); err != nil {
		return err
	}

	for _, c := range rec.Changes {
		if err := writeChange(hw, c); err != nil {
			return err
		}
	}

	if _, err := hw.Write(rec.StateSum.Bytes()); err != nil {
		return err
	}

	commitSum := hw.h.Sum()
	if _, err := w.Write(commitSum.Bytes()); err != nil {
		return fmt.Errorf("codec: could not write commit integrity sum: %w", err)
	}
	return nil
}

func writeChange(w io.Writer, c Change) error {
	var idBuf [8]byte
	putUint64(idBuf[:], uint64(c.Id))

	switch c.Kind {
	case ChangeDelete:
		if _, err := w.Write(zeroPad("ELT DEL", 8)); err != nil {
			return err
		}
		if _, err := w.Write(idBuf[:]); err != nil {
			return err
		}
	case ChangeInsert, ChangeReplace:
		marker := "ELT INS"
		if c.Kind == ChangeReplace {
			marker = "ELT REPL"
		}
		if _, err := w.Write(zeroPad(marker, 8)); err != nil {
			return err
		}
		if _, err := w.Write(idBuf[:]); err != nil {
			return err
		}
		if err := writeMarker(w, "ELT DATA"); err != nil {
			return err
		}
		var lenBuf [8]byte
		putUint64(lenBuf[:], uint64(len(c.Payload)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if err := writePadded(w, c.Payload); err != nil {
			return err
		}
		s := c.Sum
		if s.IsZero() {
			s = sum.ElementSum(c.Id, c.Payload)
		}
		if _, err := w.Write(s.Bytes()); err != nil {
			return err
		}
	default:
		return fmt.Errorf("codec: unknown change kind %d: %w", c.Kind, ErrMalformed)
	}
	return nil
}

// ReadCommitRecord reads one commit or merge record. Truncation (EOF
// partway through a record) surfaces as ErrTruncated so the partition
// engine can treat a log's incomplete tail as a tolerated partial write
// (spec §4.6) rather than a hard corruption.
func ReadCommitRecord(r io.Reader) (*CommitRecord, error) {
	hr := &hashingReader{r: r, h: sum.NewHasher()}

	kindBuf := make([]byte, 6)
	if err := readFull(hr, kindBuf); err != nil {
		return nil, err
	}

	rec := &CommitRecord{}
	switch {
	case string(kindBuf) == "COMMIT":
		rec.IsMerge = false
		rec.Parents = make([]sum.Sum, 1)
	case string(kindBuf[:5]) == "MERGE":
		rec.IsMerge = true
		rec.Parents = make([]sum.Sum, int(kindBuf[5]))
	default:
		return nil, fmt.Errorf("codec: expected COMMIT or MERGE marker, got %q: %w", kindBuf, ErrMalformed)
	}

	pad := make([]byte, 2)
	if err := readFull(hr, pad); err != nil {
		return nil, err
	}

	meta, err := ReadCommitMeta(hr)
	if err != nil {
		return nil, err
	}
	rec.Meta = meta

	for i := range rec.Parents {
		buf := make([]byte, sum.Size)
		if err := readFull(hr, buf); err != nil {
			return nil, err
		}
		rec.Parents[i], _ = sum.FromBytes(buf)
	}

	if err := expectMarker(hr, elementsMarker); err != nil {
		return nil, err
	}
	changeCount, err := readUint64(hr)
	if err != nil {
		return nil, err
	}

	rec.Changes = make([]Change, 0, changeCount)
	for i := uint64(0); i < changeCount; i++ {
		c, err := readChange(hr)
		if err != nil {
			return nil, err
		}
		rec.Changes = append(rec.Changes, c)
	}

	stateSumBuf := make([]byte, sum.Size)
	if err := readFull(hr, stateSumBuf); err != nil {
		return nil, err
	}
	rec.StateSum, _ = sum.FromBytes(stateSumBuf)

	computed := hr.h.Sum()
	gotBuf := make([]byte, sum.Size)
	if err := readFull(r, gotBuf); err != nil {
		return nil, err
	}
	got, _ := sum.FromBytes(gotBuf)
	if got != computed {
		return nil, ErrChecksumMismatch
	}
	rec.IntegritySum = got

	return rec, nil
}

func readChange(r io.Reader) (Change, error) {
	var c Change

	marker := make([]byte, 8)
	if err := readFull(r, marker); err != nil {
		return c, err
	}
	tag := string(trimZeroBytes(marker))

	switch tag {
	case "ELT DEL":
		idVal, err := readUint64(r)
		if err != nil {
			return c, err
		}
		c.Kind = ChangeDelete
		c.Id = sum.ElementId(idVal)
		return c, nil
	case "ELT INS", "ELT REPL":
		if tag == "ELT INS" {
			c.Kind = ChangeInsert
		} else {
			c.Kind = ChangeReplace
		}
		idVal, err := readUint64(r)
		if err != nil {
			return c, err
		}
		c.Id = sum.ElementId(idVal)

		if err := expectMarker(r, "ELT DATA"); err != nil {
			return c, err
		}
		length, err := readUint64(r)
		if err != nil {
			return c, err
		}
		payload, err := readPadded(r, int(length))
		if err != nil {
			return c, err
		}
		c.Payload = payload

		sumBuf := make([]byte, sum.Size)
		if err := readFull(r, sumBuf); err != nil {
			return c, err
		}
		declared, _ := sum.FromBytes(sumBuf)
		if declared != sum.ElementSum(c.Id, c.Payload) {
			return c, ErrChecksumMismatch
		}
		c.Sum = declared
		return c, nil
	case "ELT MOV", "ELT MOVE":
		return c, ErrDeprecatedSectionUnsupported
	default:
		return c, fmt.Errorf("codec: unknown change marker %q: %w", tag, ErrMalformed)
	}
}
