// Package codec implements the chunk-aligned binary format described in
// spec §4.2: the self-describing extensible header, the snapshot body,
// the commit-log body, and the per-element / per-commit sections. Every
// value written by this package can be parsed back by it byte-for-byte
// (spec §8's round-trip law).
package codec

import "errors"

// Format errors: magic, chunk alignment, section markers, or lengths
// violate the spec. These abort parsing of the current file; callers at
// the partition-engine layer are expected to continue with other files
// (spec §7).
var (
	// ErrBadMagic is returned when a file doesn't start with any magic
	// (current or deprecated-but-readable) recognized for its kind.
	ErrBadMagic = errors.New("codec: unrecognized file magic")
	// ErrObsoleteMagic is returned when a file carries a magic older than
	// every magic this codec still accepts.
	ErrObsoleteMagic = errors.New("codec: file format is too old to read")
	// ErrTruncated is returned when a read ends before a required field
	// was fully consumed.
	ErrTruncated = errors.New("codec: unexpected end of data")
	// ErrMalformed is returned when a section marker, length, or shape
	// byte does not match what the format requires at that offset.
	ErrMalformed = errors.New("codec: malformed section")
	// ErrEssentialBlockUnknown names an essential header block this codec
	// does not recognize. ReadHeader does not return it: such a block
	// sets Header.SafeMode and parsing continues.
	ErrEssentialBlockUnknown = errors.New("codec: unknown essential header block")
	// ErrChecksumMismatch is returned when a header, body, or commit
	// integrity sum does not match the bytes it covers.
	ErrChecksumMismatch = errors.New("codec: checksum mismatch")
	// ErrUnsupportedSumAlgorithm is returned when the header's SUM block
	// names an algorithm other than the one this codec implements.
	ErrUnsupportedSumAlgorithm = errors.New("codec: unsupported checksum algorithm")
	// ErrDeprecatedSectionUnsupported is returned when a file contains a
	// deprecated ELTMOVES or ELT MOV* section. The spec only requires
	// these to be "read and discard", but it never documents their
	// internal layout, and no writer in this codec ever emits one; since
	// a layout-free skip cannot be done safely, a file carrying one is
	// treated like any other corrupt file (spec §7: skip it, keep going).
	ErrDeprecatedSectionUnsupported = errors.New("codec: deprecated move-section encountered")
)
