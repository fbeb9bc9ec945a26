// Package elementset implements the in-memory element store: a mapping
// from element identifier to opaque payload, with an incrementally
// maintained XOR aggregate of element sums (spec §4.3).
package elementset

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pippin-db/pippin/internal/sum"
)

// ErrElementExists is returned by Insert when the identifier is already
// present.
var ErrElementExists = errors.New("elementset: element already exists")

// ErrElementNotFound is returned by Replace and Remove when the
// identifier isn't present (Get reports absence with its bool result).
var ErrElementNotFound = errors.New("elementset: element not found")

// ErrSuffixSpaceExhausted is returned by NewId when every 24-bit suffix
// in the partition is already in use.
var ErrSuffixSpaceExhausted = errors.New("elementset: no free element suffix in this partition")

type entry struct {
	payload []byte
	sum     sum.Sum
}

// Set is a copy-on-write-friendly element store for one partition. The
// zero value is not usable; construct with New.
type Set struct {
	partition sum.PartitionId
	elements  map[sum.ElementId]entry
	aggregate sum.Sum
}

// New returns an empty element set for the given partition.
func New(partition sum.PartitionId) *Set {
	return &Set{
		partition: partition,
		elements:  make(map[sum.ElementId]entry),
	}
}

// Partition returns the partition this set belongs to.
func (s *Set) Partition() sum.PartitionId {
	return s.partition
}

// Len returns the number of elements currently stored.
func (s *Set) Len() int {
	return len(s.elements)
}

// Aggregate returns the XOR of every element's sum, the value folded
// against a meta sum to produce a state sum (spec §4.1).
func (s *Set) Aggregate() sum.Sum {
	return s.aggregate
}

// Get returns the payload stored for id, if any.
func (s *Set) Get(id sum.ElementId) ([]byte, bool) {
	e, ok := s.elements[id]
	if !ok {
		return nil, false
	}
	return e.payload, true
}

// Insert adds a new element. It fails if id is already present.
func (s *Set) Insert(id sum.ElementId, payload []byte) error {
	if _, exists := s.elements[id]; exists {
		return fmt.Errorf("elementset: insert %d: %w", id, ErrElementExists)
	}
	s.put(id, payload)
	return nil
}

// Replace overwrites the payload of an existing element. It fails if id
// isn't present.
func (s *Set) Replace(id sum.ElementId, payload []byte) error {
	old, exists := s.elements[id]
	if !exists {
		return fmt.Errorf("elementset: replace %d: %w", id, ErrElementNotFound)
	}
	s.aggregate = s.aggregate.XOR(old.sum)
	s.put(id, payload)
	return nil
}

// Remove deletes an existing element. It fails if id isn't present.
func (s *Set) Remove(id sum.ElementId) error {
	old, exists := s.elements[id]
	if !exists {
		return fmt.Errorf("elementset: remove %d: %w", id, ErrElementNotFound)
	}
	delete(s.elements, id)
	s.aggregate = s.aggregate.XOR(old.sum)
	return nil
}

// put inserts or overwrites id's entry and folds its sum into the
// aggregate. Callers are responsible for having already XORed out any
// prior sum for id.
func (s *Set) put(id sum.ElementId, payload []byte) {
	es := sum.ElementSum(id, payload)
	s.elements[id] = entry{payload: payload, sum: es}
	s.aggregate = s.aggregate.XOR(es)
}

// restore is like put, but trusts a sum already computed (e.g. read from
// a file) instead of recomputing it. Used when a snapshot is loaded,
// whose element sums the codec has already verified.
func (s *Set) restore(id sum.ElementId, payload []byte, elementSum sum.Sum) {
	s.elements[id] = entry{payload: payload, sum: elementSum}
	s.aggregate = s.aggregate.XOR(elementSum)
}

// Restore inserts a previously-verified element without recomputing its
// sum. It does not check for a pre-existing id; callers load into a
// fresh Set.
func (s *Set) Restore(id sum.ElementId, payload []byte, elementSum sum.Sum) {
	s.restore(id, payload, elementSum)
}

// Clone returns a deep copy suitable as the basis of a mutating working
// state (spec §3: "a mutating working state is a copy-on-write
// descendant of a chosen tip").
func (s *Set) Clone() *Set {
	out := &Set{
		partition: s.partition,
		elements:  make(map[sum.ElementId]entry, len(s.elements)),
		aggregate: s.aggregate,
	}
	for id, e := range s.elements {
		payload := make([]byte, len(e.payload))
		copy(payload, e.payload)
		out.elements[id] = entry{payload: payload, sum: e.sum}
	}
	return out
}

// Each calls fn once per element. Iteration order is unspecified (spec
// Non-goals rule out ordered iteration).
func (s *Set) Each(fn func(id sum.ElementId, payload []byte)) {
	for id, e := range s.elements {
		fn(id, e.payload)
	}
}

// Has reports whether id is present.
func (s *Set) Has(id sum.ElementId) bool {
	_, ok := s.elements[id]
	return ok
}

// NewId draws a fresh, unused 24-bit suffix for this partition: a
// uniformly random starting point, linearly probed forward until a free
// value is found (spec §4.3).
func (s *Set) NewId() (sum.ElementId, error) {
	start, err := randomSuffix()
	if err != nil {
		return 0, err
	}
	for i := 0; i <= sum.MaxElementSuffix; i++ {
		suffix := (start + uint32(i)) & sum.MaxElementSuffix
		id := sum.NewElementId(s.partition, suffix)
		if !s.Has(id) {
			return id, nil
		}
	}
	return 0, ErrSuffixSpaceExhausted
}

func randomSuffix() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("elementset: could not draw random suffix: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]) & sum.MaxElementSuffix, nil
}
