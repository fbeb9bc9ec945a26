package merge

import (
	"errors"

	"github.com/pippin-db/pippin/internal/sum"
)

// ErrConflict is returned (wrapped) when a per-element three-way merge
// can't be resolved automatically and either no Resolver was configured
// or it declined to decide (spec §4.5: "the partition stays with
// multiple tips and is readable but not writable").
var ErrConflict = errors.New("merge: unresolved conflict")

// DecisionKind is a conflict resolver's choice for one conflicting
// element (spec §4.5: "keep-left, keep-right, keep-ancestor ..., or
// provide a fresh payload").
type DecisionKind int

const (
	KeepLeft DecisionKind = iota
	KeepRight
	KeepAncestor
	KeepFresh
	Decline
)

// Decision is a Resolver's answer for one conflicting element.
type Decision struct {
	Kind    DecisionKind
	Payload []byte
}

// Side describes one party's view of an element going into a conflict:
// its payload and whether it exists at all (false means deleted or never
// present).
type Side struct {
	Payload []byte
	Present bool
}

// Resolver is the external collaborator invoked for every element whose
// three-way merge can't be decided mechanically. Returning a Decision
// with Kind == Decline causes the whole merge to fail with ErrConflict.
type Resolver interface {
	Resolve(id sum.ElementId, ancestor, left, right Side) (Decision, error)
}
