// Package dag implements the in-memory history DAG: immutable PartStates
// keyed by state sum, tip tracking, and replay of snapshots plus commit
// logs into a consistent graph (spec §4.4).
package dag

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pippin-db/pippin/internal/codec"
	"github.com/pippin-db/pippin/internal/elementset"
	"github.com/pippin-db/pippin/internal/sum"
)

// ErrCommitCorrupt is returned when applying a commit to its parent
// produces a state sum that doesn't match the commit's declared one, or
// when a change conflicts with the parent's element set (insert onto an
// existing id, replace/delete of a missing one).
var ErrCommitCorrupt = errors.New("dag: commit does not verify against its parent")

// PartState is one immutable state of the partition: its state sum,
// parent sums, element set, and commit metadata (spec §3).
type PartState struct {
	Sum      sum.Sum
	Parents  []sum.Sum
	Elements *elementset.Set
	Meta     codec.CommitMeta
}

// NewRootState builds the empty root state of a brand-new partition:
// zero parents, zero elements, commit number zero.
func NewRootState(partition sum.PartitionId, timestamp int64) *PartState {
	elems := elementset.New(partition)
	meta := codec.CommitMeta{Timestamp: timestamp, CommitNumber: 0}
	metaSum := sum.MetaSum(partition, 0, timestamp, nil, meta.ExtraMetadataBytes())
	return &PartState{
		Sum:      metaSum.XOR(elems.Aggregate()),
		Elements: elems,
		Meta:     meta,
	}
}

// Dag is a set of PartStates indexed by sum, with a maintained tip set
// (states not referenced as any other state's parent).
type Dag struct {
	partition sum.PartitionId
	states    map[sum.Sum]*PartState
	tips      map[sum.Sum]bool
}

// New returns an empty Dag for the given partition.
func New(partition sum.PartitionId) *Dag {
	return &Dag{
		partition: partition,
		states:    make(map[sum.Sum]*PartState),
		tips:      make(map[sum.Sum]bool),
	}
}

// Partition returns the partition this Dag belongs to.
func (d *Dag) Partition() sum.PartitionId {
	return d.partition
}

// Add inserts a state into the Dag, updating the tip set: every one of
// its parents is no longer a tip, and (pending later insertions) it
// becomes one. Adding a state already present is a no-op.
func (d *Dag) Add(s *PartState) {
	if _, exists := d.states[s.Sum]; exists {
		return
	}
	d.states[s.Sum] = s
	for _, p := range s.Parents {
		delete(d.tips, p)
	}
	d.tips[s.Sum] = true
}

// Get looks up a state by its sum.
func (d *Dag) Get(s sum.Sum) (*PartState, bool) {
	st, ok := d.states[s]
	return st, ok
}

// Len returns the number of states held.
func (d *Dag) Len() int {
	return len(d.states)
}

// Tips returns the current tip set, sorted by sum for a stable order
// (used as the parent order of a subsequent merge commit, spec §4.5).
func (d *Dag) Tips() []sum.Sum {
	out := make([]sum.Sum, 0, len(d.tips))
	for s := range d.tips {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Each calls fn once per loaded state, in unspecified order. Used by the
// partition engine's Verify to recompute every state's sum.
func (d *Dag) Each(fn func(*PartState)) {
	for _, st := range d.states {
		fn(st)
	}
}

// ApplyCommit clones parent's element set, applies rec's changes, and
// verifies the resulting state sum matches rec.StateSum. It returns
// ErrCommitCorrupt (wrapped) if a change conflicts with the parent's
// elements or the resulting sum disagrees with what the commit declares.
func ApplyCommit(partition sum.PartitionId, parent *PartState, rec *codec.CommitRecord) (*PartState, error) {
	elems := parent.Elements.Clone()
	for _, c := range rec.Changes {
		var err error
		switch c.Kind {
		case codec.ChangeInsert:
			err = elems.Insert(c.Id, c.Payload)
		case codec.ChangeReplace:
			err = elems.Replace(c.Id, c.Payload)
		case codec.ChangeDelete:
			err = elems.Remove(c.Id)
		default:
			err = fmt.Errorf("dag: unknown change kind %d", c.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("dag: change on element %d: %w: %v", c.Id, ErrCommitCorrupt, err)
		}
	}

	metaSum := sum.MetaSum(partition, rec.Meta.CommitNumber, rec.Meta.Timestamp, rec.Parents, rec.Meta.ExtraMetadataBytes())
	stateSum := metaSum.XOR(elems.Aggregate())
	if stateSum != rec.StateSum {
		return nil, fmt.Errorf("dag: computed state sum %s != declared %s: %w", stateSum, rec.StateSum, ErrCommitCorrupt)
	}

	return &PartState{
		Sum:      stateSum,
		Parents:  rec.Parents,
		Elements: elems,
		Meta:     rec.Meta,
	}, nil
}
