package pippin

import (
	"bytes"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/pippin-db/pippin/internal/codec"
	"github.com/pippin-db/pippin/internal/dag"
	"github.com/pippin-db/pippin/internal/elementset"
	"github.com/pippin-db/pippin/internal/sum"
)

// Mutator is a working copy of one tip state: inserts, replaces, and
// removes accumulate against an in-memory clone until Commit diffs it
// back against its base and appends the resulting commit (spec §6).
type Mutator struct {
	partition *Partition
	base      *dag.PartState
	elements  *elementset.Set
}

// WorkingFrom begins a mutation against tipSum, which must name a state
// currently loaded in the partition (typically the sole result of Tip()).
func (p *Partition) WorkingFrom(tipSum sum.Sum) (*Mutator, error) {
	state, ok := p.dag.Get(tipSum)
	if !ok {
		return nil, ErrUnknownTip
	}
	return &Mutator{
		partition: p,
		base:      state,
		elements:  state.Elements.Clone(),
	}, nil
}

// Insert adds a new element and returns its freshly allocated id.
func (m *Mutator) Insert(payload []byte) (sum.ElementId, error) {
	id, err := m.elements.NewId()
	if err != nil {
		return 0, err
	}
	if err := m.elements.Insert(id, payload); err != nil {
		return 0, err
	}
	return id, nil
}

// Replace overwrites an existing element's payload.
func (m *Mutator) Replace(id sum.ElementId, payload []byte) error {
	return m.elements.Replace(id, payload)
}

// Remove deletes an existing element.
func (m *Mutator) Remove(id sum.ElementId) error {
	return m.elements.Remove(id)
}

// Get returns the current payload for id within this working copy.
func (m *Mutator) Get(id sum.ElementId) ([]byte, bool) {
	return m.elements.Get(id)
}

// CommitOptions carries the optional user metadata attached to a commit
// (spec §6's "commit(Mutator, user_meta?)").
type CommitOptions struct {
	UserMeta     []byte
	TextUserMeta bool
}

// Commit diffs m's working copy against its base state, appends the
// resulting commit record to this session's owned log, and advances the
// partition's history with the new state (spec §4.6, §5).
func (p *Partition) Commit(m *Mutator, opts CommitOptions) (*dag.PartState, error) {
	if m.partition != p {
		return nil, errors.New("pippin: mutator does not belong to this partition")
	}
	if p.Tip().MultiTip {
		return nil, ErrMultipleTips
	}

	changes :=diffElements(m.base.Elements, m.elements)
	if len(changes) == 0 {
		return m.base, nil
	}

	meta := codec.CommitMeta{
		Timestamp:    time.Now().UnixNano(),
		CommitNumber: m.base.Meta.CommitNumber + 1,
		Flags:        m.base.Meta.Flags,
		UserMeta:     opts.UserMeta,
		TextUserMeta: opts.TextUserMeta,
	}
	parents := []sum.Sum{m.base.Sum}
	metaSum := sum.MetaSum(p.partitionID, meta.CommitNumber, meta.Timestamp, parents, meta.ExtraMetadataBytes())
	stateSum := metaSum.XOR(m.elements.Aggregate())

	rec := codec.CommitRecord{
		Meta:     meta,
		Parents:  parents,
		Changes:  changes,
		StateSum: stateSum,
	}

	child, err := dag.ApplyCommit(p.partitionID, m.base, &rec)
	if err != nil {
		return nil, err
	}

	if err := p.appendRecord(rec); err != nil {
		return nil, err
	}

	p.dag.Add(child)
	return child, nil
}

// diffElements computes the minimal set of per-element changes that
// turns old into next (spec §8's "commit diff then apply is identity").
// A net-zero edit (e.g. insert then delete of the same id within one
// mutator) produces no change at all.
func diffElements(old, next *elementset.Set) []codec.Change {
	var changes []codec.Change

	next.Each(func(id sum.ElementId, payload []byte) {
		oldPayload, existed := old.Get(id)
		switch {
		case !existed:
			changes = append(changes, codec.Change{Kind: codec.ChangeInsert, Id: id, Payload: payload})
		case !bytes.Equal(oldPayload, payload):
			changes = append(changes, codec.Change{Kind: codec.ChangeReplace, Id: id, Payload: payload})
		}
	})
	old.Each(func(id sum.ElementId, _ []byte) {
		if !next.Has(id) {
			changes = append(changes, codec.Change{Kind: codec.ChangeDelete, Id: id})
		}
	})

	sort.Slice(changes, func(i, j int) bool { return changes[i].Id < changes[j].Id })
	return changes
}
