package merge

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pippin-db/pippin/internal/codec"
	"github.com/pippin-db/pippin/internal/dag"
	"github.com/pippin-db/pippin/internal/elementset"
	"github.com/pippin-db/pippin/internal/sum"
)

// Merge folds every tip of d into a single new state, invoking resolver
// for conflicts, and returns it. Each folded state, the returned one
// included, is added to d so later folds can walk its ancestry; writing
// it to a log is left to the caller. A Dag with a single tip is returned unchanged. Merging 3+ tips is done
// pairwise, left to right over the sorted tip list (spec §4.5: "iterated
// for t > 2 pairwise").
func Merge(d *dag.Dag, partition sum.PartitionId, timestamp int64, resolver Resolver) (*dag.PartState, error) {
	tips := d.Tips()
	if len(tips) == 0 {
		return nil, fmt.Errorf("merge: no tips to merge")
	}
	cur, ok := d.Get(tips[0])
	if !ok {
		return nil, fmt.Errorf("merge: tip %s missing from dag", tips[0])
	}
	if len(tips) == 1 {
		return cur, nil
	}

	for _, next := range tips[1:] {
		nextState, ok := d.Get(next)
		if !ok {
			return nil, fmt.Errorf("merge: tip %s missing from dag", next)
		}
		merged, err := MergeTwo(d, partition, timestamp, cur, nextState, resolver)
		if err != nil {
			return nil, err
		}
		d.Add(merged)
		cur = merged
	}
	return cur, nil
}

// MergeTwo merges exactly two states and returns the resulting PartState
// without adding it to d. Exported so a caller that must persist every
// intermediate step of a 3+-tip merge (the partition engine, writing one
// commit record per pairwise fold) can drive the same fold Merge uses
// internally.
func MergeTwo(d *dag.Dag, partition sum.PartitionId, timestamp int64, left, right *dag.PartState, resolver Resolver) (*dag.PartState, error) {
	ancestorSum, haveAncestor := CommonAncestor(d, left.Sum, right.Sum)
	var ancestorState *dag.PartState
	if haveAncestor {
		ancestorState, _ = d.Get(ancestorSum)
	}

	ids := map[sum.ElementId]bool{}
	left.Elements.Each(func(id sum.ElementId, _ []byte) { ids[id] = true })
	right.Elements.Each(func(id sum.ElementId, _ []byte) { ids[id] = true })
	if ancestorState != nil {
		ancestorState.Elements.Each(func(id sum.ElementId, _ []byte) { ids[id] = true })
	}

	merged := elementset.New(partition)
	for id := range ids {
		payload, present, err := resolveOne(id, ancestorState, left, right, resolver)
		if err != nil {
			return nil, err
		}
		if present {
			if err := merged.Insert(id, payload); err != nil {
				return nil, fmt.Errorf("merge: building merged set: %w", err)
			}
		}
	}

	commitNumber := left.Meta.CommitNumber
	if right.Meta.CommitNumber > commitNumber {
		commitNumber = right.Meta.CommitNumber
	}
	commitNumber++

	meta := codec.CommitMeta{
		Timestamp:    timestamp,
		CommitNumber: commitNumber,
		Flags:        codec.MergeExtFlags(left.Meta.Flags, right.Meta.Flags),
	}

	parents := []sum.Sum{left.Sum, right.Sum}
	sort.Slice(parents, func(i, j int) bool { return parents[i].Less(parents[j]) })

	metaSum := sum.MetaSum(partition, meta.CommitNumber, meta.Timestamp, parents, meta.ExtraMetadataBytes())
	stateSum := metaSum.XOR(merged.Aggregate())

	return &dag.PartState{
		Sum:      stateSum,
		Parents:  parents,
		Elements: merged,
		Meta:     meta,
	}, nil
}

func sideOf(state *dag.PartState, id sum.ElementId) Side {
	if state == nil {
		return Side{}
	}
	payload, ok := state.Elements.Get(id)
	return Side{Payload: payload, Present: ok}
}

// resolveOne applies the three-way table from spec §4.5 to one element,
// falling back to resolver for genuine edit/edit or edit/delete
// conflicts, and also for the no-ancestor case where both sides insert
// the same id with different payloads -- the natural extension of the
// table's "X Y Z (Y!=Z)" conflict row to an id that never existed in a
// common ancestor at all.
func resolveOne(id sum.ElementId, ancestorState, left, right *dag.PartState, resolver Resolver) (payload []byte, present bool, err error) {
	anc := sideOf(ancestorState, id)
	l := sideOf(left, id)
	r := sideOf(right, id)

	switch {
	case anc.Present && l.Present && r.Present:
		leftChanged := !bytes.Equal(anc.Payload, l.Payload)
		rightChanged := !bytes.Equal(anc.Payload, r.Payload)
		switch {
		case !leftChanged && !rightChanged:
			return anc.Payload, true, nil
		case !leftChanged && rightChanged:
			return r.Payload, true, nil
		case leftChanged && !rightChanged:
			return l.Payload, true, nil
		case bytes.Equal(l.Payload, r.Payload):
			return l.Payload, true, nil
		default:
			return resolveConflict(id, anc, l, r, resolver)
		}

	case !anc.Present && l.Present && !r.Present:
		return l.Payload, true, nil
	case !anc.Present && !l.Present && r.Present:
		return r.Payload, true, nil
	case anc.Present && !l.Present && !r.Present:
		return nil, false, nil

	case anc.Present && l.Present && !r.Present:
		if !bytes.Equal(anc.Payload, l.Payload) {
			return resolveConflict(id, anc, l, r, resolver)
		}
		return nil, false, nil
	case anc.Present && !l.Present && r.Present:
		if !bytes.Equal(anc.Payload, r.Payload) {
			return resolveConflict(id, anc, l, r, resolver)
		}
		return nil, false, nil

	case !anc.Present && l.Present && r.Present:
		if bytes.Equal(l.Payload, r.Payload) {
			return l.Payload, true, nil
		}
		return resolveConflict(id, anc, l, r, resolver)

	default:
		// Not present anywhere, or only ever absent-then-absent; nothing
		// to carry forward.
		return nil, false, nil
	}
}

func resolveConflict(id sum.ElementId, anc, l, r Side, resolver Resolver) ([]byte, bool, error) {
	if resolver == nil {
		return nil, false, fmt.Errorf("merge: element %d: no resolver configured: %w", id, ErrConflict)
	}
	decision, err := resolver.Resolve(id, anc, l, r)
	if err != nil {
		return nil, false, fmt.Errorf("merge: element %d: resolver failed: %w", id, err)
	}
	switch decision.Kind {
	case KeepLeft:
		return l.Payload, l.Present, nil
	case KeepRight:
		return r.Payload, r.Present, nil
	case KeepAncestor:
		if !anc.Present {
			return nil, false, fmt.Errorf("merge: element %d: keep-ancestor requested but no ancestor value exists: %w", id, ErrConflict)
		}
		return anc.Payload, true, nil
	case KeepFresh:
		return decision.Payload, true, nil
	default:
		return nil, false, fmt.Errorf("merge: element %d: resolver declined: %w", id, ErrConflict)
	}
}
