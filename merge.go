package pippin

import (
	"time"

	"github.com/pippin-db/pippin/internal/codec"
	"github.com/pippin-db/pippin/internal/dag"
	"github.com/pippin-db/pippin/internal/merge"
)

// Merge consolidates every tip into one state, invoking resolver for any
// element whose three-way merge can't be decided mechanically (spec
// §4.5, §6). A single-tip partition is left unchanged. Three or more
// tips are folded pairwise, left to right over the sorted tip list, and
// every intermediate merge is persisted as its own commit record so a
// reload reproduces the same sequence of states.
func (p *Partition) Merge(resolver merge.Resolver) (*dag.PartState, error) {
	tips := p.dag.Tips()
	if len(tips) == 0 {
		return nil, ErrNoTips
	}
	cur, ok := p.dag.Get(tips[0])
	if !ok {
		return nil, ErrNoTips
	}
	if len(tips) == 1 {
		return cur, nil
	}

	for _, next := range tips[1:] {
		nextState, ok := p.dag.Get(next)
		if !ok {
			return nil, ErrNoTips
		}

		merged, err := merge.MergeTwo(p.dag, p.partitionID, time.Now().UnixNano(), cur, nextState, resolver)
		if err != nil {
			return nil, err
		}
		if err := p.persistMergeCommit(merged); err != nil {
			return nil, err
		}
		p.dag.Add(merged)
		cur = merged
	}
	return cur, nil
}

// persistMergeCommit appends merged as a commit record whose changes are
// expressed as a diff from its first-listed parent's elements, since
// replay only ever applies a record's changes to that parent (spec §4.4
// step 4, dag.ApplyCommit). merged.Parents is sorted by sum, which may
// not match the {cur, nextState} order the caller folded in, so the
// first parent's elements are looked up fresh rather than assumed.
func (p *Partition) persistMergeCommit(merged *dag.PartState) error {
	firstParent, ok := p.dag.Get(merged.Parents[0])
	if !ok {
		return ErrNoTips
	}
	changes := diffElements(firstParent.Elements, merged.Elements)
	rec := codec.CommitRecord{
		Meta:     merged.Meta,
		Parents:  merged.Parents,
		Changes:  changes,
		StateSum: merged.Sum,
	}
	return p.appendRecord(rec)
}
