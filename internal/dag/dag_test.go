package dag_test

import (
	"testing"

	"github.com/pippin-db/pippin/internal/codec"
	"github.com/pippin-db/pippin/internal/dag"
	"github.com/pippin-db/pippin/internal/sum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPartition sum.PartitionId = 1

func TestNewRootStateHasNoParentsAndEmptyElements(t *testing.T) {
	t.Parallel()

	root := dag.NewRootState(testPartition, 1000)
	assert.Empty(t, root.Parents)
	assert.Equal(t, 0, root.Elements.Len())
}

func TestAddUpdatesTipSet(t *testing.T) {
	t.Parallel()

	root := dag.NewRootState(testPartition, 1000)
	d := dag.New(testPartition)
	d.Add(root)
	assert.Equal(t, []sum.Sum{root.Sum}, d.Tips())

	id := sum.NewElementId(1, 1)
	rec := buildCommitRecord(t, root, []codec.Change{
		{Kind: codec.ChangeInsert, Id: id, Payload: []byte("v1")},
	}, 1100)
	child, err := dag.ApplyCommit(testPartition, root, rec)
	require.NoError(t, err)
	d.Add(child)

	assert.Equal(t, []sum.Sum{child.Sum}, d.Tips())
	_, stillLoaded := d.Get(root.Sum)
	assert.True(t, stillLoaded)
}

func TestApplyCommitRejectsTamperedStateSum(t *testing.T) {
	t.Parallel()

	root := dag.NewRootState(testPartition, 1000)
	id := sum.NewElementId(1, 1)
	rec := buildCommitRecord(t, root, []codec.Change{
		{Kind: codec.ChangeInsert, Id: id, Payload: []byte("v1")},
	}, 1100)
	rec.StateSum = sum.Of([]byte("wrong"))

	_, err := dag.ApplyCommit(testPartition, root, rec)
	assert.ErrorIs(t, err, dag.ErrCommitCorrupt)
}

func TestReplayAppliesCommitsRegardlessOfOrder(t *testing.T) {
	t.Parallel()

	root := dag.NewRootState(testPartition, 1000)
	id1 := sum.NewElementId(1, 1)
	id2 := sum.NewElementId(1, 2)

	rec1 := buildCommitRecord(t, root, []codec.Change{
		{Kind: codec.ChangeInsert, Id: id1, Payload: []byte("v1")},
	}, 1100)
	state1, err := dag.ApplyCommit(testPartition, root, rec1)
	require.NoError(t, err)

	rec2 := buildCommitRecord(t, state1, []codec.Change{
		{Kind: codec.ChangeInsert, Id: id2, Payload: []byte("v2")},
	}, 1200)

	// Feed the second commit before the first; replay must still resolve
	// it via the retry queue.
	d, report, err := dag.Replay(testPartition, []*dag.PartState{root}, []*codec.CommitRecord{rec2, rec1})
	require.NoError(t, err)
	assert.Equal(t, 2, report.CommitsAccepted)
	assert.Empty(t, report.Unresolved)

	tips := d.Tips()
	require.Len(t, tips, 1)
	final, ok := d.Get(tips[0])
	require.True(t, ok)
	assert.Equal(t, 2, final.Elements.Len())
}

func TestReplayReportsUnresolvedCommits(t *testing.T) {
	t.Parallel()

	root := dag.NewRootState(testPartition, 1000)
	orphanParent := sum.Of([]byte("a parent we never loaded"))
	orphan := &codec.CommitRecord{
		Meta:     codec.CommitMeta{Timestamp: 1300, CommitNumber: 9},
		Parents:  []sum.Sum{orphanParent},
		StateSum: sum.Of([]byte("whatever")),
	}

	_, report, err := dag.Replay(testPartition, []*dag.PartState{root}, []*codec.CommitRecord{orphan})
	require.NoError(t, err)
	assert.Equal(t, 0, report.CommitsAccepted)
	require.Len(t, report.Unresolved, 1)
	assert.False(t, report.Unresolved[0].Corrupt)
	assert.Equal(t, orphanParent, report.Unresolved[0].ExpectedParent)
}

func buildCommitRecord(t *testing.T, parent *dag.PartState, changes []codec.Change, timestamp int64) *codec.CommitRecord {
	t.Helper()

	elems := parent.Elements.Clone()
	for _, c := range changes {
		require.NoError(t, elems.Insert(c.Id, c.Payload))
	}
	meta := codec.CommitMeta{Timestamp: timestamp, CommitNumber: parent.Meta.CommitNumber + 1}
	metaSum := sum.MetaSum(testPartition, meta.CommitNumber, meta.Timestamp, []sum.Sum{parent.Sum}, meta.ExtraMetadataBytes())
	stateSum := metaSum.XOR(elems.Aggregate())

	for i := range changes {
		changes[i].Sum = sum.ElementSum(changes[i].Id, changes[i].Payload)
	}

	return &codec.CommitRecord{
		Meta:     meta,
		Parents:  []sum.Sum{parent.Sum},
		Changes:  changes,
		StateSum: stateSum,
	}
}
