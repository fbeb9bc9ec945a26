package codec_test

import (
	"bytes"
	"testing"

	"github.com/pippin-db/pippin/internal/codec"
	"github.com/pippin-db/pippin/internal/sum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitRecordRoundTrip(t *testing.T) {
	t.Parallel()

	parent := sum.Of([]byte("parent"))
	id := sum.NewElementId(3, 9)
	rec := codec.CommitRecord{
		Meta:    codec.CommitMeta{Timestamp: 5, CommitNumber: 1},
		Parents: []sum.Sum{parent},
		Changes: []codec.Change{
			{Kind: codec.ChangeInsert, Id: id, Payload: []byte("payload")},
		},
		StateSum: sum.Of([]byte("new state")),
	}

	var buf bytes.Buffer
	require.NoError(t, codec.WriteCommitRecord(&buf, rec))

	out, err := codec.ReadCommitRecord(&buf)
	require.NoError(t, err)
	assert.False(t, out.IsMerge)
	assert.Equal(t, rec.StateSum, out.StateSum)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, codec.ChangeInsert, out.Changes[0].Kind)
	assert.Equal(t, []byte("payload"), out.Changes[0].Payload)
}

func TestMergeRecordRoundTrip(t *testing.T) {
	t.Parallel()

	p1 := sum.Of([]byte("left"))
	p2 := sum.Of([]byte("right"))
	id := sum.NewElementId(3, 1)
	rec := codec.CommitRecord{
		Meta:    codec.CommitMeta{Timestamp: 9, CommitNumber: 4},
		Parents: []sum.Sum{p1, p2},
		Changes: []codec.Change{
			{Kind: codec.ChangeDelete, Id: id},
		},
		StateSum: sum.Of([]byte("merged state")),
	}

	var buf bytes.Buffer
	require.NoError(t, codec.WriteCommitRecord(&buf, rec))

	out, err := codec.ReadCommitRecord(&buf)
	require.NoError(t, err)
	assert.True(t, out.IsMerge)
	require.Len(t, out.Parents, 2)
	assert.Equal(t, p1, out.Parents[0])
	assert.Equal(t, p2, out.Parents[1])
	require.Len(t, out.Changes, 1)
	assert.Equal(t, codec.ChangeDelete, out.Changes[0].Kind)
}

func TestCommitLogBannerRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, codec.WriteCommitLogBanner(&buf, "demo", 2, nil))

	h, err := codec.ReadCommitLogBanner(&buf)
	require.NoError(t, err)
	pid, ok := codec.FindPartitionId(h)
	require.True(t, ok)
	assert.Equal(t, sum.PartitionId(2), pid)
}

func TestCommitRecordTruncatedTailIsReportedAsTruncated(t *testing.T) {
	t.Parallel()

	rec := codec.CommitRecord{
		Meta:     codec.CommitMeta{Timestamp: 1, CommitNumber: 1},
		Parents:  []sum.Sum{sum.Of([]byte("p"))},
		StateSum: sum.Of([]byte("s")),
	}
	var buf bytes.Buffer
	require.NoError(t, codec.WriteCommitRecord(&buf, rec))

	truncated := buf.Bytes()[:buf.Len()-10]
	_, err := codec.ReadCommitRecord(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, codec.ErrTruncated)
}

func TestCommitLogReplayToleratesTruncatedTail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, codec.WriteCommitLogBanner(&buf, "demo", 1, nil))

	good := codec.CommitRecord{
		Meta:     codec.CommitMeta{Timestamp: 1, CommitNumber: 1},
		Parents:  []sum.Sum{sum.Of([]byte("root"))},
		StateSum: sum.Of([]byte("s1")),
	}
	require.NoError(t, codec.WriteCommitRecord(&buf, good))

	second := codec.CommitRecord{
		Meta:     codec.CommitMeta{Timestamp: 2, CommitNumber: 2},
		Parents:  []sum.Sum{good.StateSum},
		StateSum: sum.Of([]byte("s2")),
	}
	var secondBuf bytes.Buffer
	require.NoError(t, codec.WriteCommitRecord(&secondBuf, second))
	buf.Write(secondBuf.Bytes()[:secondBuf.Len()/2])

	_, err := codec.ReadCommitLogBanner(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	r := bytes.NewReader(buf.Bytes())
	_, _ = codec.ReadCommitLogBanner(r)

	first, err := codec.ReadCommitRecord(r)
	require.NoError(t, err)
	assert.Equal(t, good.StateSum, first.StateSum)

	_, err = codec.ReadCommitRecord(r)
	assert.ErrorIs(t, err, codec.ErrTruncated)
}
