package codec_test

import (
	"bytes"
	"testing"

	"github.com/pippin-db/pippin/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitMetaRoundTrip(t *testing.T) {
	t.Parallel()

	in := codec.CommitMeta{
		Timestamp:    1_700_000_000,
		CommitNumber: 42,
		Flags:        0,
		UserMeta:     []byte("hello world"),
	}

	var buf bytes.Buffer
	require.NoError(t, codec.WriteCommitMeta(&buf, in))

	out, err := codec.ReadCommitMeta(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Timestamp, out.Timestamp)
	assert.Equal(t, in.CommitNumber, out.CommitNumber)
	assert.Equal(t, in.UserMeta, out.UserMeta)
	assert.False(t, out.TextUserMeta)
}

func TestCommitMetaTextTag(t *testing.T) {
	t.Parallel()

	in := codec.CommitMeta{TextUserMeta: true, UserMeta: []byte("plain text note")}
	var buf bytes.Buffer
	require.NoError(t, codec.WriteCommitMeta(&buf, in))

	out, err := codec.ReadCommitMeta(&buf)
	require.NoError(t, err)
	assert.True(t, out.TextUserMeta)
}

func TestExtFlagsMergeIsBitwiseOr(t *testing.T) {
	t.Parallel()

	left := codec.ExtFlags(0b0001)
	right := codec.ExtFlags(0b0100)
	assert.Equal(t, codec.ExtFlags(0b0101), codec.MergeExtFlags(left, right))
}

func TestExtFlagsActiveAndEssential(t *testing.T) {
	t.Parallel()

	f := codec.ExtFlags(0b11)
	assert.True(t, f.Active(0))
	assert.True(t, f.Essential(0))
	assert.False(t, f.Active(1))
}
