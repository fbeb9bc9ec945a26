package pippin_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pippin-db/pippin"
	"github.com/pippin-db/pippin/internal/streamio"
)

// flipLastByte corrupts name's trailing byte in place, the simplest way
// to break a file's own body integrity sum without touching its shape.
func flipLastByte(t *testing.T, provider *streamio.FSProvider, name string) {
	t.Helper()

	rf, err := provider.Open(name)
	require.NoError(t, err)
	raw, err := io.ReadAll(rf)
	require.NoError(t, err)
	require.NoError(t, rf.Close())
	require.NotEmpty(t, raw)

	raw[len(raw)-1] ^= 0xFF

	wf, err := provider.Create(name)
	require.NoError(t, err)
	_, err = wf.Write(raw)
	require.NoError(t, err)
	require.NoError(t, wf.Close())
}

func truncateBytes(t *testing.T, provider *streamio.FSProvider, name string, n int) {
	t.Helper()

	rf, err := provider.Open(name)
	require.NoError(t, err)
	raw, err := io.ReadAll(rf)
	require.NoError(t, err)
	require.NoError(t, rf.Close())
	require.Greater(t, len(raw), n)

	wf, err := provider.Create(name)
	require.NoError(t, err)
	_, err = wf.Write(raw[:len(raw)-n])
	require.NoError(t, err)
	require.NoError(t, wf.Close())
}

func TestOpenFallsBackPastCorruptedSnapshot(t *testing.T) {
	provider := streamio.NewMemProvider()

	p, err := pippin.Create(provider, "/p", "ab", 0x01, "test-repo")
	require.NoError(t, err)

	m, err := p.WorkingFrom(p.Tip().Sum)
	require.NoError(t, err)
	_, err = m.Insert([]byte("hi"))
	require.NoError(t, err)
	want, err := p.Commit(m, pippin.CommitOptions{})
	require.NoError(t, err)

	require.NoError(t, p.Snapshot(true))

	flipLastByte(t, provider, "/p/ab-ss1.pip")

	reloaded, err := pippin.Open(provider, "/p", "ab")
	require.NoError(t, err)

	tip := reloaded.Tip()
	require.False(t, tip.MultiTip)
	assert.Equal(t, want.Sum, tip.Sum)

	state, ok := reloaded.State(tip.Sum)
	require.True(t, ok)
	assert.Equal(t, 1, state.Elements.Len())
}

func TestTruncatedLogRecoversEarlierCommits(t *testing.T) {
	provider := streamio.NewMemProvider()

	p, err := pippin.Create(provider, "/p", "ab", 0x01, "test-repo")
	require.NoError(t, err)

	m1, err := p.WorkingFrom(p.Tip().Sum)
	require.NoError(t, err)
	_, err = m1.Insert([]byte("first"))
	require.NoError(t, err)
	firstCommit, err := p.Commit(m1, pippin.CommitOptions{})
	require.NoError(t, err)

	m2, err := p.WorkingFrom(firstCommit.Sum)
	require.NoError(t, err)
	_, err = m2.Insert([]byte("second"))
	require.NoError(t, err)
	_, err = p.Commit(m2, pippin.CommitOptions{})
	require.NoError(t, err)

	// The session's second commit went to its sibling log, cl2.
	truncateBytes(t, provider, "/p/ab-ss0-cl2.piplog", 8)

	reloaded, err := pippin.Open(provider, "/p", "ab")
	require.NoError(t, err)

	tip := reloaded.Tip()
	require.False(t, tip.MultiTip)
	assert.Equal(t, firstCommit.Sum, tip.Sum)

	report := reloaded.LastLoadReport()
	require.NotNil(t, report)
	assert.Equal(t, 1, report.CommitsAccepted)
}
