package streamio_test

import (
	"io"
	"testing"

	"github.com/pippin-db/pippin/internal/streamio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemProviderCreateOpenRoundTrip(t *testing.T) {
	t.Parallel()

	p := streamio.NewMemProvider()

	f, err := p.Create("/repo/demo-ss1.pip")
	require.NoError(t, err)
	_, err = f.Write([]byte("snapshot body"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := p.Open("/repo/demo-ss1.pip")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "snapshot body", string(data))
}

func TestMemProviderAppendAccumulates(t *testing.T) {
	t.Parallel()

	p := streamio.NewMemProvider()
	for _, chunk := range []string{"first", "second"} {
		f, err := p.OpenAppend("/repo/demo-ss1-cl1.piplog")
		require.NoError(t, err)
		_, err = f.Write([]byte(chunk))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	r, err := p.Open("/repo/demo-ss1-cl1.piplog")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "firstsecond", string(data))
}

func TestMemProviderReadDirListsEntries(t *testing.T) {
	t.Parallel()

	p := streamio.NewMemProvider()
	for _, name := range []string{"/repo/demo-ss1.pip", "/repo/demo-ss1-cl1.piplog"} {
		f, err := p.Create(name)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	entries, err := p.ReadDir("/repo")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
