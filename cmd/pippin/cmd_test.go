package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pippin-db/pippin/internal/pathutil"
)

func newTestCfg(t *testing.T) *globalFlags {
	t.Helper()
	base := "ab"
	return &globalFlags{
		dir:  pathutil.NewDirPathFlagWithDefault(t.TempDir()),
		base: &base,
	}
}

func TestInitCmdCreatesPartition(t *testing.T) {
	cfg := newTestCfg(t)
	var out bytes.Buffer

	require.NoError(t, initCmd(&out, cfg, "1", "test-repo"))
	assert.Contains(t, out.String(), "initialized partition \"ab\"")
}

func TestInitCmdRejectsOversizedId(t *testing.T) {
	cfg := newTestCfg(t)
	var out bytes.Buffer

	err := initCmd(&out, cfg, "99999999999999", "test-repo")
	require.Error(t, err)
}

func TestPutGetDelRoundTrip(t *testing.T) {
	cfg := newTestCfg(t)
	var out bytes.Buffer

	require.NoError(t, initCmd(&out, cfg, "1", "test-repo"))
	out.Reset()

	require.NoError(t, putCmd(&out, cfg, "", "hello"))
	id := strings.TrimSpace(out.String())
	require.NotEmpty(t, id)

	out.Reset()
	require.NoError(t, getCmd(&out, cfg, id))
	assert.Equal(t, "hello", out.String())

	out.Reset()
	require.NoError(t, delCmd(&out, cfg, id))

	out.Reset()
	err := getCmd(&out, cfg, id)
	assert.ErrorIs(t, err, errElementNotFound)
}

func TestListCmdListsInsertedIds(t *testing.T) {
	cfg := newTestCfg(t)
	var out bytes.Buffer

	require.NoError(t, initCmd(&out, cfg, "1", "test-repo"))
	out.Reset()
	require.NoError(t, putCmd(&out, cfg, "", "one"))
	out.Reset()
	require.NoError(t, putCmd(&out, cfg, "", "two"))

	out.Reset()
	require.NoError(t, listCmd(&out, cfg))
	lines := strings.Fields(out.String())
	assert.Len(t, lines, 2)
}

func TestLogCmdWalksHistory(t *testing.T) {
	cfg := newTestCfg(t)
	var out bytes.Buffer

	require.NoError(t, initCmd(&out, cfg, "1", "test-repo"))
	out.Reset()
	require.NoError(t, putCmd(&out, cfg, "", "one"))

	out.Reset()
	require.NoError(t, logCmd(&out, cfg))
	assert.Contains(t, out.String(), "commit=")
}

func TestMergeCmdOnSingleTipPrintsTip(t *testing.T) {
	cfg := newTestCfg(t)
	var out bytes.Buffer

	require.NoError(t, initCmd(&out, cfg, "1", "test-repo"))

	out.Reset()
	require.NoError(t, putCmd(&out, cfg, "", "one"))

	out.Reset()
	require.NoError(t, putCmd(&out, cfg, "", "two"))

	out.Reset()
	err := mergeCmd(&out, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out.String()))
}
