package main

import (
	"errors"
	"io/fs"
	"strconv"

	"github.com/pippin-db/pippin"
	"github.com/pippin-db/pippin/internal/codec"
	"github.com/pippin-db/pippin/internal/dag"
	"github.com/pippin-db/pippin/internal/merge"
	"github.com/pippin-db/pippin/internal/streamio"
	"github.com/pippin-db/pippin/internal/sum"
)

// errElementNotFound and errMultiTip are the two conditions the get/put/
// del/list subcommands treat as ordinary usage errors rather than
// corruption: asking for an id that isn't there, or acting on a
// partition that needs a merge first.
var (
	errElementNotFound = errors.New("element not found")
	errMultiTip        = errors.New("partition has multiple tips; run merge first")
)

// openPartition opens the partition named by cfg's --dir/--base flags
// against the real filesystem.
func openPartition(cfg *globalFlags) (*pippin.Partition, error) {
	return pippin.Open(streamio.NewOSProvider(), cfg.dir.String(), *cfg.base)
}

// classify maps an error returned by a subcommand to one of the exit
// codes from spec §6: corruption errors surfaced by the codec/dag
// layers take priority, then this process's own filesystem errors, and
// everything else (bad flags, bad element ids, missing tips) is a
// usage error.
func classify(err error) int {
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, codec.ErrBadMagic),
		errors.Is(err, codec.ErrObsoleteMagic),
		errors.Is(err, codec.ErrTruncated),
		errors.Is(err, codec.ErrMalformed),
		errors.Is(err, codec.ErrChecksumMismatch),
		errors.Is(err, codec.ErrUnsupportedSumAlgorithm),
		errors.Is(err, codec.ErrEssentialBlockUnknown),
		errors.Is(err, codec.ErrDeprecatedSectionUnsupported),
		errors.Is(err, dag.ErrCommitCorrupt),
		errors.Is(err, pippin.ErrNoUsableSnapshot):
		return exitCorrupt
	case errors.As(err, &pathErr):
		return exitIO
	default:
		return exitUsage
	}
}

// parseElementId accepts a plain decimal element id, the form the CLI
// prints in list/log output.
func parseElementId(s string) (sum.ElementId, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return sum.ElementId(n), nil
}

// textResolver is the merge.Resolver the CLI configures: it keeps the
// left side on every genuine conflict, since an interactive prompt is
// out of scope for the example tool.
type textResolver struct{}

func (textResolver) Resolve(id sum.ElementId, ancestor, left, right merge.Side) (merge.Decision, error) {
	return merge.Decision{Kind: merge.KeepLeft}, nil
}
