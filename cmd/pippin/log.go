package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pippin-db/pippin/internal/dag"
	"github.com/pippin-db/pippin/internal/sum"
)

func newLogCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "walk the history from the current tip back through its parents",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return logCmd(cmd.OutOrStdout(), cfg)
	}
	return cmd
}

// logCmd walks from the current tip (or, with multiple tips, from each
// of them) back through Parents until it reaches a root, printing one
// line per visited state. A state reachable from more than one path is
// printed once, the first time it's reached (spec §4.4's DAG is not
// guaranteed to be a simple chain once a merge has happened).
func logCmd(out io.Writer, cfg *globalFlags) error {
	p, err := openPartition(cfg)
	if err != nil {
		return err
	}

	tip := p.Tip()
	roots := tip.TipSums
	if !tip.MultiTip {
		roots = []sum.Sum{tip.Sum}
	}

	seen := map[sum.Sum]bool{}
	queue := append([]sum.Sum{}, roots...)
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if seen[s] {
			continue
		}
		seen[s] = true

		state, ok := p.State(s)
		if !ok {
			continue
		}
		printLogLine(out, state)
		queue = append(queue, state.Parents...)
	}
	return nil
}

func printLogLine(out io.Writer, state *dag.PartState) {
	fmt.Fprintf(out, "%s commit=%d parents=%d elements=%d\n",
		state.Sum, state.Meta.CommitNumber, len(state.Parents), state.Elements.Len())
}
