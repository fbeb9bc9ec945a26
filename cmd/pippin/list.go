package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pippin-db/pippin/internal/sum"
)

func newListCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list every element id in the current tip",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return listCmd(cmd.OutOrStdout(), cfg)
	}
	return cmd
}

func listCmd(out io.Writer, cfg *globalFlags) error {
	p, err := openPartition(cfg)
	if err != nil {
		return err
	}

	tip := p.Tip()
	if tip.MultiTip {
		return errMultiTip
	}
	state, ok := p.State(tip.Sum)
	if !ok {
		return errElementNotFound
	}

	var ids []sum.ElementId
	state.Elements.Each(func(id sum.ElementId, _ []byte) {
		ids = append(ids, id)
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}
