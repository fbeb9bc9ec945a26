package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newMergeCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "consolidate every tip into one state",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return mergeCmd(cmd.OutOrStdout(), cfg)
	}
	return cmd
}

func mergeCmd(out io.Writer, cfg *globalFlags) error {
	p, err := openPartition(cfg)
	if err != nil {
		return err
	}

	result, err := p.Merge(textResolver{})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, result.Sum)
	return nil
}
