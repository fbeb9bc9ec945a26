package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newDelCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "del ELEMENT_ID",
		Short: "delete an element",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return delCmd(cmd.OutOrStdout(), cfg, args[0])
	}
	return cmd
}

func delCmd(out io.Writer, cfg *globalFlags, idArg string) error {
	id, err := parseElementId(idArg)
	if err != nil {
		return err
	}

	p, err := openPartition(cfg)
	if err != nil {
		return err
	}

	tip := p.Tip()
	if tip.MultiTip {
		return errMultiTip
	}

	m, err := p.WorkingFrom(tip.Sum)
	if err != nil {
		return err
	}
	if err := m.Remove(id); err != nil {
		return err
	}

	_, err = p.Commit(m, commitOptionsFromEnv())
	return err
}
