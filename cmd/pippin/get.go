package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newGetCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get ELEMENT_ID",
		Short: "print an element's payload",
		Args:  cobra.ExactArgs(1),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return getCmd(cmd.OutOrStdout(), cfg, args[0])
	}
	return cmd
}

func getCmd(out io.Writer, cfg *globalFlags, idArg string) error {
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
	state, ok := p.State(tip.Sum)
	if !ok {
		return errElementNotFound
	}
	payload, ok := state.Elements.Get(id)
	if !ok {
		return errElementNotFound
	}
	_, err = out.Write(payload)
	return err
}
