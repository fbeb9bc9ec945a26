package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pippin-db/pippin"
	"github.com/pippin-db/pippin/internal/sum"
)

func newPutCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put [ELEMENT_ID] PAYLOAD",
		Short: "insert a new element, or replace one if an id is given",
		Args:  cobra.RangeArgs(1, 2),
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return putCmd(cmd.OutOrStdout(), cfg, "", args[0])
		}
		return putCmd(cmd.OutOrStdout(), cfg, args[0], args[1])
	}
	return cmd
}

func putCmd(out io.Writer, cfg *globalFlags, idArg, payload string) error {
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

	var id sum.ElementId
	if idArg == "" {
		id, err = m.Insert([]byte(payload))
	} else {
		id, err = parseElementId(idArg)
		if err != nil {
			return err
		}
		err = m.Replace(id, []byte(payload))
	}
	if err != nil {
		return err
	}

	if _, err := p.Commit(m, commitOptionsFromEnv()); err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

// commitOptionsFromEnv builds the commit's user metadata. The example
// CLI doesn't expose --message yet; it stamps the invoking user's name
// when available, matching the teacher's habit of recording an identity
// alongside every commit.
func commitOptionsFromEnv() (opts pippin.CommitOptions) {
	if user := os.Getenv("USER"); user != "" {
		opts.UserMeta = []byte(user)
		opts.TextUserMeta = true
	}
	return opts
}
