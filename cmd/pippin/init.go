package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pippin-db/pippin"
	"github.com/pippin-db/pippin/internal/streamio"
	"github.com/pippin-db/pippin/internal/sum"
)

func newInitCmd(cfg *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init PARTITION_ID",
		Short: "create an empty partition (writes ss0)",
		Args:  cobra.ExactArgs(1),
	}

	repoName := cmd.Flags().StringP("repo", "r", "", "repository name recorded in the header")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return initCmd(cmd.OutOrStdout(), cfg, args[0], *repoName)
	}
	return cmd
}

func initCmd(out io.Writer, cfg *globalFlags, partitionIDArg, repoName string) error {
	n, err := strconv.ParseUint(partitionIDArg, 10, 64)
	if err != nil {
		return err
	}
	if n > sum.MaxPartitionId {
		return fmt.Errorf("partition id %d exceeds the 40-bit maximum %d", n, uint64(sum.MaxPartitionId))
	}

	_, err = pippin.Create(streamio.NewOSProvider(), cfg.dir.String(), *cfg.base, sum.PartitionId(n), repoName)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "initialized partition %q (id %d) in %s\n", *cfg.base, n, cfg.dir.String())
	return nil
}
