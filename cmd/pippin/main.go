// Command pippin is the example CLI over the partition engine (spec
// §6: "CLI surface -- example tool, not core"): get, put, del, list,
// log, and merge against one partition directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pippin-db/pippin/internal/pathutil"
)

// exit codes, spec §6.
const (
	exitOK      = 0
	exitUsage   = 1
	exitCorrupt = 2
	exitIO      = 3
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitIO)
	}

	root := newRootCmd(cwd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(classify(err))
	}
}

// globalFlags is threaded into every subcommand constructor, the same
// shared-flags pattern the teacher uses for its root command.
type globalFlags struct {
	dir  pflag.Value
	base *string
}

func newRootCmd(cwd string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pippin",
		Short:         "embedded object database inspired by distributed version control",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cfg := &globalFlags{}
	cfg.dir = pathutil.NewDirPathFlagWithDefault(cwd)
	cmd.PersistentFlags().VarP(cfg.dir, "dir", "d", "partition directory")
	cfg.base = cmd.PersistentFlags().StringP("base", "b", "main", "partition base name")

	cmd.AddCommand(newInitCmd(cfg))
	cmd.AddCommand(newGetCmd(cfg))
	cmd.AddCommand(newPutCmd(cfg))
	cmd.AddCommand(newDelCmd(cfg))
	cmd.AddCommand(newListCmd(cfg))
	cmd.AddCommand(newLogCmd(cfg))
	cmd.AddCommand(newMergeCmd(cfg))

	return cmd
}
