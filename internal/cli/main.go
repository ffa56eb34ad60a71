// Package cli implements the clipcut command tree. Commands stay thin: they
// parse flags, load config, open the state store and hand off to the
// pipeline packages.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func Main() {
	ctx := &appContext{}

	root := &cobra.Command{
		Use:           "clipcut",
		Short:         "Turn long videos into exported social-media clips",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	root.PersistentFlags().StringVar(&ctx.configPath, "config", "", "Path to config file (default: clipcut.toml)")
	root.PersistentFlags().BoolVar(&ctx.quiet, "quiet", false, "Only print warnings and errors")

	root.AddCommand(newVideosCommand(ctx))
	root.AddCommand(newJobsCommand(ctx))
	root.AddCommand(newDepsCommand(ctx))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
