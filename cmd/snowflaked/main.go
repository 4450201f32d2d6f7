// Command snowflaked serves and inspects snowflake IDs.
//
// Usage:
//
//	snowflaked serve [flags]            Run the HTTP ID service
//	snowflaked generate [flags]         Generate IDs locally
//	snowflaked fetch [flags]            Fetch IDs from a running service
//	snowflaked parse <id>               Parse and inspect an ID
//	snowflaked encode <id> <format>     Convert an ID to another encoding
//	snowflaked layouts                  List the bit layouts
//	snowflaked bench [flags]            Measure pool throughput
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sxyafiq/snowflaked/snowflake"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var errNoIDs = errors.New("--count must be at least 1")

// globalOptions are the persistent flags shared by the offline commands.
type globalOptions struct {
	layout string
	epoch  int64
}

func (o *globalOptions) bitLayout() (snowflake.BitLayout, error) {
	return snowflake.ParseLayout(o.layout)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "snowflaked",
		Short: "Distributed unique 64-bit ID service",
		Long: `snowflaked hands out time-ordered 64-bit IDs from a pool of node
generators, over HTTP or directly from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.layout, "layout", "default", "bit layout preset (see 'snowflaked layouts')")
	root.PersistentFlags().Int64Var(&opts.epoch, "epoch", snowflake.Epoch, "custom epoch in milliseconds since the UNIX epoch")

	root.AddCommand(
		newServeCmd(),
		newGenerateCmd(opts),
		newFetchCmd(),
		newParseCmd(opts),
		newEncodeCmd(),
		newLayoutsCmd(),
		newBenchCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "snowflaked version %s\n", version)
			},
		},
	)
	return root
}
