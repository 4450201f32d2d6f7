package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sxyafiq/snowflaked/client"
	"github.com/sxyafiq/snowflaked/snowflake"
)

type fetchOptions struct {
	url     string
	count   int
	format  string
	timeout time.Duration
	decode  string
}

func newFetchCmd() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch IDs from a running service",
		Example: `  snowflaked fetch
  snowflaked fetch --url http://ids.internal:8080 --count 5 --format base62
  snowflaked fetch --decode 1234567890123456789`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(opts.url, client.WithTimeout(opts.timeout))
			if err != nil {
				return err
			}

			if opts.decode != "" {
				comp, err := c.Decode(cmd.Context(), opts.decode, snowflake.Format(opts.format))
				if err != nil {
					return err
				}
				printComponents(cmd.OutOrStdout(), comp)
				return nil
			}

			if opts.count < 1 {
				return errNoIDs
			}
			format, err := snowflake.ParseFormatName(opts.format)
			if err != nil {
				return err
			}
			for i := 0; i < opts.count; i++ {
				id, err := c.Snowflake(cmd.Context())
				if err != nil {
					return err
				}
				s, _ := id.Encode(format)
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "http://localhost:8080", "base URL of the service")
	f.IntVarP(&opts.count, "count", "n", 1, "number of IDs to fetch")
	f.StringVarP(&opts.format, "format", "f", "", "output format, or the input format with --decode")
	f.DurationVar(&opts.timeout, "timeout", client.DefaultTimeout, "per-request timeout")
	f.StringVar(&opts.decode, "decode", "", "decode this ID on the service instead of fetching new ones")
	return cmd
}
