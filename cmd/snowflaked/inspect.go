package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/sxyafiq/snowflaked/api"
	"github.com/sxyafiq/snowflaked/snowflake"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFlexible tries decimal and 0x hex first, then the other encodings
// from most to least common.
func parseFlexible(s string) (snowflake.ID, error) {
	if id, err := snowflake.Parse(s); err == nil {
		return id, nil
	}
	for _, f := range []snowflake.Format{snowflake.FormatBase62, snowflake.FormatBase58, snowflake.FormatHex, snowflake.FormatBase32} {
		if id, err := snowflake.ParseFormat(s, f); err == nil {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unable to parse ID %q in any known format: %w", s, snowflake.ErrInvalidEncoding)
}

func parseID(s, format string) (snowflake.ID, error) {
	if format == "" {
		return parseFlexible(s)
	}
	f, err := snowflake.ParseFormatName(format)
	if err != nil {
		return 0, err
	}
	return snowflake.ParseFormat(s, f)
}

type parseOptions struct {
	format string
	json   bool
}

func newParseCmd(global *globalOptions) *cobra.Command {
	opts := &parseOptions{}
	cmd := &cobra.Command{
		Use:     "parse <id>",
		Aliases: []string{"p", "inspect"},
		Short:   "Parse and inspect an ID",
		Example: `  snowflaked parse 1234567890123456789
  snowflaked parse 1ly7vk2cXyE --format base62
  snowflaked parse 0x112210f47de98115 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := global.bitLayout()
			if err != nil {
				return err
			}
			id, err := parseID(args[0], opts.format)
			if err != nil {
				return err
			}
			if id < 0 {
				return fmt.Errorf("%s is negative and cannot be a snowflake ID", id)
			}

			c := api.NewComponents(id, layout, global.epoch)
			if opts.json {
				return writeIndented(cmd.OutOrStdout(), c)
			}
			printComponents(cmd.OutOrStdout(), c)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "input format (default: try every format)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON")
	return cmd
}

func printComponents(w io.Writer, c *api.Components) {
	fmt.Fprintf(w, "Snowflake ID: %s\n\n", c.ID)
	fmt.Fprintf(w, "Components (layout %s):\n", c.Layout)
	fmt.Fprintf(w, "  Timestamp:  %s (%d ms since epoch)\n", c.Time.Format(time.RFC3339Nano), c.Timestamp)
	fmt.Fprintf(w, "  Node ID:    %d\n", c.NodeID)
	fmt.Fprintf(w, "  Sequence:   %d\n\n", c.Sequence)
	fmt.Fprintf(w, "Encodings:\n")
	for _, f := range snowflake.Formats() {
		fmt.Fprintf(w, "  %-10s  %s\n", string(f)+":", c.Encodings[string(f)])
	}
}

func newEncodeCmd() *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:     "encode <id> <format>",
		Aliases: []string{"enc", "e"},
		Short:   "Convert an ID to another encoding",
		Long: `Convert an ID to another encoding.

Formats: decimal, base32, base58, base62, hex.`,
		Example: `  snowflaked encode 1234567890123456789 base62
  snowflaked encode 1ly7vk2cXyE decimal --from base62`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], from)
			if err != nil {
				return err
			}
			f, err := snowflake.ParseFormatName(args[1])
			if err != nil {
				return err
			}
			s, err := id.Encode(f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "input format (default: try every format)")
	return cmd
}

func newLayoutsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layouts",
		Short: "List the bit layout presets and their capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tBITS\tNODES\tIDS/MS/NODE\tLIFESPAN")
			for _, name := range snowflake.LayoutNames() {
				l, err := snowflake.ParseLayout(name)
				if err != nil {
					return err
				}
				c := l.Capacity()
				years := c.Lifespan.Hours() / 24 / 365
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1fy\n", name, l, c.MaxNodes, c.IDsPerMillisecond, years)
			}
			return tw.Flush()
		},
	}
}
