package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sxyafiq/snowflaked/api"
	"github.com/sxyafiq/snowflaked/internal/config"
	"github.com/sxyafiq/snowflaked/internal/logging"
	"github.com/sxyafiq/snowflaked/pool"
	"github.com/sxyafiq/snowflaked/snowflake"
)

// startLocalPool runs a pool inside the CLI process. Only warnings and
// errors are logged, to stderr.
func startLocalPool(cmd *cobra.Command, opts *globalOptions, nodes string, queue int) (*pool.Pool, error) {
	layout, err := opts.bitLayout()
	if err != nil {
		return nil, err
	}
	ids, err := config.ParseNodeList(nodes)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Level: "warn", Output: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}

	cfg := pool.DefaultConfig()
	cfg.NodeIDs = ids
	cfg.Layout = layout
	cfg.Epoch = opts.epoch
	cfg.QueueCapacity = queue
	cfg.Logger = logger
	p, err := pool.New(cfg)
	if err != nil {
		return nil, err
	}
	p.Start()
	return p, nil
}

type generateOptions struct {
	count  int
	nodes  string
	format string
	json   bool
}

func newGenerateCmd(global *globalOptions) *cobra.Command {
	opts := &generateOptions{}
	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen", "g"},
		Short:   "Generate IDs locally",
		Example: `  snowflaked generate --nodes 42
  snowflaked generate --count 1000 --format base62 --nodes 0-3
  snowflaked generate --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.count < 1 {
				return errNoIDs
			}
			format, err := snowflake.ParseFormatName(opts.format)
			if err != nil {
				return err
			}
			p, err := startLocalPool(cmd, global, opts.nodes, pool.DefaultQueueCapacity)
			if err != nil {
				return err
			}
			defer p.Wait()
			defer p.Close()

			ids := make([]snowflake.ID, opts.count)
			start := time.Now()
			for i := range ids {
				if ids[i], err = p.Generate(cmd.Context()); err != nil {
					return fmt.Errorf("generating ID %d: %w", i+1, err)
				}
			}
			took := time.Since(start)

			layout, _ := global.bitLayout()
			if opts.json {
				return writeGenerateJSON(cmd.OutOrStdout(), ids, took, layout, global.epoch)
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				s, _ := id.Encode(format)
				fmt.Fprintln(out, s)
			}
			if opts.count > 100 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\nGenerated %d IDs in %v (%.0f IDs/sec)\n",
					opts.count, took, float64(opts.count)/took.Seconds())
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.count, "count", "n", 1, "number of IDs to generate")
	f.StringVar(&opts.nodes, "nodes", "0", `node IDs, e.g. "0-9" or "1,4,7"`)
	f.StringVarP(&opts.format, "format", "f", "decimal", "output format: decimal, base32, base58, base62, hex")
	f.BoolVar(&opts.json, "json", false, "output as JSON with decoded components")
	return cmd
}

func writeGenerateJSON(w io.Writer, ids []snowflake.ID, took time.Duration, layout snowflake.BitLayout, epoch int64) error {
	type output struct {
		Count      int               `json:"count"`
		Duration   string            `json:"duration"`
		RatePerSec float64           `json:"rate_per_sec"`
		IDs        []*api.Components `json:"ids"`
	}

	out := output{
		Count:      len(ids),
		Duration:   took.String(),
		RatePerSec: float64(len(ids)) / took.Seconds(),
		IDs:        make([]*api.Components, len(ids)),
	}
	for i, id := range ids {
		out.IDs[i] = api.NewComponents(id, layout, epoch)
	}
	return writeIndented(w, out)
}

type benchOptions struct {
	duration    time.Duration
	concurrency int
	nodes       string
}

func newBenchCmd(global *globalOptions) *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:     "bench",
		Aliases: []string{"benchmark", "b"},
		Short:   "Measure pool throughput",
		Example: `  snowflaked bench --duration 5s
  snowflaked bench --nodes 0-3 --concurrency 64`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}
			p, err := startLocalPool(cmd, global, opts.nodes, 4*opts.concurrency)
			if err != nil {
				return err
			}
			defer p.Wait()
			defer p.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running benchmark (duration: %v, nodes: %d, concurrency: %d)\n\n",
				opts.duration, len(p.NodeIDs()), opts.concurrency)

			res := runBench(cmd.Context(), p, opts.duration, opts.concurrency)
			res.print(out)
			printEncodingBench(out)
			return nil
		},
	}

	f := cmd.Flags()
	f.DurationVarP(&opts.duration, "duration", "d", 3*time.Second, "benchmark duration")
	f.IntVar(&opts.concurrency, "concurrency", runtime.NumCPU(), "concurrent callers")
	f.StringVar(&opts.nodes, "nodes", "0-9", `node IDs, e.g. "0-9" or "1,4,7"`)
	return cmd
}

type benchResult struct {
	generated int64
	elapsed   time.Duration
	failures  map[snowflake.Kind]int64
}

// runBench calls Generate from concurrency goroutines until d elapses.
func runBench(ctx context.Context, p *pool.Pool, d time.Duration, concurrency int) benchResult {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	var (
		generated atomic.Int64
		mu        sync.Mutex
		failures  = make(map[snowflake.Kind]int64)
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				_, err := p.Generate(gctx)
				switch {
				case err == nil:
					generated.Add(1)
				case gctx.Err() != nil:
					return nil
				default:
					mu.Lock()
					failures[snowflake.KindOf(err)]++
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return benchResult{generated: generated.Load(), elapsed: time.Since(start), failures: failures}
}

func (r benchResult) print(w io.Writer) {
	rate := float64(r.generated) / r.elapsed.Seconds()
	fmt.Fprintf(w, "Pool generation:\n")
	fmt.Fprintf(w, "   Generated:      %d IDs\n", r.generated)
	fmt.Fprintf(w, "   Duration:       %v\n", r.elapsed.Round(time.Millisecond))
	if r.generated > 0 {
		fmt.Fprintf(w, "   Rate:           %.0f IDs/sec (%.0f ns/op)\n", rate, float64(r.elapsed.Nanoseconds())/float64(r.generated))
	}

	kinds := make([]snowflake.Kind, 0, len(r.failures))
	for k := range r.failures {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "   Failed (%s): %d\n", k, r.failures[k])
	}
	fmt.Fprintln(w)
}

func printEncodingBench(w io.Writer) {
	const ops = 1000
	id := snowflake.LayoutDefault.Pack(time.Now().UnixMilli()-snowflake.Epoch, 1, 1)

	fmt.Fprintf(w, "Encoding (%d operations):\n", ops)
	for _, f := range snowflake.Formats() {
		start := time.Now()
		for i := 0; i < ops; i++ {
			_, _ = id.Encode(f)
		}
		nsPerOp := float64(time.Since(start).Nanoseconds()) / ops
		fmt.Fprintf(w, "   %-8s %6.0f ns/op\n", string(f)+":", nsPerOp)
	}
}
