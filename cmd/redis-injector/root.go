package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	redisinjector "github.com/raniellyferreira/redis-injector"
	"github.com/raniellyferreira/redis-injector/injection"
	"github.com/raniellyferreira/redis-injector/lua"
	"github.com/raniellyferreira/redis-injector/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "redis-injector <target>",
	Short: "Replay a Redis replication stream into a target store",
	Long: `redis-injector reads a RESP command stream from stdin, pairs every SET
with the EXPIREAT that follows it for the same key, and writes the result to
<target> as pipelined SET ... EX commands from a pool of connections.

<target> is host:port, a redis:// or rediss:// URL, or memory:// for a dry
run. Every flag can also be set as REDIS_INJECTOR_<FLAG> (e.g.
REDIS_INJECTOR_WORKERS=64), including from .env and .env.local.`,
	Args:         cobra.MaximumNArgs(1),
	PreRunE:      bindFlags,
	RunE:         runInject,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(sinkCmd)
	rootCmd.AddCommand(versionCmd)

	f := rootCmd.Flags()
	f.String("target", "", wrapString("Target address, used when no argument is given"))
	f.String("input", "-", wrapString("Stream to read, - for stdin"))
	f.Int("workers", injection.DefaultWorkers, wrapString("Number of concurrent target connections"))
	f.Int("batch-size", 200, wrapString("Records per pipeline"))
	f.Int("queue-size", injection.DefaultQueueSize, wrapString("Batches buffered between the reader and the workers"))
	f.Duration("retry-interval", injection.DefaultRetryInterval, wrapString("Pause before a failed pipeline is retried on a new connection"))
	f.Int("reconnect-every", injection.DefaultReconnectEvery, wrapString("Reopen each worker connection after this many batches, 0 to disable"))
	f.Int("progress-every", 1, wrapString("Log worker totals every N batches, 0 to disable"))
	f.String("leftover-policy", "persist", wrapString("How keys that never got an EXPIREAT are written: persist (no TTL) or default-ttl"))
	f.Duration("leftover-ttl", 0, wrapString("TTL for leftovers with --leftover-policy=default-ttl"))
	f.Duration("dial-timeout", 5*time.Second, wrapString("Target dial timeout"))
	f.Duration("exec-timeout", 30*time.Second, wrapString("Timeout for one pipeline round trip"))
	f.String("filter-script", "", wrapString("Lua file defining keep(key); SETs for rejected keys are dropped"))
	f.String("metrics-addr", "", wrapString("Serve Prometheus metrics on this address while running"))
	rootCmd.PersistentFlags().String("log-level", "info", wrapString("Log level (debug, info, warn, error)"))
}

func runInject(cmd *cobra.Command, args []string) error {
	addr := viper.GetString("target")
	if len(args) == 1 {
		addr = args[0]
	}
	if addr == "" {
		return fmt.Errorf("%w: pass it as the first argument or set REDIS_INJECTOR_TARGET", redisinjector.ErrMissingTarget)
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	policy, err := injection.ParseLeftoverPolicy(viper.GetString("leftover-policy"))
	if err != nil {
		return err
	}

	opts := []redisinjector.Option{
		redisinjector.WithTarget(addr),
		redisinjector.WithWorkers(viper.GetInt("workers")),
		redisinjector.WithBatchSize(viper.GetInt("batch-size")),
		redisinjector.WithQueueSize(viper.GetInt("queue-size")),
		redisinjector.WithRetryInterval(viper.GetDuration("retry-interval")),
		redisinjector.WithReconnectEvery(viper.GetInt("reconnect-every")),
		redisinjector.WithProgressEvery(viper.GetInt("progress-every")),
		redisinjector.WithTimeouts(viper.GetDuration("dial-timeout"), viper.GetDuration("exec-timeout")),
		redisinjector.WithLeftoverPolicy(policy, viper.GetDuration("leftover-ttl")),
		redisinjector.WithLogger(logger),
	}

	if path := viper.GetString("filter-script"); path != "" {
		script, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read filter script: %w", err)
		}
		filter, err := lua.NewFilter(string(script))
		if err != nil {
			return err
		}
		defer filter.Close()
		opts = append(opts, redisinjector.WithKeyFilter(filter))
	}

	var registry *prometheus.Registry
	if viper.GetString("metrics-addr") != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, redisinjector.WithMetrics(metrics.NewCollector(registry)))
	}

	inj, err := redisinjector.New(opts...)
	if err != nil {
		return err
	}

	input := io.Reader(cmd.InOrStdin())
	if path := viper.GetString("input"); path != "-" && path != "" {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	if registry != nil {
		g.Go(func() error {
			return metrics.Serve(metricsCtx, viper.GetString("metrics-addr"), registry)
		})
	}

	var report redisinjector.Report
	g.Go(func() error {
		defer stopMetrics()
		var err error
		report, err = inj.Run(gctx, input)
		return err
	})

	err = g.Wait()
	printReport(cmd.OutOrStdout(), report)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return err
}

func printReport(w io.Writer, r redisinjector.Report) {
	pairs := [][2]string{
		{"records read", strconv.FormatInt(r.Frames, 10)},
		{"set commands", strconv.FormatInt(r.Commands.Sets, 10)},
		{"inserted", strconv.FormatInt(r.Inserted, 10)},
		{"expired on arrival", strconv.FormatInt(r.ExpiredOnArrival, 10)},
		{"without ttl", strconv.FormatInt(r.WithoutTTL, 10)},
		{"orphan expires", strconv.FormatInt(r.Commands.Orphans, 10)},
	}
	if r.Commands.Filtered > 0 {
		pairs = append(pairs, [2]string{"filtered", strconv.FormatInt(r.Commands.Filtered, 10)})
	}
	if r.Commands.InvalidExpires > 0 {
		pairs = append(pairs, [2]string{"invalid expires", strconv.FormatInt(r.Commands.InvalidExpires, 10)})
	}
	pairs = append(pairs,
		[2]string{"batches", strconv.FormatInt(r.Batches(), 10)},
		[2]string{"retries", strconv.FormatInt(r.Retries, 10)},
		[2]string{"reconnects", strconv.FormatInt(r.Reconnects, 10)},
	)
	if r.TargetKeys >= 0 {
		pairs = append(pairs, [2]string{"target keys", strconv.FormatInt(r.TargetKeys, 10)})
	}
	pairs = append(pairs, [2]string{"duration", r.Duration.Round(time.Millisecond).String()})

	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(":")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}
	table.Render()
}
