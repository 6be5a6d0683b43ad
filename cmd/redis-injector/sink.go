package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	redisinjector "github.com/raniellyferreira/redis-injector"
	"github.com/raniellyferreira/redis-injector/server"
	"github.com/raniellyferreira/redis-injector/storage"
)

var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "Run a disposable Redis-compatible target in memory",
	Long: `Run a Redis-compatible server backed by memory, to rehearse a replay
without a real Redis. It understands the commands the injector sends plus
GET, TTL, DBSIZE, INFO keyspace and EVAL for inspection.`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE:    runSink,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of redis-injector",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(redisinjector.VersionString())
	},
}

func init() {
	f := sinkCmd.Flags()
	f.String("addr", ":6380", wrapString("Listen address"))
	f.String("password", "", wrapString("Require AUTH with this password"))
	f.Int("shards", 64, wrapString("Number of storage shards"))
}

func runSink(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	store := storage.NewMemory(storage.WithShardCount(viper.GetInt("shards")))
	defer store.Close()

	srv := server.NewServer(viper.GetString("addr"), store,
		server.WithPassword(viper.GetString("password")),
		server.WithLogger(redisinjector.NewKVLogger(logger)))
	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Sink server stopping", redisinjector.Field{Key: "keys", Value: store.KeyCount()})
		return srv.Stop()
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
