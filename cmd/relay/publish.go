package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"relay/internal/config"
	"relay/internal/relay"
	"relay/internal/relay/metrics"
	"relay/internal/relay/publisher"
	"relay/internal/relay/route"
	"relay/internal/relay/tracing"
)

func newPublishCmd(root *rootOptions) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish JSON-lines records and route them by outcome",
		Long: `Reads one JSON record per line ({"id","topic","partition","key","value","headers"}),
publishes them in batches, and writes delivered records to the success output
and failed ones to the failure output. Failure output can be fed back in to replay.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stopProfile, err := startCPUProfile(root.cpuProfile)
			if err != nil {
				return err
			}
			defer stopProfile()

			in := io.Reader(os.Stdin)
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				in = f
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runPublish(ctx, root.cfg, in)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "-", "input file, - for stdin")

	return cmd
}

func runPublish(ctx context.Context, cfg config.Config, in io.Reader) error {
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry := metrics.NewRegistry()
	registry.SetSystemInfo("relay", cfg.Broker)

	tracer, tracingCleanup, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracingCleanup(shutdownCtx); err != nil {
			logger.Error("failed to cleanup tracing", zap.Error(err))
		}
	}()

	client, err := newClient(cfg, logger, registry)
	if err != nil {
		return fmt.Errorf("failed to create broker client: %w", err)
	}

	base, err := publisher.New(client, logger, publisher.WithAwaitConcurrency(cfg.AwaitConcurrency))
	if err != nil {
		_ = client.Close()
		return err
	}
	defer func() {
		if err := base.Close(); err != nil {
			logger.Error("failed to close publisher", zap.Error(err))
		}
	}()
	pub := publisher.NewTracedPublisher(publisher.NewMetricsPublisher(base, registry), tracer)

	sink, closeSink, err := newSink(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	defer closeSink()

	router, err := route.NewRouter(route.NewTracedSink(route.NewMetricsSink(sink, registry), tracer), logger)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics, registry, base.Ready, logger)
		go func() {
			if err := server.Start(ctx); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	return publishAll(ctx, logger, pub, router, cfg, in)
}

// publishAll publishes every batch read from in. Per-record failures are
// routed and counted; only publisher or routing errors stop the run.
func publishAll(ctx context.Context, logger *zap.Logger, pub relay.Publisher, router *route.Router, cfg config.Config, in io.Reader) error {
	var total route.Summary
	start := time.Now()

	err := batches(in, cfg.BatchSize, cfg.Topic, func(records []relay.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := pub.PublishBatch(ctx, records, cfg.PublishTimeout)
		if err != nil {
			return fmt.Errorf("failed to publish batch: %w", err)
		}

		summary, err := router.Route(ctx, records, res)
		if err != nil {
			return fmt.Errorf("failed to route batch: %w", err)
		}

		total.Delivered += summary.Delivered
		total.Failed += summary.Failed
		total.NotAttempted += summary.NotAttempted
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("publish complete",
		zap.Int("delivered", total.Delivered),
		zap.Int("failed", total.Failed),
		zap.Int("notAttempted", total.NotAttempted),
		zap.Duration("elapsed", time.Since(start)),
	)

	if total.Failed > 0 {
		return fmt.Errorf("%d of %d records failed", total.Failed, total.Delivered+total.Failed)
	}
	return nil
}
