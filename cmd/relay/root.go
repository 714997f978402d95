package main

import (
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"relay/internal/config"
)

type rootOptions struct {
	cfg        config.Config
	cpuProfile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Publish records to a broker and route them by delivery outcome",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			opts.cfg = cfg
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.String("broker", "", "broker client: amqp, redis or fault (env BROKER)")
	f.String("topic", "", "default topic for records without one (env TOPIC)")
	f.Duration("timeout", 0, "per-record acknowledgment timeout (env PUBLISH_TIMEOUT)")
	f.Int("batch-size", 0, "records per batch (env BATCH_SIZE)")
	f.String("sink", "", "routing sink: writer or couchbase (env SINK)")
	f.String("log-level", "", "log level (env LOG_LEVEL)")
	f.StringVar(&opts.cpuProfile, "cpuprofile", "", "write a CPU profile to this file")

	cmd.AddCommand(newPublishCmd(opts), newStatusCmd(opts))

	return cmd
}

// applyFlags overrides environment configuration with flags set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("broker") {
		cfg.Broker, _ = f.GetString("broker")
	}
	if f.Changed("topic") {
		cfg.Topic, _ = f.GetString("topic")
	}
	if f.Changed("timeout") {
		cfg.PublishTimeout, _ = f.GetDuration("timeout")
	}
	if f.Changed("batch-size") {
		cfg.BatchSize, _ = f.GetInt("batch-size")
	}
	if f.Changed("sink") {
		cfg.Sink, _ = f.GetString("sink")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
}

// startCPUProfile starts profiling into path when it is set. The returned stop
// must be deferred by the command so the profile is flushed on every exit.
func startCPUProfile(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}

	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}
