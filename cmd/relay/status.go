package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"relay/internal/config"
	"relay/internal/relay/route"
)

type statusLookup interface {
	Status(ctx context.Context, token string) (route.Status, error)
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <token>",
		Short: "Show the receipt or dead letter stored for a record",
		Long: `Looks up a correlation token in the couchbase sink and prints what is known
about it: delivered with its broker position, failed with its dead letter, or unknown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := config.NewLogger(root.cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			sink, closeSink, err := newCouchbaseSink(root.cfg.Couchbase, logger)
			if err != nil {
				return fmt.Errorf("failed to create couchbase sink: %w", err)
			}
			defer closeSink()

			return runStatus(cmd.Context(), logger, sink, args[0], cmd.OutOrStdout())
		},
	}
}

// runStatus prints the status of token as JSON. An unknown token is printed
// and reported as an error so scripts can branch on the exit code.
func runStatus(ctx context.Context, logger *zap.Logger, lookup statusLookup, token string, w io.Writer) error {
	st, err := lookup.Status(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", token, err)
	}
	logger.Debug("status resolved", zap.String("token", token), zap.String("state", st.State))

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}

	if st.State == route.StateUnknown {
		return fmt.Errorf("no receipt or dead letter for %s", token)
	}
	return nil
}
