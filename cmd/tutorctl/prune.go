package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/tutor-engine/internal/bootstrap"
	"github.com/ashureev/tutor-engine/internal/retention"
)

func newPruneCmd(opts *cliOptions) *cobra.Command {
	var older time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stored sessions past the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *bootstrap.App) error {
				w := app.Retention
				if older > 0 {
					w = retention.New(app.Repo, app.Audit, older, 0, app.Logger)
				}
				if w == nil {
					return errors.New("retention is disabled; pass --older-than")
				}
				deleted, err := w.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d sessions\n", deleted)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&older, "older-than", 0, "override SESSION_RETENTION for this run")
	return cmd
}
