package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/tutor-engine/internal/bootstrap"
	"github.com/ashureev/tutor-engine/internal/domain"
)

// eventReader is implemented by stores that keep audit events.
type eventReader interface {
	FetchEvents(ctx context.Context, learnerID string, limit int) ([]domain.AuditEvent, error)
}

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	var (
		limit  int
		events bool
	)
	cmd := &cobra.Command{
		Use:   "history <learner-id>",
		Short: "Print recent tutoring sessions of a learner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			learnerID := args[0]
			return withApp(cmd, opts, func(ctx context.Context, app *bootstrap.App) error {
				sessions, err := app.Repo.FetchRecentSessions(ctx, learnerID, limit)
				if err != nil {
					return err
				}
				turns, err := app.Repo.FetchLastContext(ctx, learnerID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"learnerId":   learnerID,
					"sessions":    nonNilSessions(sessions),
					"lastContext": turns,
				}

				if events {
					er, ok := app.Repo.(eventReader)
					if !ok {
						return fmt.Errorf("store does not keep audit events")
					}
					evs, err := er.FetchEvents(ctx, learnerID, limit)
					if err != nil {
						return err
					}
					if evs == nil {
						evs = []domain.AuditEvent{}
					}
					out["events"] = evs
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of sessions")
	cmd.Flags().BoolVar(&events, "events", false, "include audit events")
	return cmd
}

func nonNilSessions(s []domain.SessionSummary) []domain.SessionSummary {
	if s == nil {
		return []domain.SessionSummary{}
	}
	return s
}
