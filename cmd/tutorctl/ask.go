package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/tutor-engine/internal/bootstrap"
	"github.com/ashureev/tutor-engine/internal/domain"
)

func newAskCmd(opts *cliOptions) *cobra.Command {
	var (
		req         domain.TutorRequest
		kind        string
		emotion     string
		historyFile string
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Produce one tutoring reply and wait for it to be stored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.SessionKind = domain.SessionKind(kind)
			req.ExplicitEmotion = domain.Emotion(emotion)
			if historyFile != "" {
				data, err := os.ReadFile(historyFile)
				if err != nil {
					return fmt.Errorf("read history: %w", err)
				}
				if err := json.Unmarshal(data, &req.ConversationHistory); err != nil {
					return fmt.Errorf("decode history: %w", err)
				}
			}

			return withApp(cmd, opts, func(ctx context.Context, app *bootstrap.App) error {
				res, err := app.Service.Respond(ctx, &req)
				if err != nil {
					return err
				}
				if err := <-res.Persisted; err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: session not stored: %v\n", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"source":   res.Source,
					"response": res.Response,
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.LearnerID, "learner", "", "learner id")
	cmd.Flags().StringVarP(&req.Message, "message", "m", "", "learner message")
	cmd.Flags().StringVar(&kind, "kind", string(domain.SessionInstruction), "session kind")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "subject area")
	cmd.Flags().StringVar(&emotion, "emotion", "", "explicit emotion, skipping classification")
	cmd.Flags().StringVar(&historyFile, "history", "", "JSON file with the conversation history")
	_ = cmd.MarkFlagRequired("learner")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}
