// tutorctl is the operator CLI for the tutoring engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/tutor-engine/internal/bootstrap"
	"github.com/ashureev/tutor-engine/internal/config"
	"github.com/ashureev/tutor-engine/internal/logging"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliOptions are the persistent flags shared by every command.
type cliOptions struct {
	dbPath   string
	provider string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "tutorctl",
		Short:         "Operate the adaptive tutoring engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "generator provider: gemini, openai, grpc or none (overrides GENERATOR_PROVIDER)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level for diagnostics on stderr")

	root.AddCommand(newAskCmd(opts), newHistoryCmd(opts), newPruneCmd(opts))
	return root
}

// withApp loads configuration, applies flag overrides and runs fn with a
// wired application.
func withApp(cmd *cobra.Command, opts *cliOptions, fn func(ctx context.Context, app *bootstrap.App) error) error {
	if opts.dbPath != "" {
		if err := os.Setenv("DB_PATH", opts.dbPath); err != nil {
			return err
		}
	}
	if opts.provider != "" {
		if err := os.Setenv("GENERATOR_PROVIDER", opts.provider); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logging.ParseLevel(opts.logLevel),
	}))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.Warn("shutdown failed", "error", closeErr)
		}
	}()
	return fn(logging.WithLogger(ctx, logger), app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
