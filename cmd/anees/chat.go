package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ent0n29/anees/internal/app"
	"github.com/ent0n29/anees/internal/assessment"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run one assessment in the terminal",
	Long: `Runs a single assessment session in the terminal using the same engine,
retrieval backend and report archive as the API server. Type 'skip', 'decline'
or 'exit' at any question, as in the app.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		level := "error"
		if verbose {
			level = "debug"
		}
		logger, err := newLogger(level)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		built, err := app.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = built.Cleanup() }()

		return runChat(ctx, built.Engine, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

type chatEngine interface {
	Start(ctx context.Context) (assessment.Response, error)
	Process(ctx context.Context, userID, message string) (assessment.Response, error)
}

// runChat drives one session from in to out until it finishes or in is exhausted.
func runChat(ctx context.Context, engine chatEngine, in io.Reader, out io.Writer) error {
	resp, err := engine.Start(ctx)
	if err != nil {
		return err
	}
	userID := resp.UserID
	fmt.Fprintf(out, "Anees: %s\n", resp.Response)

	scanner := bufio.NewScanner(in)
	for !resp.IsFinished {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		resp, err = engine.Process(ctx, userID, scanner.Text())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nAnees: %s\n", resp.Response)
	}
	return nil
}
