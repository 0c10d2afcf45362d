package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"posdrawer/backend/internal/client"
	"posdrawer/backend/internal/config"
	"posdrawer/backend/internal/domain"
	"posdrawer/backend/internal/poller"
)

type watchOptions struct {
	server    string
	sessionID string
	username  string
	password  string
	token     string
	interval  time.Duration
	maxAge    time.Duration
}

func newWatchCommand() *cobra.Command {
	cfg := config.Load()
	opts := watchOptions{
		server:   cfg.APIBaseURL,
		token:    os.Getenv("POSDRAWER_TOKEN"),
		interval: cfg.PollInterval(),
	}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll a session's drawer balance and print every snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", opts.server, "API base URL")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session id to watch")
	cmd.Flags().StringVar(&opts.username, "username", "", "login username (ignored when a token is set)")
	cmd.Flags().StringVar(&opts.password, "password", "", "login password")
	cmd.Flags().StringVar(&opts.token, "token", opts.token, "bearer token (defaults to POSDRAWER_TOKEN)")
	cmd.Flags().DurationVar(&opts.interval, "interval", opts.interval, "poll interval")
	cmd.Flags().DurationVar(&opts.maxAge, "max-age", 0, "mark snapshots older than this as stale (default two intervals)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func runWatch(ctx context.Context, opts watchOptions, out io.Writer, logger *zap.Logger) error {
	api := client.New(opts.server, client.WithToken(opts.token))
	if opts.token == "" {
		if opts.username == "" {
			return errors.New("either --token or --username/--password is required")
		}
		if _, err := api.Login(ctx, opts.username, opts.password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	if opts.maxAge <= 0 {
		opts.maxAge = 2 * opts.interval
	}

	p := poller.New(func(ctx context.Context) (domain.BalanceResponse, error) {
		return api.CurrentBalance(ctx, opts.sessionID)
	}, opts.interval, poller.Options{Logger: logger})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case snapshot := <-p.Updates():
			fmt.Fprintln(out, formatObserved(snapshot, time.Now(), opts.maxAge))
			if client.IsUnauthorized(snapshot.Err) {
				cancel()
				<-done
				return snapshot.Err
			}
		}
	}
}

func formatObserved(o poller.Observed[domain.BalanceResponse], now time.Time, maxAge time.Duration) string {
	if !o.HasValue {
		return fmt.Sprintf("balance unavailable: %v", o.Err)
	}
	line := fmt.Sprintf("session %s balance %s %s as of %s",
		o.Value.SessionID, o.Value.Balance.String(), o.Value.Currency, o.AsOf.UTC().Format(time.RFC3339))
	if o.IsStale(now, maxAge) {
		line += " (stale)"
	}
	if o.Err != nil {
		line += fmt.Sprintf(" last refresh failed: %v", o.Err)
	}
	return line
}
