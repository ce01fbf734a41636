package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vedran77/pulsefeed/internal/config"
	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/internal/feed"
	"github.com/vedran77/pulsefeed/internal/service"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail <page>",
		Short: "Follow a page and print the feed on every change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			session, err := signIn(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			feeds := service.NewFeedService(store, session, cfg.FeedLimit, logger)
			feedCache, err := openCache(cfg, logger)
			if err != nil {
				return err
			}
			if feedCache != nil {
				defer feedCache.Close()
				feeds.SetCache(feedCache)
			}

			out := cmd.OutOrStdout()
			f := feed.New()
			unwatch := f.Subscribe(func(snapshot []domain.Message) {
				render(out, args[0], snapshot)
			})
			defer unwatch()

			failed := make(chan error, 1)
			sub, err := feeds.Open(ctx, args[0], f, func(err error) {
				select {
				case failed <- err:
				default:
				}
			})
			if err != nil {
				return err
			}
			defer sub.Close()

			select {
			case <-ctx.Done():
				return nil
			case err := <-failed:
				return err
			}
		},
	}
	addTokenFlag(cmd)
	return cmd
}

func render(w io.Writer, pageID string, snapshot []domain.Message) {
	fmt.Fprintf(w, "--- %s (%d messages)\n", pageID, len(snapshot))
	for _, m := range snapshot {
		line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04:05"), m.AuthorName, m.Text)
		if m.IsPending() {
			line += fmt.Sprintf(" (%s)", m.Status)
		}
		fmt.Fprintln(w, line)
	}
}
