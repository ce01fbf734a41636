package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vedran77/pulsefeed/internal/config"
	"github.com/vedran77/pulsefeed/internal/feed"
	"github.com/vedran77/pulsefeed/internal/service"
)

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <page> <text>...",
		Short: "Send a message and wait until it is stored",
		Args:  cobra.MinimumNArgs(2),
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

			store, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			sends := service.NewSendService(store, session, cfg.WriteTimeout, logger)
			pending, err := sends.Send(cmd.Context(), feed.New(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.WriteTimeout+time.Second)
			defer cancel()
			if err := pending.Wait(ctx); err != nil {
				return err
			}

			if m := pending.Confirmed(); m != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "sent %s at %s\n", m.ID, m.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	addTokenFlag(cmd)
	return cmd
}
