package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/vedran77/pulsefeed/internal/auth"
	"github.com/vedran77/pulsefeed/internal/config"
	"github.com/vedran77/pulsefeed/internal/domain"
	"github.com/vedran77/pulsefeed/pkg/validator"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			user, _ := cmd.Flags().GetString("user")
			name, _ := cmd.Flags().GetString("name")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			p := domain.Principal{ID: user, DisplayName: name}
			if errs := validator.ValidatePrincipal(p.ID, p.DisplayName); len(errs) > 0 {
				return fmt.Errorf("invalid principal: %v", errs)
			}

			token, err := auth.IssueToken(cfg.JWTSecret, p, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")
	return cmd
}
