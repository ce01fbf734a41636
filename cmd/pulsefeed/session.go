package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vedran77/pulsefeed/internal/auth"
	"github.com/vedran77/pulsefeed/internal/config"
)

// signIn builds a session from --token, falling back to PULSEFEED_TOKEN.
// An empty token yields a signed-out session.
func signIn(cmd *cobra.Command, cfg *config.Config) (*auth.Session, error) {
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("PULSEFEED_TOKEN")
	}

	session := auth.NewSession()
	if token == "" {
		return session, nil
	}
	if _, err := session.SignInWithToken(token, cfg.JWTSecret); err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}
	return session, nil
}

func addTokenFlag(cmd *cobra.Command) {
	cmd.Flags().String("token", "", "session token (defaults to $PULSEFEED_TOKEN)")
}
