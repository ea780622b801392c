package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnidesk/omnidesk/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var (
		staffID string
		name    string
		ttl     string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a staff access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
				return errors.New("jwt secret is required")
			}
			if ttl == "" {
				ttl = cfg.Auth.JWTExpiresIn
			}
			expiresIn, err := time.ParseDuration(ttl)
			if err != nil {
				return fmt.Errorf("invalid ttl: %w", err)
			}
			token, expiresAt, err := auth.GenerateToken(auth.Staff{ID: staffID, Name: name}, cfg.Auth.JWTSecret, expiresIn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&staffID, "id", "", "staff id")
	cmd.Flags().StringVar(&name, "name", "", "staff display name")
	cmd.Flags().StringVar(&ttl, "ttl", "", "token lifetime (defaults to auth.jwt_expires_in)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
