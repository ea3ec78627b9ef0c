package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/auth"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("role", "admin", "Actor role: buyer, supplier, admin or system")
	tokenCmd.Flags().String("id", "", "Actor id (account id for buyers and suppliers)")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default AUTH_TOKEN_TTL)")
	_ = tokenCmd.MarkFlagRequired("id")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for an actor",
	RunE:  runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	rawRole, _ := cmd.Flags().GetString("role")
	id, _ := cmd.Flags().GetString("id")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	role, err := engagement.ParseActorRole(rawRole)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.TokenTTL
	}
	token, exp, err := auth.NewService(cfg.TokenSecret, ttl, logger).Issue(engagement.Actor{Role: role, ID: id})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}
