package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fourone/rnc-api/internal/config"
	"github.com/fourone/rnc-api/internal/logging"
	"github.com/fourone/rnc-api/internal/storage"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API access tokens",
	}
	cmd.AddCommand(newTokenCreateCmd(), newTokenListCmd())
	return cmd
}

func newTokenCreateCmd() *cobra.Command {
	var (
		name        string
		rph         int
		expiresDays int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API token and print it once",
		Example: `  rnc-api token create --name erp --rph 500
  rnc-api token create --name trial --expires-days 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rph < 0 {
				return fmt.Errorf("--rph must be positive")
			}
			if expiresDays < 0 {
				return fmt.Errorf("--expires-days must be positive")
			}

			c, err := openCLICore()
			if err != nil {
				return err
			}
			defer c.Close()

			if rph == 0 {
				rph = c.cfg.TokenDefaultRequestsPerHour
			}
			var expiresAt *time.Time
			if expiresDays > 0 {
				exp := time.Now().UTC().Add(time.Duration(expiresDays) * 24 * time.Hour)
				expiresAt = &exp
			}

			plain, err := storage.GenerateToken()
			if err != nil {
				return err
			}
			tok, err := c.store.CreateToken(cmd.Context(), &storage.Token{
				TokenHash:       storage.HashToken(plain),
				Name:            name,
				RequestsPerHour: rph,
				ExpiresAt:       expiresAt,
				CreatedBy:       "cli",
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created token %d (%s), %d requests/hour\n", tok.ID, tok.Name, tok.RequestsPerHour)
			if tok.ExpiresAt != nil {
				fmt.Fprintf(out, "Expires: %s\n", tok.ExpiresAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "Token (shown once): %s\n", plain)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Token name (required)")
	cmd.Flags().IntVar(&rph, "rph", 0, "Requests per hour (default TOKEN_DEFAULT_REQUESTS_PER_HOUR)")
	cmd.Flags().IntVar(&expiresDays, "expires-days", 0, "Days until expiry (0 = never)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTokenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := openCLICore()
			if err != nil {
				return err
			}
			defer c.Close()

			tokens, err := c.store.ListTokens(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tUSED/HOUR\tEXPIRES")
			for _, t := range tokens {
				expires := "never"
				if t.ExpiresAt != nil {
					expires = t.ExpiresAt.Format(time.DateOnly)
				}
				fmt.Fprintf(tw, "%d\t%s\t%t\t%d/%d\t%s\n",
					t.ID, t.Name, t.IsActive, t.RequestsUsed, t.RequestsPerHour, expires)
			}
			return tw.Flush()
		},
	}
}

// openCLICore loads configuration for maintenance commands, which do not
// need admin credentials.
func openCLICore() (*core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return openCore(cfg, logging.Setup(cfg.LogLevel, cfg.LogFormat, nil))
}
