package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"concierge/pkg/auth"
	"concierge/pkg/config"

	"github.com/spf13/cobra"
)

func newTokenCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCommand(opts))
	return cmd
}

func newTokenIssueCommand(opts *RootOptions) *cobra.Command {
	var (
		secret         string
		subject        string
		establishments []string
		ttl            time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token for an operator acting for establishments",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or %s is required", config.EnvJWTSecret)
			}
			token, err := auth.IssueToken(secret, subject, establishments, ttl)
			if err != nil {
				return err
			}
			return writeOutput(cmd, opts, map[string]string{"token": token}, func(w io.Writer) {
				fmt.Fprintln(w, token)
			})
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv(config.EnvJWTSecret), "HMAC signing secret")
	cmd.Flags().StringVar(&subject, "subject", "", "operator id")
	cmd.Flags().StringSliceVar(&establishments, "establishment", nil, "establishment id the operator acts for (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("establishment")
	return cmd
}
