package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tourdesk/tourdesk-saas/platform/go/auth/devtoken"
)

// Command groups auth helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Auth utilities (dev tokens)",
	}
	cmd.AddCommand(devTokenCommand())
	return cmd
}

func devTokenCommand() *cobra.Command {
	var params devtoken.Params

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Mint an access token for local development",
		Long: "Mint a Supabase-shaped access token signed with SUPABASE_JWT_SECRET (or --secret).\n" +
			"--unsigned emits alg none, which the API only accepts with JWT_SKIP_VERIFICATION=true.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if params.Secret == "" && !params.Unsigned {
				params.Secret = os.Getenv("SUPABASE_JWT_SECRET")
			}

			token, err := devtoken.BuildToken(params, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	// Required claims
	cmd.Flags().StringVar(&params.Subject, "user-id", "", "sub claim (identity provider user id)")
	cmd.Flags().StringVar(&params.ClientID, "client-id", "", "client_id claim binding the token to a tenant")

	// Optional claims
	cmd.Flags().StringVar(&params.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&params.Role, "role", "", "role claim")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "", "iss claim")
	cmd.Flags().StringVar(&params.Audience, "audience", "", "aud claim; defaults to authenticated")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&params.Secret, "secret", "", "HS256 signing secret; defaults to SUPABASE_JWT_SECRET")
	cmd.Flags().BoolVar(&params.Unsigned, "unsigned", false, "emit an unsigned token")

	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("client-id")

	return cmd
}
