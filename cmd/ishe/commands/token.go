package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haivivi/ishe/pkg/auth"
	"github.com/haivivi/ishe/pkg/cli"
)

var (
	tokenSecret   string
	tokenUserID   string
	tokenName     string
	tokenEmail    string
	tokenIssuer   string
	tokenAudience string
	tokenTTL      time.Duration
	tokenSave     bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	Long: `Sign an access token with the backend's JWT secret.

The secret defaults to $SUPABASE_JWT_SECRET. With --save the token is
stored in the current context.

Example:
  ishe token --name Ayşe --save
  ishe token --user-id 42 --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := firstNonEmpty(tokenSecret, os.Getenv("SUPABASE_JWT_SECRET"))
		if secret == "" {
			return fmt.Errorf("--secret or SUPABASE_JWT_SECRET is required")
		}
		id := auth.Identity{
			UserID:   firstNonEmpty(tokenUserID, uuid.NewString()),
			UserName: tokenName,
			Email:    tokenEmail,
		}
		var opts []auth.Option
		if tokenIssuer != "" {
			opts = append(opts, auth.WithIssuer(tokenIssuer))
		}
		if tokenAudience != "" {
			opts = append(opts, auth.WithAudience(tokenAudience))
		}
		token, err := auth.Issue(secret, id, tokenTTL, opts...)
		if err != nil {
			return err
		}

		if !tokenSave {
			fmt.Println(token)
			return nil
		}
		ctx, err := getContext()
		if err != nil {
			return err
		}
		ctx.Token = token
		if id.UserName != "" {
			ctx.UserName = id.UserName
		}
		if err := getConfig().Save(); err != nil {
			return err
		}
		cli.PrintSuccess("Token for user %s saved to context %q", id.UserID, ctx.Name)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "JWT signing secret")
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "subject claim (random if empty)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "user_metadata.name claim")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "iss claim")
	tokenCmd.Flags().StringVar(&tokenAudience, "audience", "", "aud claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().BoolVar(&tokenSave, "save", false, "store the token in the current context")
}
