package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/adapter/api"
	identity "github.com/felixgeelhaar/therapia/internal/identity/domain"
)

var (
	tokenUser  string
	tokenRoles []string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long: `Issue a signed bearer token for the HTTP API.

Examples:
  therapia token --role owner
  therapia token --user 6f1c... --role client --ttl 1h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := GetApp()
		if a == nil || a.Config == nil || a.Config.JWTSecret == "" {
			return errors.New("JWT_SECRET is required to issue tokens")
		}

		userID := uuid.New()
		if tokenUser != "" {
			parsed, err := uuid.Parse(tokenUser)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			userID = parsed
		}

		roles := make([]identity.Role, 0, len(tokenRoles))
		for _, name := range tokenRoles {
			role, err := identity.ParseRole(name)
			if err != nil {
				return err
			}
			roles = append(roles, role)
		}

		token, err := api.IssueToken(a.Config.JWTSecret, userID, roles, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "subject user ID (random when empty)")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{string(identity.RoleClient)}, "roles: owner, assistant, editor, client")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
