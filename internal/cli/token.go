package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/taskreview/internal/config"
	"github.com/mrz1836/taskreview/internal/errors"
	"github.com/mrz1836/taskreview/internal/identity"
)

// defaultTokenTTL is the lifetime of issued tokens.
const defaultTokenTTL = 24 * time.Hour

// issuedToken is the JSON shape of token issue.
type issuedToken struct {
	Subject   string    `json:"subject"`
	Admin     bool      `json:"admin"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"token"`
}

// addTokenCommand adds the token command group for the jwt identity mode.
func addTokenCommand(root *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens for the jwt identity mode",
	}

	var (
		admin bool
		ttl   time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue <actor-id>",
		Short: "Sign a bearer token for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.cfg.Identity.Mode != config.IdentityJWT {
				return errors.NewExitCode2Error(errors.Validationf(
					"tokens require identity.mode=jwt, current mode is %q", s.cfg.Identity.Mode))
			}
			if ttl <= 0 {
				return errors.Validationf("--ttl must be positive")
			}
			provider, err := identity.NewJWTProvider(s.cfg.Identity.JWTSecret, s.cfg.Identity.Issuer, s.cfg.Identity.Admins)
			if err != nil {
				return err
			}
			token, err := provider.Issue(args[0], admin, ttl)
			if err != nil {
				return err
			}

			out := s.output(cmd)
			if out.IsJSON() {
				return out.JSON(issuedToken{
					Subject:   args[0],
					Admin:     admin,
					ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
					Token:     token,
				})
			}
			_, err = cmd.OutOrStdout().Write([]byte(token + "\n"))
			return err
		},
	}
	issue.Flags().BoolVar(&admin, "admin", false, "grant the administrator role in the token")
	issue.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime")

	cmd.AddCommand(issue)
	root.AddCommand(cmd)
}
