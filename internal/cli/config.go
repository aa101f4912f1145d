package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/taskreview/internal/config"
	"github.com/mrz1836/taskreview/internal/logging"
)

// addConfigCommand adds the config command group.
func addConfigCommand(root *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			masked := maskSecrets(*s.cfg)
			out := s.output(cmd)
			if out.IsJSON() {
				return out.JSON(masked)
			}
			data, err := yaml.Marshal(masked)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			global, err := config.GlobalConfigPath()
			if err != nil {
				return err
			}
			paths := map[string]string{"global": global, "project": config.ProjectConfigPath()}
			out := s.output(cmd)
			if out.IsJSON() {
				return out.JSON(paths)
			}
			out.Field("Global", paths["global"])
			out.Field("Project", paths["project"])
			return nil
		},
	})

	root.AddCommand(cmd)
}

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg config.Config) config.Config {
	mask := func(field, value string) string {
		if value == "" {
			return ""
		}
		return logging.SafeValue(field, value)
	}
	cfg.Store.DSN = logging.FilterSensitiveValue(cfg.Store.DSN)
	cfg.Artifacts.S3.AccessKeyID = mask("access_key_id", cfg.Artifacts.S3.AccessKeyID)
	cfg.Artifacts.S3.SecretAccessKey = mask("secret_access_key", cfg.Artifacts.S3.SecretAccessKey)
	cfg.Notifications.Redis.Password = mask("password", cfg.Notifications.Redis.Password)
	cfg.Identity.JWTSecret = mask("jwt_secret", cfg.Identity.JWTSecret)
	return cfg
}
