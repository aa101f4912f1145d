package config

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/mrz1836/taskreview/internal/constants"
	"github.com/mrz1836/taskreview/internal/errors"
)

// newViperInstance creates a new Viper instance with standard taskreview configuration.
// This includes environment variable prefix (TASKREVIEW_), key replacer, and defaults.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// isConfigNotFoundError returns true if the error is a viper config file not found error.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var configNotFoundErr viper.ConfigFileNotFoundError
	return stderrors.As(err, &configNotFoundErr)
}

// unmarshalAndValidate unmarshals viper config into Config struct and validates it.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load reads configuration from all available sources with proper precedence.
// Configuration is loaded in the following order (highest precedence first):
//  1. Environment variables (TASKREVIEW_* prefix)
//  2. Project config (.taskreview/config.yaml)
//  3. Global config (~/.taskreview/config.yaml)
//  4. Built-in defaults
//
// For CLI flag overrides, use LoadWithOverrides instead.
//
// Missing config files are not an error.
func Load(ctx context.Context) (*Config, error) {
	v := newViperInstance()

	// Global config first (lower precedence)
	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}

	// Project config merges over global
	if err := loadProjectConfig(v); err != nil {
		return nil, err
	}

	cfg, err := unmarshalAndValidate(v)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	logger.Debug().
		Str("store.driver", cfg.Store.Driver).
		Str("artifacts.backend", cfg.Artifacts.Backend).
		Str("notifications.backend", cfg.Notifications.Backend).
		Str("identity.mode", cfg.Identity.Mode).
		Int("identity.admins", len(cfg.Identity.Admins)).
		Msg("configuration loaded")

	return cfg, nil
}

// loadGlobalConfig attempts to load the global config file (~/.taskreview/config.yaml).
// Returns nil if the file doesn't exist or home directory cannot be determined.
func loadGlobalConfig(v *viper.Viper) error {
	globalConfigPath, ok := getGlobalConfigPathIfExists()
	if !ok {
		return nil
	}

	v.SetConfigFile(globalConfigPath)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read global config file")
	}
	return nil
}

// getGlobalConfigPathIfExists returns the global config path if it exists.
func getGlobalConfigPathIfExists() (string, bool) {
	globalConfigPath, err := GlobalConfigPath()
	if err != nil {
		return "", false
	}
	if !fileExists(globalConfigPath) {
		return "", false
	}
	return globalConfigPath, true
}

// loadProjectConfig attempts to load the project config file (.taskreview/config.yaml).
// Returns nil if the file doesn't exist.
func loadProjectConfig(v *viper.Viper) error {
	projectConfigPath := ProjectConfigPath()
	if !fileExists(projectConfigPath) {
		return nil
	}

	v.SetConfigFile(projectConfigPath)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read project config file")
	}
	return nil
}

// fileExists returns true if the file at path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadWithOverrides loads configuration and applies CLI flag overrides.
// Only non-zero values in overrides are applied.
func LoadWithOverrides(ctx context.Context, overrides *Config) (*Config, error) {
	cfg, err := Load(ctx)
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		applyOverrides(cfg, overrides)
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration after overrides")
	}

	return cfg, nil
}

// LoadFromPaths loads configuration from specific file paths.
// projectConfigPath has higher priority than globalConfigPath.
// Either path can be empty to skip that level.
func LoadFromPaths(_ context.Context, projectConfigPath, globalConfigPath string) (*Config, error) {
	v := newViperInstance()

	if globalConfigPath != "" {
		v.SetConfigFile(globalConfigPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read global config: %s", globalConfigPath)
		}
	}

	if projectConfigPath != "" {
		v.SetConfigFile(projectConfigPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to read project config: %s", projectConfigPath)
		}
	}

	return unmarshalAndValidate(v)
}

// applyOverrides merges non-zero override values into the config.
//
// IMPORTANT: Boolean fields (Breaker.Enabled, EnforceDeadlineOrder) cannot be
// overridden to false here because the zero value is indistinguishable from
// "not set". CLI implementations handle those flags with cmd.Flags().Changed.
func applyOverrides(cfg, overrides *Config) {
	applyStoreOverrides(cfg, overrides)

	if overrides.Artifacts.Backend != "" {
		cfg.Artifacts.Backend = overrides.Artifacts.Backend
	}
	if overrides.Artifacts.Dir != "" {
		cfg.Artifacts.Dir = overrides.Artifacts.Dir
	}

	if overrides.Notifications.Backend != "" {
		cfg.Notifications.Backend = overrides.Notifications.Backend
	}
	if overrides.Notifications.Redis.Addr != "" {
		cfg.Notifications.Redis.Addr = overrides.Notifications.Redis.Addr
	}

	if overrides.Identity.Mode != "" {
		cfg.Identity.Mode = overrides.Identity.Mode
	}
	if len(overrides.Identity.Admins) > 0 {
		cfg.Identity.Admins = overrides.Identity.Admins
	}

	if overrides.Server.Addr != "" {
		cfg.Server.Addr = overrides.Server.Addr
	}

	if overrides.Log.Level != "" {
		cfg.Log.Level = overrides.Log.Level
	}
	if overrides.Log.File != "" {
		cfg.Log.File = overrides.Log.File
	}
}

// applyStoreOverrides applies store-related overrides to the config.
func applyStoreOverrides(cfg, overrides *Config) {
	if overrides.Store.Driver != "" {
		cfg.Store.Driver = overrides.Store.Driver
	}
	if overrides.Store.Path != "" {
		cfg.Store.Path = overrides.Store.Path
	}
	if overrides.Store.DSN != "" {
		cfg.Store.DSN = overrides.Store.DSN
	}
	if overrides.Store.LockTimeout != 0 {
		cfg.Store.LockTimeout = overrides.Store.LockTimeout
	}
}

// ResolvePaths fills empty store, artifact and log paths with locations under home.
func (c *Config) ResolvePaths(home string) {
	if c.Store.Path == "" {
		switch c.Store.Driver {
		case StoreSQLite:
			c.Store.Path = filepath.Join(home, constants.DatabaseFileName)
		case StoreFile:
			c.Store.Path = home
		}
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = filepath.Join(home, constants.ArtifactsDir)
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(home, constants.LogsDir, constants.CLILogFileName)
	}
}

// viperDecoderOption returns the decoder options for Viper unmarshal.
// Durations decode from strings and comma separated env values decode into slices.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}
