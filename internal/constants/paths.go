package constants

// Log file names.
const (
	// CLILogFileName is the name of the rotating CLI log file.
	// This file is located in ~/.taskreview/logs/taskreview.log
	CLILogFileName = "taskreview.log"
)

// Configuration file names.
const (
	// GlobalConfigName is the name of the global configuration file.
	// This file is located in the taskreview home directory.
	GlobalConfigName = "config.yaml"

	// EnvPrefix is the prefix for environment variable overrides (TASKREVIEW_*).
	EnvPrefix = "TASKREVIEW"
)

// Environment variables read outside the config layer.
const (
	// HomeEnvVar overrides the taskreview home directory (default ~/.taskreview).
	HomeEnvVar = "TASKREVIEW_HOME"

	// ActorEnvVar supplies the CLI actor when --as is not given.
	ActorEnvVar = "TASKREVIEW_ACTOR"

	// TokenEnvVar supplies the CLI bearer token when --token is not given.
	TokenEnvVar = "TASKREVIEW_TOKEN"
)

// Log rotation settings for the CLI log file.
const (
	LogMaxSizeMB  = 10
	LogMaxBackups = 5
	LogMaxAgeDays = 30
	LogCompress   = true
)
