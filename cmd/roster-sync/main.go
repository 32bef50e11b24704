// Package main is the entry point for the roster-sync server.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/memberhub/roster-sync/cmd/roster-sync/app"
	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/logging"
)

// getLogLevel reads ROSTER_SYNC_LOG_LEVEL, falling back to LOG_LEVEL.
func getLogLevel() (slog.Level, string) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}

	level, ok := logging.ParseLevel(levelStr)
	if !ok {
		return level, levelStr
	}
	return level, ""
}

func main() {
	level, invalid := getLogLevel()

	// Logs go to stderr so stdout stays clean for command output.
	logger := logging.New(logging.WithLevel(level))
	slog.SetDefault(logger.Slog)
	if invalid != "" {
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", invalid)
	}

	err := app.NewRootCmd(logger).Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
