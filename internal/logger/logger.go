// Package logger builds the hclog.Logger instances every orchestrator
// subsystem is constructed with.
package logger

import (
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/scanio-git/orchestrator/internal/config"
)

// New creates a named hclog.Logger from the resolved configuration. The
// environment variable ORCHESTRATOR_LOG_LEVEL takes priority over
// cfg.Logger.Level so a single deployment config can be overridden ad hoc.
func New(cfg *config.Config, name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:            name,
		DisableTime:     cfg.Logger.DisableTime,
		JSONFormat:      cfg.Logger.JSONFormat,
		IncludeLocation: cfg.Logger.IncludeLocation,
		Output:          os.Stdout,
		Level:           determineLevel(cfg),
	})
}

func determineLevel(cfg *config.Config) hclog.Level {
	if env := os.Getenv("ORCHESTRATOR_LOG_LEVEL"); env != "" {
		return parseLevel(strings.ToUpper(env))
	}
	return parseLevel(strings.ToUpper(cfg.Logger.Level))
}

func parseLevel(levelStr string) hclog.Level {
	switch levelStr {
	case "TRACE":
		return hclog.Trace
	case "DEBUG":
		return hclog.Debug
	case "INFO":
		return hclog.Info
	case "WARN":
		return hclog.Warn
	case "ERROR":
		return hclog.Error
	case "":
		return hclog.Info
	default:
		hclog.New(&hclog.LoggerOptions{
			Level:       hclog.Warn,
			DisableTime: true,
			Output:      os.Stdout,
		}).Warn("unrecognized log level, defaulting to INFO", "provided", levelStr)
		return hclog.Info
	}
}
