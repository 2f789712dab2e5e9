// Package logger configures the process-wide zerolog logger used by
// every coverage-analyzer component, following the ELK-friendly
// structured-log shape used across the rest of this codebase.
package logger

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process-wide structured logger. Init replaces it;
// until Init runs it is the zero-value zerolog.Logger, which has no
// writer and emits nothing.
var Logger zerolog.Logger

// Init configures the global logger from LOG_LEVEL and LOG_FORMAT
// ("pretty" for local development, anything else for JSON). It also
// installs Logger as the package-level logger used by
// github.com/rs/zerolog/log throughout the coverage package.
func Init() {
	level := zerolog.InfoLevel
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output = os.Stdout
	var writer zerolog.ConsoleWriter
	useConsole := strings.ToLower(os.Getenv("LOG_FORMAT")) == "pretty"
	if useConsole {
		writer = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	hostname, _ := os.Hostname()
	builder := zerolog.New(output).With().
		Timestamp().
		Str("host", hostname).
		Str("service", "coverage-analyzer").
		Str("environment", os.Getenv("APP_ENV"))
	if useConsole {
		builder = zerolog.New(writer).With().
			Timestamp().
			Str("host", hostname).
			Str("service", "coverage-analyzer").
			Str("environment", os.Getenv("APP_ENV"))
	}

	Logger = builder.Logger()
	log.Logger = Logger

	Logger.Info().Str("level", level.String()).Bool("pretty", useConsole).Msg("logger initialized")
}

// ClaimLogger adds claim-run fields, for every log line touching one
// claim's pipeline run.
func ClaimLogger(claimID, claimRunID string) *zerolog.Event {
	return Logger.Info().
		Str("type", "claim").
		Str("claim_id", claimID).
		Str("claim_run_id", claimRunID)
}

// StageLogger adds pipeline-stage fields, for per-stage diagnostics
// (item counts entering/leaving a stage, deferrals, overrides).
func StageLogger(stage string) *zerolog.Event {
	return Logger.Info().
		Str("type", "stage").
		Str("stage", stage)
}

// LLMCallLogger adds LLM audit-trail fields for a single call.
func LLMCallLogger(claimRunID, stage, callID string) *zerolog.Event {
	return Logger.Info().
		Str("type", "llm_call").
		Str("claim_run_id", claimRunID).
		Str("stage", stage).
		Str("call_id", callID)
}

// ErrorLogger adds caller fields in ELK-friendly format, mirroring
// the rest of this codebase's structured-error logging.
func ErrorLogger() *zerolog.Event {
	pc, file, line, _ := runtime.Caller(1)
	return Logger.Error().
		Str("type", "error").
		Str("file", file).
		Int("line", line).
		Str("function", runtime.FuncForPC(pc).Name())
}
