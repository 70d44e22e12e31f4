// Package logging wires zerolog the way the teacher's cmd/*/main.go
// binaries do, plus the lecho adapter for the echo HTTP stack.
package logging

import (
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/ziflex/lecho/v2"
)

// New builds the process-wide zerolog.Logger at levelName (LOG_LEVEL,
// spec.md section 6), falling back to info on a bad value.
func New(levelName string) zerolog.Logger {
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		log.Warn().Str("level", levelName).Msg("could not parse log level, defaulting to info")
		return log
	}
	return log.Level(level)
}

// Echo wraps log for use as an echo.Logger, matching the teacher's
// lecho wiring for its Rosetta/REST echo instances.
func Echo(log zerolog.Logger) echo.Logger {
	return lecho.From(log)
}
