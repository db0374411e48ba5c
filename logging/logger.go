package logging

import (
	"os"

	"github.com/rs/zerolog"
)

var RootLogger zerolog.Logger = zerolog.New(
	zerolog.NewConsoleWriter(
		func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr },
		func(w *zerolog.ConsoleWriter) { w.TimeFormat = "15:04:05.000" })).Level(zerolog.InfoLevel).
	With().Timestamp().Logger()

// SetLevel changes the level of RootLogger, e.g. "debug" or "warn"
func SetLevel(level string) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	RootLogger = RootLogger.Level(l)
	return nil
}

// Component returns a child of RootLogger tagged with name
func Component(name string) zerolog.Logger {
	return RootLogger.With().Str("component", name).Logger()
}
