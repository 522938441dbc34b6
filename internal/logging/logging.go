package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
)

// New builds the process logger. DEV gets a console writer, everything else JSON on stdout.
func New(c config.App) zerolog.Logger {
	return build(os.Stdout, c)
}

func build(out io.Writer, c config.App) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	w := out
	if c.IsDev() {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("app", c.AppName).
		Logger()
}
