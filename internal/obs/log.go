package obs

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global zerolog logger: human readable console
// output with debug level in DEV, JSON at info level everywhere else.
func SetupLogger(env string, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if strings.EqualFold(env, "DEV") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).
			Level(zerolog.DebugLevel)
	} else {
		logger = zerolog.New(out).Level(zerolog.InfoLevel)
	}
	logger = logger.With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
