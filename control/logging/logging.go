// Package logging sets up zerolog for the clock programs.
package logging

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup returns a console logger at level and installs it as the global logger.  An unknown level
// logs at info and says so.
func Setup(level string) zerolog.Logger {
	return SetupWithWriter(level, os.Stderr)
}

// SetupWithWriter is Setup with the output going to w.
func SetupWithWriter(level string, w io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(output).With().Timestamp().Logger().Level(lvl)
	if err != nil {
		logger.Warn().Err(err).Msg("unknown log level; using info")
	}
	log.Logger = logger
	return logger
}

// RequestLogger logs every HTTP request at debug, or at warn/error for failed ones.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := logger.Debug()
			if status >= 500 {
				event = logger.Error()
			} else if status >= 400 {
				event = logger.Warn()
			}
			event.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Int("bytes", ww.BytesWritten()).
				Msg("http_request")
		})
	}
}
