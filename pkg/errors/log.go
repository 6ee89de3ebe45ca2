package errors

import (
	"os"

	"github.com/rs/zerolog"
)

// LogHandler is an ErrorHandler that writes reports through a zerolog logger.
type LogHandler struct {
	// Verbose adds stack traces to every report.
	Verbose bool

	log zerolog.Logger
}

// NewLogHandler returns a LogHandler writing to log. A nil log writes JSON
// lines to stderr.
func NewLogHandler(log *zerolog.Logger) *LogHandler {
	if log == nil {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log = &l
	}
	return &LogHandler{log: log.With().Str("component", "errors").Logger()}
}

// HandleError logs a GeoError.
func (h *LogHandler) HandleError(err *GeoError) {
	if err == nil {
		return
	}
	evt := h.log.Error().
		Err(err.Err).
		Str("op", err.Op).
		Stringer("kind", err.Kind).
		Time("at", err.Timestamp)
	if err.Channel != "" {
		evt = evt.Str("channel", err.Channel)
	}
	if h.Verbose && err.StackTrace != "" {
		evt = evt.Str("stack", err.StackTrace)
	}
	evt.Msg("geotrack error")
}

// HandlePanic logs a PanicError. Stack traces are always included.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	evt := h.log.Error().Interface("value", err.Value)
	if err.Op != "" {
		evt = evt.Str("op", err.Op)
	}
	if err.StackTrace != "" {
		evt = evt.Str("stack", err.StackTrace)
	}
	evt.Msg("geotrack panic")
}
