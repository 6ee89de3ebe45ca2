package platform

import "github.com/go-drift/geotrack/pkg/errors"

// Stream provides a multi-subscriber broadcast pattern for platform events.
// Multiple listeners receive all events independently.
type Stream[T any] struct {
	eventChannel *EventChannel
	parser       func(data any) (T, error)
	// kind tags stream errors reported to pkg/errors.
	kind errors.ErrorKind
}

// Listen subscribes to events and returns an unsubscribe function.
// Parse errors and stream errors are reported via errors.Report.
func (s *Stream[T]) Listen(handler func(T)) (unsubscribe func()) {
	name := s.eventChannel.Name()
	sub := s.eventChannel.Listen(EventHandler{
		OnEvent: func(data any) {
			val, err := s.parser(data)
			if err != nil {
				errors.Report(&errors.GeoError{
					Op:      "stream.parse",
					Kind:    errors.KindParsing,
					Channel: name,
					Err:     err,
				})
				return
			}
			deliver(func() { handler(val) })
		},
		OnError: func(err error) {
			errors.Report(&errors.GeoError{
				Op:      "stream.error",
				Kind:    s.kind,
				Channel: name,
				Err:     err,
			})
		},
	})
	return sub.Cancel
}

// NewStream creates a Stream wrapping an EventChannel.
// The parser converts raw event data to the typed value.
func NewStream[T any](channel *EventChannel, parser func(data any) (T, error)) *Stream[T] {
	return NewStreamOfKind(channel, errors.KindPlatform, parser)
}

// NewStreamOfKind is NewStream with stream errors reported as kind.
func NewStreamOfKind[T any](channel *EventChannel, kind errors.ErrorKind, parser func(data any) (T, error)) *Stream[T] {
	return &Stream[T]{
		eventChannel: channel,
		parser:       parser,
		kind:         kind,
	}
}
