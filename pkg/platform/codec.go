// Package platform provides the channel layer between Go and the host that
// owns the device geolocation and permission APIs (a browser, a webview, or a
// mobile shell). Go calls host methods over method channels and receives
// position fixes, position errors, and permission changes over event channels.
package platform

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// MessageCodec encodes and decodes messages for platform channel communication.
type MessageCodec interface {
	// Encode converts a Go value to bytes for transmission to the host.
	Encode(value any) ([]byte, error)

	// Decode converts bytes received from the host to a Go value.
	Decode(data []byte) (any, error)
}

// JSONCodec implements MessageCodec using JSON encoding.
// JSON is what browser and webview hosts speak natively.
type JSONCodec struct{}

// Encode serializes the value to JSON bytes.
func (JSONCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode deserializes JSON bytes to a Go value.
func (JSONCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CBORCodec implements MessageCodec using deterministic CBOR. Mobile shells
// that already link a CBOR library use it to avoid JSON number ambiguity on
// timestamps.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds a CBORCodec with core deterministic encoding. Maps of
// unknown shape decode as map[string]any so parsers can treat both codecs alike.
func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

// Encode serializes the value to CBOR bytes.
func (c *CBORCodec) Encode(value any) ([]byte, error) {
	return c.enc.Marshal(value)
}

// Decode deserializes CBOR bytes to a Go value.
func (c *CBORCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result any
	if err := c.dec.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DefaultCodec is the codec used by platform channels.
var DefaultCodec MessageCodec = JSONCodec{}

// SetCodec replaces DefaultCodec. Call it before SetNativeBridge; the host
// must speak the same encoding. Passing nil restores JSON.
func SetCodec(codec MessageCodec) {
	if codec == nil {
		codec = JSONCodec{}
	}
	DefaultCodec = codec
}

// Standard errors for platform channel operations.
var (
	// ErrChannelNotFound indicates the requested platform channel does not exist.
	ErrChannelNotFound = errors.New("platform channel not found")

	// ErrMethodNotFound indicates the method is not implemented on the host side.
	ErrMethodNotFound = errors.New("method not implemented")

	// ErrInvalidArguments indicates the arguments passed to the method were invalid.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrPlatformUnavailable indicates the platform feature is not available
	// (no bridge, no geolocation API, no permissions API).
	ErrPlatformUnavailable = errors.New("platform feature unavailable")

	// ErrTimeout indicates the operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates the operation was canceled via context cancellation.
	ErrCanceled = errors.New("operation was canceled")
)

// ChannelError represents an error returned from host code.
type ChannelError struct {
	Code    string `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
	Details any    `json:"details,omitempty" cbor:"details,omitempty"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// Is maps the host's "unsupported" code onto ErrPlatformUnavailable.
func (e *ChannelError) Is(target error) bool {
	return target == ErrPlatformUnavailable && e.Code == "unsupported"
}

// NewChannelError creates a new ChannelError with the given code and message.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}
