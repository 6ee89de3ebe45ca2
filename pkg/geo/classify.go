package geo

import (
	stderrors "errors"

	"github.com/rs/zerolog"

	"github.com/go-drift/geotrack/pkg/errors"
)

// Classification is the closed failure taxonomy.
type Classification int

const (
	ClassNotSupported Classification = iota + 1
	ClassPermissionDenied
	ClassPositionUnavailable
	ClassTimeout
	ClassDisabledByUser
	ClassPermissionRequired
	// ClassUnexpectedError is a panic or error escaping a host call.
	ClassUnexpectedError
	// ClassUnknownPositionError is a host error code outside the known set.
	ClassUnknownPositionError
)

func (c Classification) String() string {
	switch c {
	case ClassNotSupported:
		return "NotSupported"
	case ClassPermissionDenied:
		return "PermissionDenied"
	case ClassPositionUnavailable:
		return "PositionUnavailable"
	case ClassTimeout:
		return "Timeout"
	case ClassDisabledByUser:
		return "DisabledByUser"
	case ClassPermissionRequired:
		return "PermissionRequired"
	case ClassUnexpectedError:
		return "UnexpectedError"
	case ClassUnknownPositionError:
		return "UnknownPositionError"
	default:
		return "Classification(?)"
	}
}

// Status returns the status tag written for c.
func (c Classification) Status() Status {
	switch c {
	case ClassNotSupported:
		return StatusNotSupported
	case ClassPermissionDenied:
		return StatusPermissionDenied
	case ClassPositionUnavailable:
		return StatusPositionUnavailable
	case ClassTimeout:
		return StatusTimeout
	case ClassDisabledByUser:
		return StatusDisabledByUser
	case ClassPermissionRequired:
		return StatusPermissionRequired
	case ClassUnexpectedError:
		return StatusError
	default:
		return StatusUnknownError
	}
}

// ClassifyPositionError maps a host error code onto the taxonomy.
func ClassifyPositionError(code int) Classification {
	switch code {
	case CodePermissionDenied:
		return ClassPermissionDenied
	case CodePositionUnavailable:
		return ClassPositionUnavailable
	case CodeTimeout:
		return ClassTimeout
	default:
		return ClassUnknownPositionError
	}
}

// reporter is the single write path from position callbacks to the store.
// The watch and the one-shot locator share it so both classify identically.
type reporter struct {
	store Store
	perms *PermissionMonitor
	log   zerolog.Logger
}

// success writes a fix and returns the coordinates written.
func (r *reporter) success(pos Position) Coordinates {
	coords := Coordinates{Latitude: pos.Latitude, Longitude: pos.Longitude}
	r.store.SetLocation(&coords, StatusSuccess, false)
	return coords
}

// failure writes a classified error and returns its classification.
func (r *reporter) failure(perr *PositionError) Classification {
	c := ClassifyPositionError(perr.Code)
	r.store.SetLocationError(perr, c.Status(), false)
	r.log.Debug().
		Int("code", perr.Code).
		Str("message", perr.Message).
		Stringer("classification", c).
		Msg("Position request failed")
	return c
}

// settle applies the permission side effects of a terminal callback. It must
// run without any controller lock held: a denial notifies the gate, which
// may stop the watch.
func (r *reporter) settle(c Classification, ok bool) {
	switch {
	case ok:
		// A fix answers an open prompt. Unknown stays unknown until a query
		// or probe settles it.
		if r.perms.State() == PermissionPrompt {
			r.perms.Set(PermissionGranted)
		}
	case c == ClassPermissionDenied:
		r.perms.Set(PermissionDenied)
	}
}

// unexpected writes a ClassUnexpectedError result for err and reports it.
func (r *reporter) unexpected(op string, err error) {
	r.store.SetLocationError(&PositionError{Code: 0, Message: err.Error()}, ClassUnexpectedError.Status(), false)
	kind := errors.KindPosition
	var panicErr *errors.PanicError
	if stderrors.As(err, &panicErr) {
		kind = errors.KindPanic
	}
	errors.Report(&errors.GeoError{
		Op:   op,
		Kind: kind,
		Err:  err,
	})
}

// refuse writes a non-request failure (not supported, disabled, denied
// before any request was issued).
func (r *reporter) refuse(c Classification, message string) {
	if message == "" {
		r.store.SetLocationStatus(c.Status())
		return
	}
	r.store.SetLocationError(&PositionError{Code: CodePermissionDenied, Message: message}, c.Status(), false)
}

// guard runs fn, converting a panic into an error.
func guard(op string, fn func() error) (err error) {
	defer errors.RecoverWithCallback(op, func(r any) {
		err = errors.PanicAsError(op, r)
	})
	return fn()
}
