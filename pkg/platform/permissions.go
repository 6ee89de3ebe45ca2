package platform

import (
	"context"
	"fmt"

	"github.com/go-drift/geotrack/pkg/errors"
)

// PermissionState is the host's answer to a geolocation permission query.
type PermissionState string

// Permission state constants.
const (
	// PermissionGranted indicates location access is allowed.
	PermissionGranted PermissionState = "granted"

	// PermissionDenied indicates the user or a policy refused location access.
	// It does not recover without explicit user action in host settings.
	PermissionDenied PermissionState = "denied"

	// PermissionPrompt indicates the host has not decided yet; the next
	// position request will show a prompt.
	PermissionPrompt PermissionState = "prompt"

	// PermissionUnknown indicates the state could not be determined.
	PermissionUnknown PermissionState = "unknown"
)

// ParsePermissionState maps host strings onto the closed set. Mobile hosts
// report "not_determined" and "permanently_denied"; both are folded in.
func ParsePermissionState(s string) PermissionState {
	switch s {
	case "granted", "limited":
		return PermissionGranted
	case "denied", "permanently_denied", "restricted":
		return PermissionDenied
	case "prompt", "not_determined":
		return PermissionPrompt
	default:
		return PermissionUnknown
	}
}

// PermissionService queries the host's permission API for geolocation and
// streams out-of-band changes (for example the user flipping a browser site
// setting).
//
// Hosts without a permissions API answer "query" with an "unsupported"
// channel error, which surfaces as ErrPlatformUnavailable.
type PermissionService struct {
	channel *MethodChannel
	changes *Stream[PermissionState]
}

// GeolocationPermission is the singleton permission service.
var GeolocationPermission = newPermissionService()

func newPermissionService() *PermissionService {
	return &PermissionService{
		channel: NewMethodChannel("geo/permissions"),
		changes: NewStreamOfKind(NewEventChannel("geo/permissions/changes"), errors.KindPermission, parsePermissionChange),
	}
}

// Query asks the host for the current geolocation permission state.
// The ctx parameter is checked before the call; host calls are not interruptible.
func (p *PermissionService) Query(ctx context.Context) (PermissionState, error) {
	if err := ctx.Err(); err != nil {
		return PermissionUnknown, ErrCanceled
	}
	result, err := p.channel.Invoke("query", map[string]any{"name": "geolocation"})
	if err != nil {
		return PermissionUnknown, err
	}
	m := parseMap(result)
	if m == nil {
		return PermissionUnknown, ErrInvalidArguments
	}
	return ParsePermissionState(parseString(m["state"])), nil
}

// Listen subscribes to permission changes. Returns an unsubscribe function.
func (p *PermissionService) Listen(handler func(PermissionState)) (unsubscribe func()) {
	return p.changes.Listen(handler)
}

func parsePermissionChange(data any) (PermissionState, error) {
	m := parseMap(data)
	if m == nil {
		return PermissionUnknown, fmt.Errorf("expected map, got %T", data)
	}
	if name := parseString(m["name"]); name != "" && name != "geolocation" {
		return PermissionUnknown, fmt.Errorf("unexpected permission %q", name)
	}
	return ParsePermissionState(parseString(m["state"])), nil
}
