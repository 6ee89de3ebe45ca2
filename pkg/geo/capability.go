package geo

import (
	"context"

	"github.com/go-drift/geotrack/pkg/platform"
)

// Geolocation is the host capability that produces positions.
// platform.Geolocation implements it over the native bridge.
type Geolocation interface {
	// Supported reports whether the host has a geolocation API at all.
	Supported() bool
	// GetCurrentPosition issues a single request. Exactly one callback fires
	// unless an error is returned.
	GetCurrentPosition(opts PositionOptions, onPosition func(Position), onError func(*PositionError)) error
	// WatchPosition starts a continuous watch. Callbacks fire repeatedly
	// until ClearWatch.
	WatchPosition(opts PositionOptions, onPosition func(Position), onError func(*PositionError)) (WatchID, error)
	// ClearWatch cancels a watch. Unknown ids are ignored.
	ClearWatch(id WatchID)
}

// PermissionQuerier is the optional host permission API.
// platform.GeolocationPermission implements it.
type PermissionQuerier interface {
	// Query returns the current permission state.
	Query(ctx context.Context) (PermissionState, error)
	// Listen reports out-of-band permission changes until unsubscribed.
	Listen(handler func(PermissionState)) (unsubscribe func())
}

// Preferences is the read side of the user-preference store.
type Preferences interface {
	// LoggedIn reports whether a user is signed in.
	LoggedIn() bool
	// SharingEnabled reports the user's location-sharing preference.
	SharingEnabled() bool
	// Listen calls fn after either value changes.
	Listen(fn func()) (unsubscribe func())
}

// Store receives every location result. Each call replaces the whole
// snapshot it touches; implementations must not call back into the Tracker
// from inside a write.
type Store interface {
	SetLocation(coords *Coordinates, status Status, isLoading bool)
	SetLocationError(err *PositionError, status Status, isLoading bool)
	SetLocationLoading(isLoading bool)
	SetLocationStatus(status Status)
	ClearLocationState()
}

// PlatformCapabilities returns the bridge-backed capabilities. The permission
// querier is nil when the host reports no permissions API.
func PlatformCapabilities() (Geolocation, PermissionQuerier) {
	info, err := platform.Bridge.Info()
	if err != nil || !info.PermissionsAPI {
		return platform.Geolocation, nil
	}
	return platform.Geolocation, platform.GeolocationPermission
}

// unsupported stands in when no Geolocation is configured.
type unsupported struct{}

func (unsupported) Supported() bool { return false }

func (unsupported) GetCurrentPosition(PositionOptions, func(Position), func(*PositionError)) error {
	return platform.ErrPlatformUnavailable
}

func (unsupported) WatchPosition(PositionOptions, func(Position), func(*PositionError)) (WatchID, error) {
	return "", platform.ErrPlatformUnavailable
}

func (unsupported) ClearWatch(WatchID) {}
