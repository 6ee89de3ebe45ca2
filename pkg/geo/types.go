package geo

import (
	"time"

	"github.com/go-drift/geotrack/pkg/platform"
)

// PermissionState is the host's geolocation permission.
type PermissionState = platform.PermissionState

// Permission states.
const (
	PermissionGranted = platform.PermissionGranted
	PermissionDenied  = platform.PermissionDenied
	PermissionPrompt  = platform.PermissionPrompt
	PermissionUnknown = platform.PermissionUnknown
)

// Types shared with the platform layer.
type (
	Position        = platform.Position
	PositionOptions = platform.PositionOptions
	PositionError   = platform.PositionError
	WatchID         = platform.WatchID
)

// Position error codes reported by the host.
const (
	CodePermissionDenied    = platform.PositionErrorPermissionDenied
	CodePositionUnavailable = platform.PositionErrorPositionUnavailable
	CodeTimeout             = platform.PositionErrorTimeout
)

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Status is the human-readable outcome tag written with every result. UI code
// can switch on it exhaustively; see Statuses.
type Status string

// Statuses. StatusNone is the cleared state.
const (
	StatusNone                Status = ""
	StatusLoading             Status = "Loading"
	StatusSuccess             Status = "Success"
	StatusPermissionDenied    Status = "Permission Denied"
	StatusPositionUnavailable Status = "Position Unavailable"
	StatusTimeout             Status = "Timeout"
	StatusDisabledByUser      Status = "Disabled by User"
	StatusPermissionRequired  Status = "Permission Required"
	StatusNotSupported        Status = "Not Supported"
	StatusError               Status = "Error"
	StatusUnknownError        Status = "Unknown Error"
)

// Statuses lists every non-empty status.
func Statuses() []Status {
	return []Status{
		StatusLoading,
		StatusSuccess,
		StatusPermissionDenied,
		StatusPositionUnavailable,
		StatusTimeout,
		StatusDisabledByUser,
		StatusPermissionRequired,
		StatusNotSupported,
		StatusError,
		StatusUnknownError,
	}
}

// LocationResult is the snapshot published to the Store.
// Coordinates and Error are never both set.
type LocationResult struct {
	Coordinates *Coordinates
	Status      Status
	Error       *PositionError
	IsLoading   bool
}

// Profiles holds the request options for each kind of request.
type Profiles struct {
	// Watch is used for the continuous watch.
	Watch PositionOptions
	// OneShot is used by GetCurrentLocation.
	OneShot PositionOptions
	// Probe is the low-cost request used to infer permission.
	Probe PositionOptions
	// ProbeGrace is added to Probe.Timeout before a silent probe counts as prompt.
	ProbeGrace time.Duration
}

// DefaultProfiles returns the stock request profiles. The watch favors
// responsiveness and tolerates a minute-old fix; one-shot requests always
// ask for a fresh fix.
func DefaultProfiles() Profiles {
	return Profiles{
		Watch: PositionOptions{
			EnableHighAccuracy: true,
			Timeout:            10 * time.Second,
			MaximumAge:         time.Minute,
		},
		OneShot: PositionOptions{
			EnableHighAccuracy: true,
			Timeout:            10 * time.Second,
			MaximumAge:         0,
		},
		Probe: PositionOptions{
			EnableHighAccuracy: false,
			Timeout:            150 * time.Millisecond,
			MaximumAge:         -1,
		},
		ProbeGrace: 50 * time.Millisecond,
	}
}
