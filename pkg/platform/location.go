package platform

import (
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/xid"

	"github.com/go-drift/geotrack/pkg/errors"
)

// Position is a single fix reported by the host.
type Position struct {
	// Latitude is the latitude in degrees.
	Latitude float64
	// Longitude is the longitude in degrees.
	Longitude float64
	// Altitude is the altitude in meters.
	Altitude float64
	// Accuracy is the estimated horizontal accuracy in meters.
	Accuracy float64
	// Heading is the direction of travel in degrees.
	Heading float64
	// Speed is the speed in meters per second.
	Speed float64
	// Timestamp is when the reading was taken.
	Timestamp time.Time
	// IsMocked reports whether the reading came from a mock provider.
	IsMocked bool
}

// Host position error codes, matching the W3C GeolocationPositionError values.
const (
	PositionErrorPermissionDenied    = 1
	PositionErrorPositionUnavailable = 2
	PositionErrorTimeout             = 3
)

// PositionError is the failure reported for a position request.
type PositionError struct {
	Code    int
	Message string
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("position error %d: %s", e.Code, e.Message)
}

// PositionOptions configures a single request or a watch.
type PositionOptions struct {
	// EnableHighAccuracy requests the best available fix (may use more power).
	EnableHighAccuracy bool
	// Timeout bounds the wait for a fix. Zero or negative means no limit.
	Timeout time.Duration
	// MaximumAge is the oldest cached fix the host may return. Zero forces a
	// fresh fix; a negative value accepts any cached fix.
	MaximumAge time.Duration
}

func (o PositionOptions) wire() map[string]any {
	return map[string]any{
		"enableHighAccuracy": o.EnableHighAccuracy,
		"timeoutMs":          millis(o.Timeout),
		"maximumAgeMs":       millis(o.MaximumAge),
	}
}

// WatchID identifies an active position watch.
type WatchID string

// timeoutSlack is how long Go waits past a request's own timeout before
// failing it locally. The host normally reports the timeout first.
const timeoutSlack = 250 * time.Millisecond

type positionRequest struct {
	watch      bool
	onPosition func(Position)
	onError    func(*PositionError)
	timer      *time.Timer
}

// GeolocationService requests positions from the host. Results arrive on the
// "geo/geolocation/events" channel keyed by the request or watch id.
type GeolocationService struct {
	channel *MethodChannel
	events  *EventChannel
	pending *xsync.Map[string, *positionRequest]

	subMu sync.Mutex
	sub   *Subscription
}

// Geolocation is the singleton geolocation service.
var Geolocation = &GeolocationService{
	channel: NewMethodChannel("geo/geolocation"),
	events:  NewEventChannel("geo/geolocation/events"),
	pending: xsync.NewMap[string, *positionRequest](),
}

// Supported reports whether the host exposes a geolocation API. Any bridge
// failure counts as unsupported.
func (g *GeolocationService) Supported() bool {
	result, err := g.channel.Invoke("isSupported", nil)
	if err != nil {
		return false
	}
	return parseBool(parseMap(result)["supported"])
}

// GetCurrentPosition requests a single fix. Exactly one of onPosition or
// onError is called, on the dispatch loop, unless the request could not be
// issued, in which case the error is returned and neither callback fires.
func (g *GeolocationService) GetCurrentPosition(opts PositionOptions, onPosition func(Position), onError func(*PositionError)) error {
	id := xid.New().String()
	req := &positionRequest{onPosition: onPosition, onError: onError}
	if opts.Timeout > 0 {
		req.timer = time.AfterFunc(opts.Timeout+timeoutSlack, func() {
			g.complete(id, nil, &PositionError{Code: PositionErrorTimeout, Message: "Timeout expired"})
		})
	}
	if err := g.issue(id, req, "getCurrentPosition", opts); err != nil {
		if req.timer != nil {
			req.timer.Stop()
		}
		return err
	}
	return nil
}

// WatchPosition starts a continuous watch. Callbacks fire until ClearWatch.
func (g *GeolocationService) WatchPosition(opts PositionOptions, onPosition func(Position), onError func(*PositionError)) (WatchID, error) {
	id := xid.New().String()
	req := &positionRequest{watch: true, onPosition: onPosition, onError: onError}
	if err := g.issue(id, req, "watchPosition", opts); err != nil {
		return "", err
	}
	return WatchID(id), nil
}

// ClearWatch stops a watch. Callbacks for id stop immediately even if the
// host has events queued. Clearing an unknown id is a no-op.
func (g *GeolocationService) ClearWatch(id WatchID) {
	if _, ok := g.pending.LoadAndDelete(string(id)); !ok {
		return
	}
	if _, err := g.channel.Invoke("clearWatch", map[string]any{"id": string(id)}); err != nil {
		errors.Report(&errors.GeoError{
			Op:      "platform.ClearWatch",
			Kind:    errors.KindPlatform,
			Channel: g.channel.Name(),
			Err:     err,
		})
	}
}

func (g *GeolocationService) issue(id string, req *positionRequest, method string, opts PositionOptions) error {
	g.ensureListening()
	g.pending.Store(id, req)

	args := opts.wire()
	args["id"] = id
	if _, err := g.channel.Invoke(method, args); err != nil {
		g.pending.Delete(id)
		return err
	}
	return nil
}

func (g *GeolocationService) ensureListening() {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	if g.sub != nil && !g.sub.IsCanceled() {
		return
	}
	g.sub = g.events.Listen(EventHandler{
		OnEvent: g.handleEvent,
		OnError: func(err error) {
			errors.Report(&errors.GeoError{
				Op:      "platform.Geolocation.events",
				Kind:    errors.KindPlatform,
				Channel: g.events.Name(),
				Err:     err,
			})
		},
	})
}

func (g *GeolocationService) handleEvent(data any) {
	event, err := parsePositionEvent(data)
	if err != nil {
		errors.Report(&errors.GeoError{
			Op:      "platform.Geolocation.parse",
			Kind:    errors.KindParsing,
			Channel: g.events.Name(),
			Err:     err,
		})
		return
	}
	g.complete(event.id, event.position, event.err)
}

// complete routes a result to its request. One-shot requests are removed on
// their first result; later results for the same id are dropped.
func (g *GeolocationService) complete(id string, pos *Position, perr *PositionError) {
	req, ok := g.pending.Load(id)
	if !ok {
		return
	}
	if !req.watch {
		if _, ok := g.pending.LoadAndDelete(id); !ok {
			return
		}
		if req.timer != nil {
			req.timer.Stop()
		}
	}

	deliver(func() {
		if req.watch {
			// ClearWatch may have raced with dispatch.
			if _, ok := g.pending.Load(id); !ok {
				return
			}
		}
		defer errors.Recover("platform.Geolocation.callback")
		if perr != nil {
			if req.onError != nil {
				req.onError(perr)
			}
			return
		}
		if req.onPosition != nil {
			req.onPosition(*pos)
		}
	})
}

func (g *GeolocationService) reset() {
	g.pending.Range(func(id string, req *positionRequest) bool {
		if req.timer != nil {
			req.timer.Stop()
		}
		g.pending.Delete(id)
		return true
	})
	g.subMu.Lock()
	g.sub = nil
	g.subMu.Unlock()
}

type positionEvent struct {
	id       string
	position *Position
	err      *PositionError
}

func parsePositionEvent(data any) (positionEvent, error) {
	m := parseMap(data)
	if m == nil {
		return positionEvent{}, &errors.ParseError{Channel: "geo/geolocation/events", DataType: "PositionEvent", Got: data}
	}
	event := positionEvent{id: parseString(m["id"])}
	if event.id == "" {
		return positionEvent{}, &errors.ParseError{Channel: "geo/geolocation/events", DataType: "PositionEvent", Got: data}
	}
	if e := parseMap(m["error"]); e != nil {
		code, _ := toInt64(e["code"])
		event.err = &PositionError{Code: int(code), Message: parseString(e["message"])}
		return event, nil
	}
	pos, err := parsePosition(m["position"])
	if err != nil {
		return positionEvent{}, err
	}
	event.position = &pos
	return event, nil
}

func parsePosition(data any) (Position, error) {
	m := parseMap(data)
	if m == nil {
		return Position{}, fmt.Errorf("expected map, got %T", data)
	}
	lat, ok := toFloat64(m["latitude"])
	if !ok {
		return Position{}, fmt.Errorf("missing latitude")
	}
	lon, ok := toFloat64(m["longitude"])
	if !ok {
		return Position{}, fmt.Errorf("missing longitude")
	}
	alt, _ := toFloat64(m["altitude"])
	acc, _ := toFloat64(m["accuracy"])
	hdg, _ := toFloat64(m["heading"])
	spd, _ := toFloat64(m["speed"])
	return Position{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  alt,
		Accuracy:  acc,
		Heading:   hdg,
		Speed:     spd,
		Timestamp: parseTime(m["timestamp"]),
		IsMocked:  parseBool(m["isMocked"]),
	}, nil
}
