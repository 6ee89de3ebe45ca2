// Package sim provides a scripted platform.NativeBridge. It plays a fixed
// route of fixes, holds a permission state that can be flipped at runtime,
// and can inject position errors. The geotrack CLI runs on it, and tests use
// it to drive the platform services end to end.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-drift/geotrack/pkg/platform"
)

// Version is the bridge protocol version the simulator reports.
const Version = "v1.0.0"

// Channel names served by the simulator.
const (
	geolocationChannel = "geo/geolocation"
	geolocationEvents  = "geo/geolocation/events"
	permissionsChannel = "geo/permissions"
	permissionChanges  = "geo/permissions/changes"
	bridgeChannel      = "geo/bridge"
)

// Fix is one point on a simulated route.
type Fix struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Options configures a Bridge.
type Options struct {
	// Unsupported makes the host report no geolocation API.
	Unsupported bool
	// NoPermissionsAPI makes permission queries fail as unsupported.
	NoPermissionsAPI bool
	// Permission is the initial permission state. Empty means prompt.
	Permission platform.PermissionState
	// PromptAnswer is applied the first time a request runs while the
	// permission is prompt. Empty means granted.
	PromptAnswer platform.PermissionState
	// Route is played in order and wraps around. Empty means a single fix at
	// the origin.
	Route []Fix
	// Latency delays every response.
	Latency time.Duration
	// Interval is the time between watch fixes. Zero means one second.
	Interval time.Duration
	// Logger receives debug logs. Nil disables logging.
	Logger *zerolog.Logger
}

// Bridge is a simulated host.
type Bridge struct {
	log      zerolog.Logger
	latency  time.Duration
	interval time.Duration

	mu           sync.Mutex
	supported    bool
	permAPI      bool
	permission   platform.PermissionState
	promptAnswer platform.PermissionState
	route        []Fix
	next         int
	failures     []*platform.PositionError
	watches      map[string]chan struct{}
	streams      map[string]bool
	closed       bool

	done chan struct{}
	wg   sync.WaitGroup
}

var _ platform.NativeBridge = (*Bridge)(nil)

// New creates a simulated host.
func New(opts Options) *Bridge {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("bridge", "sim").Logger()
	}
	b := &Bridge{
		log:          log,
		latency:      opts.Latency,
		interval:     opts.Interval,
		supported:    !opts.Unsupported,
		permAPI:      !opts.NoPermissionsAPI,
		permission:   opts.Permission,
		promptAnswer: opts.PromptAnswer,
		route:        append([]Fix(nil), opts.Route...),
		watches:      make(map[string]chan struct{}),
		streams:      make(map[string]bool),
		done:         make(chan struct{}),
	}
	if b.permission == "" {
		b.permission = platform.PermissionPrompt
	}
	if b.promptAnswer == "" {
		b.promptAnswer = platform.PermissionGranted
	}
	if b.interval <= 0 {
		b.interval = time.Second
	}
	if len(b.route) == 0 {
		b.route = []Fix{{}}
	}
	return b
}

// InvokeMethod implements platform.NativeBridge.
func (b *Bridge) InvokeMethod(channel, method string, args []byte) ([]byte, error) {
	decoded, err := platform.DefaultCodec.Decode(args)
	if err != nil {
		return nil, err
	}
	params, _ := decoded.(map[string]any)

	result, err := b.handle(channel, method, params)
	if err != nil {
		return nil, err
	}
	return platform.DefaultCodec.Encode(result)
}

// StartEventStream implements platform.NativeBridge.
func (b *Bridge) StartEventStream(channel string) error {
	b.mu.Lock()
	b.streams[channel] = true
	b.mu.Unlock()
	return nil
}

// StopEventStream implements platform.NativeBridge.
func (b *Bridge) StopEventStream(channel string) error {
	b.mu.Lock()
	delete(b.streams, channel)
	b.mu.Unlock()
	return nil
}

// Streaming reports whether Go has asked for events on channel.
func (b *Bridge) Streaming(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams[channel]
}

// Permission returns the simulated permission state.
func (b *Bridge) Permission() platform.PermissionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.permission
}

// SetPermission changes the permission state and, when it changed, emits a
// change event the way a browser does when the user edits site settings.
func (b *Bridge) SetPermission(state platform.PermissionState) {
	b.mu.Lock()
	changed := b.permission != state
	b.permission = state
	b.mu.Unlock()
	if changed {
		b.log.Debug().Str("state", string(state)).Msg("Permission changed")
		b.emit(permissionChanges, map[string]any{"name": "geolocation", "state": string(state)})
	}
}

// FailNext queues an error for the next position result, one-shot or watch.
func (b *Bridge) FailNext(code int, message string) {
	b.mu.Lock()
	b.failures = append(b.failures, &platform.PositionError{Code: code, Message: message})
	b.mu.Unlock()
}

// ActiveWatches returns the number of running watches.
func (b *Bridge) ActiveWatches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watches)
}

// Close stops every watch and waits for pending responses to drain.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	for id, stop := range b.watches {
		close(stop)
		delete(b.watches, id)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) handle(channel, method string, params map[string]any) (any, error) {
	switch channel + "." + method {
	case bridgeChannel + ".getInfo":
		return map[string]any{
			"version":        Version,
			"host":           "sim",
			"permissionsApi": b.permAPI,
		}, nil

	case geolocationChannel + ".isSupported":
		b.mu.Lock()
		defer b.mu.Unlock()
		return map[string]any{"supported": b.supported}, nil

	case permissionsChannel + ".query":
		if !b.permAPI {
			return nil, platform.NewChannelError("unsupported", "permissions API not available")
		}
		return map[string]any{"state": string(b.Permission())}, nil

	case geolocationChannel + ".getCurrentPosition":
		id, err := b.request(params)
		if err != nil {
			return nil, err
		}
		timeout := millis(params["timeoutMs"])
		b.spawn(func() {
			if timeout > 0 && b.latency >= timeout {
				if sleep(timeout, b.done, nil) {
					b.emitError(id, platform.PositionErrorTimeout, "Timeout expired")
				}
				return
			}
			if sleep(b.latency, b.done, nil) {
				b.resolve(id)
			}
		})
		return nil, nil

	case geolocationChannel + ".watchPosition":
		id, err := b.request(params)
		if err != nil {
			return nil, err
		}
		stop := make(chan struct{})
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, platform.ErrClosed
		}
		b.watches[id] = stop
		b.wg.Add(1)
		b.mu.Unlock()
		b.log.Debug().Str("id", id).Msg("Watch started")
		go b.runWatch(id, stop)
		return nil, nil

	case geolocationChannel + ".clearWatch":
		id, _ := params["id"].(string)
		b.mu.Lock()
		if stop, ok := b.watches[id]; ok {
			close(stop)
			delete(b.watches, id)
		}
		b.mu.Unlock()
		b.log.Debug().Str("id", id).Msg("Watch cleared")
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", platform.ErrMethodNotFound, channel, method)
}

func (b *Bridge) request(params map[string]any) (string, error) {
	b.mu.Lock()
	supported := b.supported
	b.mu.Unlock()
	if !supported {
		return "", platform.NewChannelError("unsupported", "geolocation not available")
	}
	id, _ := params["id"].(string)
	if id == "" {
		return "", platform.ErrInvalidArguments
	}
	return id, nil
}

func (b *Bridge) runWatch(id string, stop <-chan struct{}) {
	defer b.wg.Done()
	if !sleep(b.latency, stop, b.done) {
		return
	}
	b.resolve(id)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.resolve(id)
		}
	}
}

// spawn runs fn on a goroutine that Close waits for.
func (b *Bridge) spawn(fn func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// resolve answers request id with the next fix, the next queued failure, or
// a permission error.
func (b *Bridge) resolve(id string) {
	b.mu.Lock()
	if b.permission == platform.PermissionPrompt {
		b.permission = b.promptAnswer
		answered := b.permission
		b.mu.Unlock()
		b.log.Debug().Str("answer", string(answered)).Msg("Prompt answered")
		b.emit(permissionChanges, map[string]any{"name": "geolocation", "state": string(answered)})
		b.mu.Lock()
	}
	if b.permission == platform.PermissionDenied {
		b.mu.Unlock()
		b.emitError(id, platform.PositionErrorPermissionDenied, "User denied Geolocation")
		return
	}
	if len(b.failures) > 0 {
		perr := b.failures[0]
		b.failures = b.failures[1:]
		b.mu.Unlock()
		b.emitError(id, perr.Code, perr.Message)
		return
	}
	fix := b.route[b.next%len(b.route)]
	b.next++
	b.mu.Unlock()

	b.emit(geolocationEvents, map[string]any{
		"id": id,
		"position": map[string]any{
			"latitude":  fix.Latitude,
			"longitude": fix.Longitude,
			"accuracy":  fix.Accuracy,
			"timestamp": time.Now().UnixMilli(),
			"isMocked":  true,
		},
	})
}

func (b *Bridge) emitError(id string, code int, message string) {
	b.emit(geolocationEvents, map[string]any{
		"id":    id,
		"error": map[string]any{"code": code, "message": message},
	})
}

func (b *Bridge) emit(channel string, payload map[string]any) {
	data, err := platform.DefaultCodec.Encode(payload)
	if err != nil {
		b.log.Error().Err(err).Str("channel", channel).Msg("Failed to encode event")
		return
	}
	if err := platform.HandleEvent(channel, data); err != nil {
		b.log.Warn().Err(err).Str("channel", channel).Msg("Event not delivered")
	}
}

// sleep waits for d or until either channel closes. It reports whether d
// elapsed. A nil channel never fires.
func sleep(d time.Duration, a, b <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-a:
			return false
		case <-b:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a:
		return false
	case <-b:
		return false
	}
}

func millis(v any) time.Duration {
	switch n := v.(type) {
	case float64:
		return time.Duration(n) * time.Millisecond
	case int64:
		return time.Duration(n) * time.Millisecond
	case uint64:
		return time.Duration(n) * time.Millisecond
	case int:
		return time.Duration(n) * time.Millisecond
	}
	return 0
}
