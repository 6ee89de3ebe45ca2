package webview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/sjson"

	"github.com/go-drift/geotrack/pkg/geo"
	"github.com/go-drift/geotrack/pkg/platform"
)

// Page bindings installed by Controls.
const (
	ReadyBinding   = "geotrackReady"
	ActionBinding  = "geotrackAction"
	SharingBinding = "geotrackSharing"
	// RenderFunction is the page function that receives tracker snapshots.
	RenderFunction = "render"
)

// DefaultActionTimeout bounds each page-initiated tracker operation.
const DefaultActionTimeout = 30 * time.Second

// ControlsOptions configures Controls.
type ControlsOptions struct {
	// MinVersion is checked against the page bridge once it is ready.
	MinVersion string
	// ActionTimeout bounds each action. Zero means DefaultActionTimeout.
	ActionTimeout time.Duration
	Logger        *zerolog.Logger
}

// Controls connects page buttons to a Tracker and renders snapshots back
// into the page.
//
// Bound functions run on the UI thread, and any tracker call can end in
// InvokeMethod, whose reply is delivered on that same thread. Every handler
// therefore hands its work to a goroutine and returns at once.
type Controls struct {
	host       Host
	tracker    *geo.Tracker
	prefs      *geo.MemoryPreferences
	log        zerolog.Logger
	minVersion string
	timeout    time.Duration

	ready  sync.Once
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	detach []func()
}

// NewControls creates Controls for tracker. prefs receives the page's sharing
// toggle.
func NewControls(host Host, tracker *geo.Tracker, prefs *geo.MemoryPreferences, opts ControlsOptions) *Controls {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "controls").Logger()
	}
	c := &Controls{
		host:       host,
		tracker:    tracker,
		prefs:      prefs,
		log:        log,
		minVersion: opts.MinVersion,
		timeout:    opts.ActionTimeout,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultActionTimeout
	}
	return c
}

// Bind installs the page bindings. Call it before the page is navigated.
func (c *Controls) Bind() error {
	bindings := map[string]interface{}{
		ReadyBinding: func() {
			c.ready.Do(func() { c.spawn(c.start) })
		},
		ActionBinding: func(action string) {
			c.spawn(func() { c.do(action) })
		},
		SharingBinding: func(enabled bool) {
			c.spawn(func() { c.prefs.SetSharingEnabled(enabled) })
		},
	}
	for _, name := range []string{ReadyBinding, ActionBinding, SharingBinding} {
		if err := c.host.Bind(name, bindings[name]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", name, err)
		}
	}
	return nil
}

// Close detaches from the tracker and waits for running actions.
func (c *Controls) Close() {
	c.mu.Lock()
	c.closed = true
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()
	for _, fn := range detach {
		fn()
	}
	c.wg.Wait()
}

func (c *Controls) spawn(fn func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Controls) start() {
	if err := platform.Bridge.RequireVersion(c.minVersion); err != nil {
		c.log.Error().Err(err).Msg("Page bridge rejected")
		return
	}

	updates, unsubscribe := c.tracker.Subscribe()
	offPermission := c.tracker.OnPermissionChange(func(geo.PermissionState) { c.push(c.tracker.Result()) })
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		offPermission()
		return
	}
	c.detach = append(c.detach, unsubscribe, offPermission)
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		for res := range updates {
			c.push(res)
		}
	}()
	c.do("start")
}

func (c *Controls) do(action string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	switch action {
	case "start":
		c.tracker.StartWatching(ctx)
	case "stop":
		c.tracker.StopWatching()
	case "locate":
		c.tracker.GetCurrentLocation(ctx)
	case "reset":
		c.tracker.ResetGeolocationState(ctx)
	default:
		c.log.Warn().Str("action", action).Msg("Unknown page action")
		return
	}
	c.push(c.tracker.Result())
}

// push renders one snapshot in the page.
func (c *Controls) push(res geo.LocationResult) {
	state := `{}`
	state, _ = sjson.Set(state, "status", string(res.Status))
	state, _ = sjson.Set(state, "permission", string(c.tracker.PermissionState()))
	state, _ = sjson.Set(state, "watching", c.tracker.IsWatching())
	if res.Coordinates != nil {
		state, _ = sjson.Set(state, "coords.lat", res.Coordinates.Latitude)
		state, _ = sjson.Set(state, "coords.lon", res.Coordinates.Longitude)
	}
	if res.Error != nil {
		state, _ = sjson.Set(state, "error", res.Error.Message)
	}
	c.host.Dispatch(func() { c.host.Eval(RenderFunction + "(" + state + ")") })
}
