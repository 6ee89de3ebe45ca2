package geo

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// WatchState is the lifecycle state of a WatchController.
type WatchState int

const (
	WatchIdle WatchState = iota
	WatchStarting
	WatchActive
	WatchStopped
)

func (s WatchState) String() string {
	switch s {
	case WatchIdle:
		return "idle"
	case WatchStarting:
		return "starting"
	case WatchActive:
		return "active"
	case WatchStopped:
		return "stopped"
	default:
		return fmt.Sprintf("WatchState(%d)", int(s))
	}
}

// WatchController keeps at most one continuous watch running, in step with
// the sharing gate. Starting is always caller-initiated; the gate turning
// false stops the watch on its own.
type WatchController struct {
	geo   Geolocation
	perms *PermissionMonitor
	gate  *Gate
	rep   *reporter
	opts  PositionOptions
	log   zerolog.Logger

	// mu guards the fields below and is held across store writes from
	// callbacks, so a Stop can never interleave with a stale write.
	mu     sync.Mutex
	state  WatchState
	handle WatchID
	// gen is bumped on every start and stop. Callbacks carry the gen they
	// were issued under and are dropped once it moves on.
	gen uint64
	// loading is set while the store shows a watch waiting for its first
	// terminal callback.
	loading bool
	// closed is set by Close; a closed controller never starts again.
	closed    bool
	unsubGate func()
}

func newWatchController(geo Geolocation, perms *PermissionMonitor, gate *Gate, rep *reporter, opts PositionOptions, log zerolog.Logger) *WatchController {
	c := &WatchController{
		geo:   geo,
		perms: perms,
		gate:  gate,
		rep:   rep,
		opts:  opts,
		log:   log.With().Str("component", "watch").Logger(),
	}
	c.unsubGate = gate.OnChange(func(allowed bool) {
		if !allowed {
			c.log.Debug().Msg("Sharing no longer allowed, stopping watch")
			c.Stop()
		}
	})
	return c
}

// State returns the current lifecycle state.
func (c *WatchController) State() WatchState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handle returns the active watch id, or "" when no watch is active.
func (c *WatchController) Handle() WatchID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Start validates the preconditions and subscribes. It returns once the
// subscription is issued; fixes keep arriving asynchronously. Calling Start
// while a watch is starting or active only re-validates.
func (c *WatchController) Start(ctx context.Context) {
	if err := guard("geo.WatchController.Start", func() error {
		c.start(ctx)
		return nil
	}); err != nil {
		c.resetStarting()
		c.rep.unexpected("geo.WatchController.Start", err)
	}
}

func (c *WatchController) start(ctx context.Context) {
	if c.isClosed() {
		c.log.Debug().Msg("Watch controller closed, ignoring start")
		return
	}
	if !c.geo.Supported() {
		c.log.Debug().Msg("Geolocation not supported")
		c.rep.refuse(ClassNotSupported, "")
		return
	}

	permission := c.perms.Check(ctx)

	if !c.gate.Allowed() {
		reason := ClassDisabledByUser
		switch permission {
		case PermissionDenied:
			reason = ClassPermissionDenied
		case PermissionPrompt:
			reason = ClassPermissionRequired
		}
		c.log.Debug().Stringer("reason", reason).Msg("Watch not allowed")
		c.rep.refuse(reason, "")
		c.Stop()
		return
	}

	c.mu.Lock()
	if c.closed || c.state == WatchStarting || c.state == WatchActive {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.state = WatchStarting
	c.loading = true
	c.rep.store.SetLocationLoading(true)
	c.mu.Unlock()

	id, err := c.geo.WatchPosition(c.opts,
		func(pos Position) { c.onPosition(gen, pos) },
		func(perr *PositionError) { c.onError(gen, perr) })

	c.mu.Lock()
	if err != nil {
		current := c.gen == gen
		if current {
			c.state = WatchIdle
			c.loading = false
		}
		c.mu.Unlock()
		if current {
			c.rep.unexpected("geo.WatchController.Start", err)
		}
		return
	}
	if c.gen != gen {
		// Stopped while the subscription was being created.
		c.mu.Unlock()
		c.geo.ClearWatch(id)
		return
	}
	c.handle = id
	c.state = WatchActive
	c.mu.Unlock()
	c.log.Debug().Str("watch_id", string(id)).Msg("Watch started")
}

// Stop cancels the watch. It is a no-op unless a watch is starting or active.
func (c *WatchController) Stop() {
	c.mu.Lock()
	id, stopped := c.stopLocked()
	c.mu.Unlock()
	if !stopped {
		return
	}
	if id != "" {
		c.geo.ClearWatch(id)
	}
	c.log.Debug().Str("watch_id", string(id)).Msg("Watch stopped")
}

// Close stops the watch and detaches from the gate. It must be called on
// teardown so the host subscription is not leaked.
func (c *WatchController) Close() {
	c.mu.Lock()
	c.closed = true
	unsub := c.unsubGate
	c.unsubGate = nil
	id, stopped := c.stopLocked()
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if stopped && id != "" {
		c.geo.ClearWatch(id)
		c.log.Debug().Str("watch_id", string(id)).Msg("Watch stopped")
	}
}

func (c *WatchController) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *WatchController) stopLocked() (WatchID, bool) {
	if c.state != WatchStarting && c.state != WatchActive {
		return "", false
	}
	if c.loading {
		c.loading = false
		c.rep.store.SetLocationLoading(false)
	}
	c.gen++
	id := c.handle
	c.handle = ""
	c.state = WatchStopped
	return id, true
}

func (c *WatchController) resetStarting() {
	c.mu.Lock()
	if c.state == WatchStarting {
		c.gen++
		c.state = WatchIdle
		c.loading = false
	}
	c.mu.Unlock()
}

func (c *WatchController) onPosition(gen uint64, pos Position) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.log.Trace().Msg("Dropping fix from a stopped watch")
		return
	}
	c.loading = false
	c.rep.success(pos)
	c.mu.Unlock()

	c.rep.settle(0, true)
}

func (c *WatchController) onError(gen uint64, perr *PositionError) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.log.Trace().Msg("Dropping error from a stopped watch")
		return
	}
	c.loading = false
	class := c.rep.failure(perr)
	var (
		id      WatchID
		stopped bool
	)
	if class == ClassPermissionDenied {
		id, stopped = c.stopLocked()
	}
	c.mu.Unlock()

	if stopped {
		if id != "" {
			c.geo.ClearWatch(id)
		}
		c.log.Debug().Str("watch_id", string(id)).Msg("Watch stopped after permission denial")
	}
	c.rep.settle(class, false)
}
