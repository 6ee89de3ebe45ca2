package geo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// PermissionMonitor keeps the best known PermissionState.
//
// With a PermissionQuerier it asks the host directly and follows its change
// events. Without one, or when the query fails, it infers the state from a
// probe: a cheap low-accuracy request with a short timeout.
type PermissionMonitor struct {
	geo     Geolocation
	querier PermissionQuerier
	probe   PositionOptions
	grace   time.Duration
	log     zerolog.Logger

	flight singleflight.Group

	mu        sync.Mutex
	state     PermissionState
	unlisten  func()
	listeners map[int]func(PermissionState)
	nextID    int
}

// NewPermissionMonitor creates a monitor. querier may be nil.
func NewPermissionMonitor(geo Geolocation, querier PermissionQuerier, profiles Profiles, log zerolog.Logger) *PermissionMonitor {
	if geo == nil {
		geo = unsupported{}
	}
	return &PermissionMonitor{
		geo:       geo,
		querier:   querier,
		probe:     profiles.Probe,
		grace:     profiles.ProbeGrace,
		log:       log.With().Str("component", "permission_monitor").Logger(),
		state:     PermissionUnknown,
		listeners: make(map[int]func(PermissionState)),
	}
}

// State returns the cached state without touching the host.
func (m *PermissionMonitor) State() PermissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Set replaces the cached state and notifies listeners when it changed.
func (m *PermissionMonitor) Set(state PermissionState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = state
	listeners := make([]func(PermissionState), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	m.log.Debug().Str("from", string(prev)).Str("to", string(state)).Msg("Permission state changed")
	for _, fn := range listeners {
		fn(state)
	}
}

// Listen calls fn after every state change.
func (m *PermissionMonitor) Listen(fn func(PermissionState)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Check returns the current permission state, asking the host permission API
// when available and probing otherwise. The first successful query also
// subscribes to the host's change events.
func (m *PermissionMonitor) Check(ctx context.Context) PermissionState {
	if m.querier != nil {
		var state PermissionState
		err := guard("geo.PermissionMonitor.Check", func() error {
			var qerr error
			state, qerr = m.querier.Query(ctx)
			return qerr
		})
		if err == nil {
			m.Set(state)
			m.follow()
			return state
		}
		m.log.Debug().Err(err).Msg("Permission query failed, falling back to probe")
	}
	return m.Reset(ctx)
}

// Reset ignores any cached or queried state and probes the host. Concurrent
// resets share one probe. If ctx ends first the cached state is returned and
// the probe still updates the cache when it finishes.
func (m *PermissionMonitor) Reset(ctx context.Context) PermissionState {
	ch := m.flight.DoChan("probe", func() (any, error) {
		state := m.runProbe()
		m.Set(state)
		return state, nil
	})
	select {
	case res := <-ch:
		return res.Val.(PermissionState)
	case <-ctx.Done():
		return m.State()
	}
}

// Close drops the host change subscription and all listeners.
func (m *PermissionMonitor) Close() {
	m.mu.Lock()
	unlisten := m.unlisten
	m.unlisten = nil
	m.listeners = make(map[int]func(PermissionState))
	m.mu.Unlock()
	if unlisten != nil {
		unlisten()
	}
}

func (m *PermissionMonitor) follow() {
	m.mu.Lock()
	if m.unlisten != nil {
		m.mu.Unlock()
		return
	}
	// Placeholder so a concurrent Check does not subscribe twice.
	m.unlisten = func() {}
	m.mu.Unlock()

	unlisten := m.querier.Listen(func(state PermissionState) {
		m.log.Debug().Str("state", string(state)).Msg("Host reported permission change")
		m.Set(state)
	})

	m.mu.Lock()
	m.unlisten = unlisten
	m.mu.Unlock()
}

// runProbe issues one low-accuracy request and maps its outcome:
// fix => granted, code 1 => denied, anything else or silence => prompt,
// a request that cannot be issued => unknown.
func (m *PermissionMonitor) runProbe() PermissionState {
	result := make(chan PermissionState, 1)
	send := func(s PermissionState) {
		select {
		case result <- s:
		default:
		}
	}

	err := guard("geo.PermissionMonitor.probe", func() error {
		return m.geo.GetCurrentPosition(m.probe,
			func(Position) { send(PermissionGranted) },
			func(perr *PositionError) {
				if perr != nil && perr.Code == CodePermissionDenied {
					send(PermissionDenied)
					return
				}
				send(PermissionPrompt)
			})
	})
	if err != nil {
		m.log.Debug().Err(err).Msg("Permission probe could not be issued")
		return PermissionUnknown
	}

	timer := time.NewTimer(m.probe.Timeout + m.grace)
	defer timer.Stop()
	select {
	case state := <-result:
		return state
	case <-timer.C:
		return PermissionPrompt
	}
}
