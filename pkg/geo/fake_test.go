package geo

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeGeo is a scriptable Geolocation. Probes (low-accuracy requests) are
// answered from probeAnswer; high-accuracy requests from fix/fixErr. Watches
// are recorded and fired by the test.
type fakeGeo struct {
	mu sync.Mutex

	unsupported bool
	// probeAnswer: granted => fix, denied => code 1, prompt => code 2,
	// "" => no callback at all.
	probeAnswer PermissionState
	// holdProbes parks probe callbacks instead of answering them.
	holdProbes bool
	held       []func(Position)

	fix      *Position
	fixErr   *PositionError
	issueErr error
	panicMsg string

	probes   int
	requests []PositionOptions
	nextID   int
	watches  map[WatchID]fakeWatch
	watching int
	cleared  []WatchID
}

type fakeWatch struct {
	onPosition func(Position)
	onError    func(*PositionError)
}

func newFakeGeo() *fakeGeo {
	return &fakeGeo{
		probeAnswer: PermissionGranted,
		watches:     make(map[WatchID]fakeWatch),
	}
}

func (g *fakeGeo) Supported() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.unsupported
}

func (g *fakeGeo) GetCurrentPosition(opts PositionOptions, onPosition func(Position), onError func(*PositionError)) error {
	g.mu.Lock()
	if g.panicMsg != "" {
		msg := g.panicMsg
		g.mu.Unlock()
		panic(msg)
	}
	if g.issueErr != nil {
		err := g.issueErr
		g.mu.Unlock()
		return err
	}
	if !opts.EnableHighAccuracy {
		g.probes++
		answer := g.probeAnswer
		if g.holdProbes {
			g.held = append(g.held, onPosition)
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()
		switch answer {
		case PermissionGranted:
			onPosition(Position{Latitude: 1, Longitude: 1})
		case PermissionDenied:
			onError(&PositionError{Code: CodePermissionDenied, Message: "denied"})
		case PermissionPrompt:
			onError(&PositionError{Code: CodePositionUnavailable, Message: "unavailable"})
		}
		return nil
	}

	g.requests = append(g.requests, opts)
	fix, fixErr := g.fix, g.fixErr
	g.mu.Unlock()
	switch {
	case fixErr != nil:
		onError(fixErr)
	case fix != nil:
		onPosition(*fix)
	}
	return nil
}

func (g *fakeGeo) WatchPosition(opts PositionOptions, onPosition func(Position), onError func(*PositionError)) (WatchID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.issueErr != nil {
		return "", g.issueErr
	}
	g.nextID++
	id := WatchID(fmt.Sprintf("w%d", g.nextID))
	g.watches[id] = fakeWatch{onPosition: onPosition, onError: onError}
	g.watching++
	return id, nil
}

func (g *fakeGeo) ClearWatch(id WatchID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.watches, id)
	g.cleared = append(g.cleared, id)
}

// watch returns the callbacks of an active watch. Tests hold on to them to
// simulate a callback queued before the watch was stopped.
func (g *fakeGeo) watch(id WatchID) (fakeWatch, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.watches[id]
	return w, ok
}

func (g *fakeGeo) activeWatches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.watches)
}

func (g *fakeGeo) subscriptions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.watching
}

func (g *fakeGeo) probeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.probes
}

func (g *fakeGeo) requestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *fakeGeo) releaseProbes() {
	g.mu.Lock()
	held := g.held
	g.held = nil
	g.mu.Unlock()
	for _, fn := range held {
		fn(Position{})
	}
}

func (g *fakeGeo) set(fn func(g *fakeGeo)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

// fakeQuerier is a scriptable PermissionQuerier.
type fakeQuerier struct {
	mu       sync.Mutex
	state    PermissionState
	err      error
	queries  int
	handlers map[int]func(PermissionState)
	nextID   int
}

func newFakeQuerier(state PermissionState) *fakeQuerier {
	return &fakeQuerier{state: state, handlers: make(map[int]func(PermissionState))}
}

func (q *fakeQuerier) Query(context.Context) (PermissionState, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries++
	return q.state, q.err
}

func (q *fakeQuerier) Listen(handler func(PermissionState)) func() {
	q.mu.Lock()
	id := q.nextID
	q.nextID++
	q.handlers[id] = handler
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.handlers, id)
		q.mu.Unlock()
	}
}

func (q *fakeQuerier) listeners() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handlers)
}

// change simulates an out-of-band permission change.
func (q *fakeQuerier) change(state PermissionState) {
	q.mu.Lock()
	q.state = state
	handlers := make([]func(PermissionState), 0, len(q.handlers))
	for _, h := range q.handlers {
		handlers = append(handlers, h)
	}
	q.mu.Unlock()
	for _, h := range handlers {
		h(state)
	}
}

// recordingStore counts writes made through the Store interface.
type recordingStore struct {
	mu     sync.Mutex
	inner  *MemoryStore
	writes int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{inner: NewMemoryStore()}
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *recordingStore) bump() {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
}

func (s *recordingStore) SetLocation(c *Coordinates, st Status, l bool) {
	s.bump()
	s.inner.SetLocation(c, st, l)
}

func (s *recordingStore) SetLocationError(e *PositionError, st Status, l bool) {
	s.bump()
	s.inner.SetLocationError(e, st, l)
}

func (s *recordingStore) SetLocationLoading(l bool) {
	s.bump()
	s.inner.SetLocationLoading(l)
}

func (s *recordingStore) SetLocationStatus(st Status) {
	s.bump()
	s.inner.SetLocationStatus(st)
}

func (s *recordingStore) ClearLocationState() {
	s.bump()
	s.inner.ClearLocationState()
}

func testProfiles() *Profiles {
	p := DefaultProfiles()
	p.Probe.Timeout = 20 * time.Millisecond
	p.ProbeGrace = 10 * time.Millisecond
	return &p
}

func newTestTracker(g Geolocation, q PermissionQuerier, prefs Preferences) *Tracker {
	return New(Options{
		Geolocation: g,
		Permissions: q,
		Preferences: prefs,
		Profiles:    testProfiles(),
	})
}
