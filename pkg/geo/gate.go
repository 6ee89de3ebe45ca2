package geo

import "sync"

// SharingAllowed decides whether location tracking is allowed.
//
// A logged-out user never shares. A denied permission never shares. In every
// other case, including a permission that is still undecided, the user's
// preference wins; the host prompt appears when the request fires.
func SharingAllowed(loggedIn, preference bool, permission PermissionState) bool {
	if !loggedIn {
		return false
	}
	if permission == PermissionDenied {
		return false
	}
	return preference
}

// Gate re-evaluates SharingAllowed whenever the preferences or the permission
// state change and notifies listeners on transitions.
type Gate struct {
	prefs Preferences
	perms *PermissionMonitor

	mu        sync.Mutex
	last      bool
	seq       uint64
	listeners map[int]func(bool)
	nextID    int
	unsub     []func()
}

// NewGate creates a Gate subscribed to prefs and perms.
func NewGate(prefs Preferences, perms *PermissionMonitor) *Gate {
	g := &Gate{
		prefs:     prefs,
		perms:     perms,
		listeners: make(map[int]func(bool)),
	}
	g.last = g.Allowed()
	g.unsub = []func(){
		prefs.Listen(g.recompute),
		perms.Listen(func(PermissionState) { g.recompute() }),
	}
	return g
}

// Allowed evaluates the gate from the current inputs.
func (g *Gate) Allowed() bool {
	return SharingAllowed(g.prefs.LoggedIn(), g.prefs.SharingEnabled(), g.perms.State())
}

// OnChange calls fn with the new value after every transition.
func (g *Gate) OnChange(fn func(allowed bool)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

// Close unsubscribes from the inputs.
func (g *Gate) Close() {
	g.mu.Lock()
	unsub := g.unsub
	g.unsub = nil
	g.listeners = make(map[int]func(bool))
	g.mu.Unlock()
	for _, fn := range unsub {
		fn()
	}
}

// recompute commits the current value under g.mu so concurrent changes from
// different goroutines cannot store a stale result. A transition that has
// already been superseded is not delivered.
func (g *Gate) recompute() {
	g.mu.Lock()
	allowed := g.Allowed()
	if allowed == g.last {
		g.mu.Unlock()
		return
	}
	g.last = allowed
	g.seq++
	seq := g.seq
	listeners := make([]func(bool), 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		g.mu.Lock()
		current := g.seq == seq
		g.mu.Unlock()
		if !current {
			return
		}
		fn(allowed)
	}
}

// committed returns the last value recompute stored.
func (g *Gate) committed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
