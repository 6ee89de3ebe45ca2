package geo

import "sync"

// MemoryPreferences is an in-process Preferences.
type MemoryPreferences struct {
	mu        sync.Mutex
	loggedIn  bool
	sharing   bool
	listeners map[int]func()
	nextID    int
}

// NewMemoryPreferences returns preferences with the given initial values.
func NewMemoryPreferences(loggedIn, sharing bool) *MemoryPreferences {
	return &MemoryPreferences{
		loggedIn:  loggedIn,
		sharing:   sharing,
		listeners: make(map[int]func()),
	}
}

func (p *MemoryPreferences) LoggedIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loggedIn
}

func (p *MemoryPreferences) SharingEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sharing
}

// SetLoggedIn updates the logged-in flag and notifies listeners if it changed.
func (p *MemoryPreferences) SetLoggedIn(v bool) {
	p.set(&p.loggedIn, v)
}

// SetSharingEnabled updates the sharing preference and notifies listeners if it changed.
func (p *MemoryPreferences) SetSharingEnabled(v bool) {
	p.set(&p.sharing, v)
}

func (p *MemoryPreferences) Listen(fn func()) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *MemoryPreferences) set(field *bool, v bool) {
	p.mu.Lock()
	if *field == v {
		p.mu.Unlock()
		return
	}
	*field = v
	listeners := make([]func(), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
