package geo

import "sync"

// MemoryStore is an in-process Store. Subscribers receive the latest
// snapshot over a one-slot channel; intermediate snapshots may be skipped.
type MemoryStore struct {
	mu     sync.Mutex
	result LocationResult
	subs   map[chan LocationResult]struct{}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[chan LocationResult]struct{})}
}

// Snapshot returns a copy of the current result.
func (s *MemoryStore) Snapshot() LocationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneResult(s.result)
}

// Subscribe returns a channel that always holds the most recent snapshot
// written after the call, and a function that closes it.
func (s *MemoryStore) Subscribe() (<-chan LocationResult, func()) {
	ch := make(chan LocationResult, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// SetLocation publishes a fix and clears any error.
func (s *MemoryStore) SetLocation(coords *Coordinates, status Status, isLoading bool) {
	s.update(func(r *LocationResult) {
		r.Coordinates = cloneCoords(coords)
		r.Error = nil
		r.Status = status
		r.IsLoading = isLoading
	})
}

// SetLocationError publishes a failure and clears the coordinates.
func (s *MemoryStore) SetLocationError(err *PositionError, status Status, isLoading bool) {
	s.update(func(r *LocationResult) {
		r.Coordinates = nil
		r.Error = cloneError(err)
		r.Status = status
		r.IsLoading = isLoading
	})
}

// SetLocationLoading marks a request as in flight or finished. Starting a
// request clears the previous error and sets StatusLoading; the last known
// coordinates are kept.
func (s *MemoryStore) SetLocationLoading(isLoading bool) {
	s.update(func(r *LocationResult) {
		r.IsLoading = isLoading
		if isLoading {
			r.Error = nil
			r.Status = StatusLoading
		} else if r.Status == StatusLoading {
			r.Status = StatusNone
		}
	})
}

// SetLocationStatus replaces only the status. Any loading flag is cleared
// because every status set this way is terminal.
func (s *MemoryStore) SetLocationStatus(status Status) {
	s.update(func(r *LocationResult) {
		r.Status = status
		r.IsLoading = false
	})
}

// ClearLocationState resets the store to its zero value.
func (s *MemoryStore) ClearLocationState() {
	s.update(func(r *LocationResult) {
		*r = LocationResult{}
	})
}

func (s *MemoryStore) update(fn func(*LocationResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.result)
	snapshot := cloneResult(s.result)
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

func cloneResult(r LocationResult) LocationResult {
	r.Coordinates = cloneCoords(r.Coordinates)
	r.Error = cloneError(r.Error)
	return r
}

func cloneCoords(c *Coordinates) *Coordinates {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func cloneError(e *PositionError) *PositionError {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

// teeStore writes to the tracker's own MemoryStore and to an external store.
type teeStore struct {
	local    *MemoryStore
	external Store
}

func (t teeStore) SetLocation(coords *Coordinates, status Status, isLoading bool) {
	t.local.SetLocation(coords, status, isLoading)
	if t.external != nil {
		t.external.SetLocation(coords, status, isLoading)
	}
}

func (t teeStore) SetLocationError(err *PositionError, status Status, isLoading bool) {
	t.local.SetLocationError(err, status, isLoading)
	if t.external != nil {
		t.external.SetLocationError(err, status, isLoading)
	}
}

func (t teeStore) SetLocationLoading(isLoading bool) {
	t.local.SetLocationLoading(isLoading)
	if t.external != nil {
		t.external.SetLocationLoading(isLoading)
	}
}

func (t teeStore) SetLocationStatus(status Status) {
	t.local.SetLocationStatus(status)
	if t.external != nil {
		t.external.SetLocationStatus(status)
	}
}

func (t teeStore) ClearLocationState() {
	t.local.ClearLocationState()
	if t.external != nil {
		t.external.ClearLocationState()
	}
}
