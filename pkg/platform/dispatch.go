package platform

import "sync"

var (
	dispatchMu   sync.RWMutex
	dispatchFunc func(callback func())
)

// RegisterDispatch sets the function used to schedule geolocation callbacks
// on the host's event loop. Hosts with a single-threaded model register it
// once at startup so position and permission callbacks never run concurrently.
func RegisterDispatch(fn func(callback func())) {
	dispatchMu.Lock()
	dispatchFunc = fn
	dispatchMu.Unlock()
}

// Dispatch schedules a callback on the host event loop.
// Returns true if the callback was scheduled, false if no dispatch function
// is registered or the callback is nil.
func Dispatch(callback func()) bool {
	dispatchMu.RLock()
	fn := dispatchFunc
	dispatchMu.RUnlock()
	if fn == nil || callback == nil {
		return false
	}
	fn(callback)
	return true
}

// deliver runs callback through Dispatch, or inline when no dispatch function
// is registered.
func deliver(callback func()) {
	if !Dispatch(callback) {
		callback()
	}
}
