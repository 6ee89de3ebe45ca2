package geo

import (
	"context"

	"github.com/rs/zerolog"
)

// Options configures a Tracker.
type Options struct {
	// Geolocation produces positions. Nil means the host has no geolocation
	// API; every request then ends in StatusNotSupported.
	Geolocation Geolocation
	// Permissions is the host permission API. Nil means permission is
	// always inferred by probing.
	Permissions PermissionQuerier
	// Preferences supplies the logged-in flag and the sharing preference.
	// Nil is treated as a logged-out user.
	Preferences Preferences
	// Store, if set, receives every write in addition to the Tracker's own
	// MemoryStore.
	Store Store
	// Profiles overrides the request profiles. The zero value uses
	// DefaultProfiles.
	Profiles *Profiles
	// Logger receives debug logs. Nil disables logging.
	Logger *zerolog.Logger
}

// Tracker is the public face of the package: one permission monitor, one
// gate, one watch controller, and one one-shot locator sharing a store.
type Tracker struct {
	log     zerolog.Logger
	prefs   Preferences
	store   *MemoryStore
	perms   *PermissionMonitor
	gate    *Gate
	watch   *WatchController
	oneShot *OneShotLocator
}

// New builds a Tracker. It does not touch the host until a method is called.
func New(opts Options) *Tracker {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("module", "geo").Logger()
	}
	profiles := DefaultProfiles()
	if opts.Profiles != nil {
		profiles = *opts.Profiles
	}
	geo := opts.Geolocation
	if geo == nil {
		geo = unsupported{}
	}
	prefs := opts.Preferences
	if prefs == nil {
		prefs = NewMemoryPreferences(false, false)
	}

	local := NewMemoryStore()
	perms := NewPermissionMonitor(geo, opts.Permissions, profiles, log)
	gate := NewGate(prefs, perms)
	rep := &reporter{
		store: teeStore{local: local, external: opts.Store},
		perms: perms,
		log:   log,
	}

	return &Tracker{
		log:     log,
		prefs:   prefs,
		store:   local,
		perms:   perms,
		gate:    gate,
		watch:   newWatchController(geo, perms, gate, rep, profiles.Watch, log),
		oneShot: newOneShotLocator(geo, perms, prefs, rep, profiles.OneShot, log),
	}
}

// StartWatching starts the continuous watch if the preconditions hold.
func (t *Tracker) StartWatching(ctx context.Context) {
	t.watch.Start(ctx)
}

// StopWatching stops the continuous watch. Safe to call at any time.
func (t *Tracker) StopWatching() {
	t.watch.Stop()
}

// GetCurrentLocation fetches one fresh fix, or returns nil.
func (t *Tracker) GetCurrentLocation(ctx context.Context) *Coordinates {
	return t.oneShot.Locate(ctx)
}

// ResetGeolocationState stops any watch, clears the store, and re-probes
// permission.
func (t *Tracker) ResetGeolocationState(ctx context.Context) {
	t.watch.Stop()
	t.watch.rep.store.ClearLocationState()
	state := t.perms.Reset(ctx)
	t.log.Debug().Str("permission", string(state)).Msg("Geolocation state reset")
}

// CheckBrowserPermission returns the permission state, preferring the host
// permission API and probing when it is absent.
func (t *Tracker) CheckBrowserPermission(ctx context.Context) PermissionState {
	return t.perms.Check(ctx)
}

// ResetBrowserPermissionState re-probes permission and returns the result.
func (t *Tracker) ResetBrowserPermissionState(ctx context.Context) PermissionState {
	return t.perms.Reset(ctx)
}

// Close tears down the watch and all subscriptions. In-flight one-shot
// requests are left to finish.
func (t *Tracker) Close() {
	t.watch.Close()
	t.gate.Close()
	t.perms.Close()
}

// Coordinates returns the last published coordinates, or nil.
func (t *Tracker) Coordinates() *Coordinates {
	return t.store.Snapshot().Coordinates
}

// Error returns the last published error, or nil.
func (t *Tracker) Error() *PositionError {
	return t.store.Snapshot().Error
}

// IsLoading reports whether a request is in flight.
func (t *Tracker) IsLoading() bool {
	return t.store.Snapshot().IsLoading
}

// Status returns the last published status.
func (t *Tracker) Status() Status {
	return t.store.Snapshot().Status
}

// Result returns the whole last published snapshot.
func (t *Tracker) Result() LocationResult {
	return t.store.Snapshot()
}

// IsWatching reports whether a watch subscription is active.
func (t *Tracker) IsWatching() bool {
	return t.watch.State() == WatchActive
}

// SharingAllowed reports the current gate value.
func (t *Tracker) SharingAllowed() bool {
	return t.gate.Allowed()
}

// PermissionState returns the cached permission state.
func (t *Tracker) PermissionState() PermissionState {
	return t.perms.State()
}

// Subscribe streams published snapshots; see MemoryStore.Subscribe.
func (t *Tracker) Subscribe() (<-chan LocationResult, func()) {
	return t.store.Subscribe()
}

// OnSharingChange calls fn whenever the gate flips.
func (t *Tracker) OnSharingChange(fn func(allowed bool)) (unsubscribe func()) {
	return t.gate.OnChange(fn)
}

// OnPermissionChange calls fn whenever the cached permission state changes.
func (t *Tracker) OnPermissionChange(fn func(PermissionState)) (unsubscribe func()) {
	return t.perms.Listen(fn)
}
