package geo

import (
	"context"

	"github.com/rs/zerolog"
)

// Messages written when a one-shot request is refused before reaching the host.
const (
	MessageDeniedByBrowser    = "Permission denied by browser"
	MessageDisabledInSettings = "Disabled in user settings"
)

// OneShotLocator fetches a single fresh fix for callers that cannot wait for
// the watch. It runs independently of any active watch; both write through
// the same reporter and the last write wins.
type OneShotLocator struct {
	geo   Geolocation
	perms *PermissionMonitor
	prefs Preferences
	rep   *reporter
	opts  PositionOptions
	log   zerolog.Logger
}

func newOneShotLocator(geo Geolocation, perms *PermissionMonitor, prefs Preferences, rep *reporter, opts PositionOptions, log zerolog.Logger) *OneShotLocator {
	return &OneShotLocator{
		geo:   geo,
		perms: perms,
		prefs: prefs,
		rep:   rep,
		opts:  opts,
		log:   log.With().Str("component", "one_shot").Logger(),
	}
}

// Locate re-probes permission, then requests one fix. It returns nil on any
// failure; the classified outcome is in the store. If ctx ends first Locate
// returns nil right away, and the request still writes its result when it
// completes.
func (l *OneShotLocator) Locate(ctx context.Context) (coords *Coordinates) {
	err := guard("geo.OneShotLocator.Locate", func() error {
		var err error
		coords, err = l.locate(ctx)
		return err
	})
	if err != nil {
		l.rep.unexpected("geo.OneShotLocator.Locate", err)
		return nil
	}
	return coords
}

func (l *OneShotLocator) locate(ctx context.Context) (*Coordinates, error) {
	permission := l.perms.Reset(ctx)

	if !l.geo.Supported() {
		l.rep.refuse(ClassNotSupported, "")
		return nil, nil
	}
	if permission == PermissionDenied {
		l.log.Debug().Msg("One-shot refused: permission denied")
		l.rep.refuse(ClassPermissionDenied, MessageDeniedByBrowser)
		return nil, nil
	}
	if l.prefs.LoggedIn() && !l.prefs.SharingEnabled() {
		l.log.Debug().Msg("One-shot refused: sharing disabled")
		l.rep.refuse(ClassDisabledByUser, MessageDisabledInSettings)
		return nil, nil
	}

	result := make(chan *Coordinates, 1)
	send := func(c *Coordinates) {
		select {
		case result <- c:
		default:
		}
	}
	l.rep.store.SetLocationLoading(true)
	err := l.geo.GetCurrentPosition(l.opts,
		func(pos Position) {
			coords := l.rep.success(pos)
			l.rep.settle(0, true)
			send(&coords)
		},
		func(perr *PositionError) {
			class := l.rep.failure(perr)
			l.rep.settle(class, false)
			send(nil)
		})
	if err != nil {
		return nil, err
	}

	select {
	case coords := <-result:
		return coords, nil
	case <-ctx.Done():
		l.log.Debug().Err(ctx.Err()).Msg("Caller stopped waiting for one-shot fix")
		return nil, nil
	}
}
