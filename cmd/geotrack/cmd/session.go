package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/go-drift/geotrack/pkg/bridge/sim"
	"github.com/go-drift/geotrack/pkg/config"
	"github.com/go-drift/geotrack/pkg/errors"
	"github.com/go-drift/geotrack/pkg/geo"
	"github.com/go-drift/geotrack/pkg/platform"
)

// defaultRoute is a short walk along Unter den Linden.
const defaultRoute = "52.5163,13.3777;52.5170,13.3889;52.5175,13.3951;52.5186,13.4011"

// hostFlags are shared by every command that opens a session.
type hostFlags struct {
	configDir    string
	codec        string
	permission   string
	promptAnswer string
	route        string
	latency      time.Duration
	interval     time.Duration
	unsupported  bool
	noPermAPI    bool
	loggedOut    bool
	sharingOff   bool
	verbose      bool
}

func (f *hostFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&f.configDir, "config-dir", ".", "directory holding geotrack.yaml or geotrack.jsonc")
	fs.StringVar(&f.codec, "codec", "json", "bridge codec (json or cbor)")
	fs.StringVar(&f.permission, "permission", "prompt", "simulated permission state (granted, denied, prompt)")
	fs.StringVar(&f.promptAnswer, "prompt-answer", "granted", "how the simulated user answers a prompt")
	fs.StringVar(&f.route, "route", defaultRoute, "simulated fixes as lat,lon pairs separated by ';'")
	fs.DurationVar(&f.latency, "latency", 50*time.Millisecond, "simulated response latency")
	fs.DurationVar(&f.interval, "interval", time.Second, "time between watch fixes")
	fs.BoolVar(&f.unsupported, "unsupported", false, "simulate a host without geolocation")
	fs.BoolVar(&f.noPermAPI, "no-permissions-api", false, "simulate a host without a permissions API")
	fs.BoolVar(&f.loggedOut, "logged-out", false, "run as a logged-out user")
	fs.BoolVar(&f.sharingOff, "sharing-off", false, "turn the user's sharing preference off")
	fs.BoolVarP(&f.verbose, "verbose", "V", false, "log at debug level")
}

// session is one tracker wired to a simulated host.
type session struct {
	log     zerolog.Logger
	cfg     *config.Resolved
	bridge  *sim.Bridge
	prefs   *geo.MemoryPreferences
	tracker *geo.Tracker
	done    chan struct{}
}

// runLoop serializes host callbacks on one goroutine, the way a
// single-threaded host delivers them.
func runLoop(done <-chan struct{}) {
	queue := make(chan func(), 64)
	go func() {
		for {
			select {
			case cb := <-queue:
				cb()
			case <-done:
				return
			}
		}
	}()
	platform.RegisterDispatch(func(cb func()) {
		select {
		case queue <- cb:
		case <-done:
		}
	})
}

func (f *hostFlags) open() (*session, error) {
	cfg, err := config.Resolve(f.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if f.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
	if cfg.Source != "" {
		log.Debug().Str("path", cfg.Source).Msg("Loaded config")
	}
	errors.SetHandler(errors.NewLogHandler(&log))

	route, err := parseRoute(f.route)
	if err != nil {
		return nil, err
	}
	permission, err := parsePermission(f.permission)
	if err != nil {
		return nil, fmt.Errorf("--permission: %w", err)
	}
	answer, err := parsePermission(f.promptAnswer)
	if err != nil {
		return nil, fmt.Errorf("--prompt-answer: %w", err)
	}

	switch strings.ToLower(f.codec) {
	case "json":
		platform.SetCodec(nil)
	case "cbor":
		codec, err := platform.NewCBORCodec()
		if err != nil {
			return nil, err
		}
		platform.SetCodec(codec)
	default:
		return nil, fmt.Errorf("unknown codec %q (use json or cbor)", f.codec)
	}

	bridge := sim.New(sim.Options{
		Unsupported:      f.unsupported,
		NoPermissionsAPI: f.noPermAPI,
		Permission:       permission,
		PromptAnswer:     answer,
		Route:            route,
		Latency:          f.latency,
		Interval:         f.interval,
		Logger:           &log,
	})
	done := make(chan struct{})
	runLoop(done)
	platform.SetNativeBridge(bridge)

	if err := platform.Bridge.RequireVersion(cfg.BridgeMinVersion); err != nil {
		bridge.Close()
		platform.SetNativeBridge(nil)
		platform.RegisterDispatch(nil)
		close(done)
		return nil, err
	}

	prefs := geo.NewMemoryPreferences(cfg.LoggedIn && !f.loggedOut, cfg.SharingEnabled && !f.sharingOff)
	g, q := geo.PlatformCapabilities()
	profiles := cfg.Profiles
	tracker := geo.New(geo.Options{
		Geolocation: g,
		Permissions: q,
		Preferences: prefs,
		Profiles:    &profiles,
		Logger:      &log,
	})

	return &session{log: log, cfg: cfg, bridge: bridge, prefs: prefs, tracker: tracker, done: done}, nil
}

// Close tears the tracker down before the host goes away.
func (s *session) Close() {
	s.tracker.Close()
	s.bridge.Close()
	platform.SetNativeBridge(nil)
	platform.RegisterDispatch(nil)
	platform.SetCodec(nil)
	close(s.done)
}

func parseRoute(s string) ([]sim.Fix, error) {
	var route []sim.Fix
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		lat, lon, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("--route: %q is not a lat,lon pair", pair)
		}
		latitude, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
		if err != nil || latitude < -90 || latitude > 90 {
			return nil, fmt.Errorf("--route: bad latitude %q", lat)
		}
		longitude, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
		if err != nil || longitude < -180 || longitude > 180 {
			return nil, fmt.Errorf("--route: bad longitude %q", lon)
		}
		route = append(route, sim.Fix{Latitude: latitude, Longitude: longitude, Accuracy: 10})
	}
	return route, nil
}

func parsePermission(s string) (platform.PermissionState, error) {
	state := platform.ParsePermissionState(strings.ToLower(strings.TrimSpace(s)))
	if state == platform.PermissionUnknown {
		return "", fmt.Errorf("unknown permission state %q", s)
	}
	return state, nil
}

// printResult writes one snapshot as a single line.
func printResult(w io.Writer, res geo.LocationResult) {
	var b strings.Builder
	status := string(res.Status)
	if status == "" {
		status = "-"
	}
	fmt.Fprintf(&b, "status=%q", status)
	if res.Coordinates != nil {
		fmt.Fprintf(&b, " lat=%.6f lon=%.6f", res.Coordinates.Latitude, res.Coordinates.Longitude)
	}
	if res.Error != nil {
		fmt.Fprintf(&b, " code=%d error=%q", res.Error.Code, res.Error.Message)
	}
	if res.IsLoading {
		b.WriteString(" loading")
	}
	fmt.Fprintln(w, b.String())
}

// parseFlags parses args into fs. It reports false when help was requested.
func parseFlags(cmd *Command, fs *pflag.FlagSet, args []string) (bool, error) {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printCommandHelp(cmd)
			fmt.Fprintln(stdout)
			fmt.Fprintln(stdout, "Flags:")
			fs.SetOutput(stdout)
			fs.PrintDefaults()
			return false, nil
		}
		return false, err
	}
	if fs.NArg() > 0 {
		return false, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return true, nil
}
