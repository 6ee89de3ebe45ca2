// Command geotrack-webview runs the location tracker inside a desktop webview,
// using the embedded browser's geolocation and permission APIs as the host.
package main

import (
	_ "embed"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	webview "github.com/webview/webview_go"

	gwebview "github.com/go-drift/geotrack/pkg/bridge/webview"
	"github.com/go-drift/geotrack/pkg/config"
	"github.com/go-drift/geotrack/pkg/errors"
	"github.com/go-drift/geotrack/pkg/geo"
	"github.com/go-drift/geotrack/pkg/platform"
)

//go:embed page.html
var page []byte

var _ gwebview.Host = webview.WebView(nil)

func main() {
	var (
		configDir string
		debug     bool
	)
	pflag.StringVar(&configDir, "config-dir", ".", "directory holding geotrack.yaml or geotrack.jsonc")
	pflag.BoolVar(&debug, "debug", false, "enable the webview inspector and debug logs")
	pflag.Parse()

	if err := run(configDir, debug); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string, debug bool) error {
	cfg, err := config.Resolve(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.LogLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
	errors.SetHandler(errors.NewLogHandler(&log))

	// Geolocation needs a secure context; loopback origins qualify.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("http://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(page)
	})
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Page server failed")
		}
	}()
	defer srv.Close()

	w := webview.New(debug)
	defer w.Destroy()
	w.SetTitle("geotrack")
	w.SetSize(720, 480, webview.HintNone)

	bridge, err := gwebview.New(w, gwebview.Options{Logger: &log})
	if err != nil {
		return err
	}
	defer bridge.Close()
	platform.SetCodec(nil)
	platform.SetNativeBridge(bridge)

	prefs := geo.NewMemoryPreferences(cfg.LoggedIn, cfg.SharingEnabled)
	g, q := geo.PlatformCapabilities()
	profiles := cfg.Profiles
	tracker := geo.New(geo.Options{
		Geolocation: g,
		Permissions: q,
		Preferences: prefs,
		Profiles:    &profiles,
		Logger:      &log,
	})
	defer tracker.Close()

	controls := gwebview.NewControls(w, tracker, prefs, gwebview.ControlsOptions{
		MinVersion: cfg.BridgeMinVersion,
		Logger:     &log,
	})
	if err := controls.Bind(); err != nil {
		return err
	}
	defer controls.Close()

	w.Navigate(addr)
	w.Run()

	log.Info().Msg("Window closed, shutting down")
	return nil
}
