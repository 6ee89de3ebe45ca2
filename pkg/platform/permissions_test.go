package platform

import (
	"context"
	"errors"
	"sync"
	"testing"

	geoerrors "github.com/go-drift/geotrack/pkg/errors"
)

func TestParsePermissionState(t *testing.T) {
	tests := []struct {
		in   string
		want PermissionState
	}{
		{"granted", PermissionGranted},
		{"limited", PermissionGranted},
		{"denied", PermissionDenied},
		{"permanently_denied", PermissionDenied},
		{"restricted", PermissionDenied},
		{"prompt", PermissionPrompt},
		{"not_determined", PermissionPrompt},
		{"", PermissionUnknown},
		{"bogus", PermissionUnknown},
	}
	for _, tt := range tests {
		if got := ParsePermissionState(tt.in); got != tt.want {
			t.Errorf("ParsePermissionState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPermissionQuery(t *testing.T) {
	bridge := installRecordingBridge(t)
	bridge.respond = func(channel, method string) (any, error) {
		return map[string]any{"state": "prompt"}, nil
	}

	state, err := GeolocationPermission.Query(context.Background())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if state != PermissionPrompt {
		t.Errorf("state = %q, want prompt", state)
	}
	call := bridge.last("query")
	if call.channel != "geo/permissions" || parseString(call.args["name"]) != "geolocation" {
		t.Errorf("unexpected call %+v", call)
	}
}

func TestPermissionQueryUnsupported(t *testing.T) {
	bridge := installRecordingBridge(t)
	bridge.respond = func(string, string) (any, error) {
		return nil, NewChannelError("unsupported", "navigator.permissions missing")
	}

	state, err := GeolocationPermission.Query(context.Background())
	if !errors.Is(err, ErrPlatformUnavailable) {
		t.Fatalf("err = %v, want ErrPlatformUnavailable", err)
	}
	if state != PermissionUnknown {
		t.Errorf("state = %q, want unknown", state)
	}
}

func TestPermissionQueryCanceledContext(t *testing.T) {
	bridge := installRecordingBridge(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := GeolocationPermission.Query(ctx); !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
	if bridge.count("query") != 0 {
		t.Error("canceled query should not reach the host")
	}
}

func TestPermissionListen(t *testing.T) {
	bridge := installRecordingBridge(t)

	var got []PermissionState
	unsubscribe := GeolocationPermission.Listen(func(s PermissionState) { got = append(got, s) })

	send := func(payload map[string]any) {
		data, _ := DefaultCodec.Encode(payload)
		if err := HandleEvent("geo/permissions/changes", data); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	}

	send(map[string]any{"name": "geolocation", "state": "granted"})
	send(map[string]any{"name": "camera", "state": "denied"})
	send(map[string]any{"name": "geolocation", "state": "denied"})

	if len(got) != 2 || got[0] != PermissionGranted || got[1] != PermissionDenied {
		t.Errorf("changes = %v, want [granted denied]", got)
	}
	if len(bridge.started) != 1 || bridge.started[0] != "geo/permissions/changes" {
		t.Errorf("started streams = %v", bridge.started)
	}

	unsubscribe()
	send(map[string]any{"name": "geolocation", "state": "prompt"})
	if len(got) != 2 {
		t.Error("change delivered after unsubscribe")
	}
}

// reportLog collects reported errors for a test.
type reportLog struct {
	mu   sync.Mutex
	errs []*geoerrors.GeoError
}

func (l *reportLog) HandleError(err *geoerrors.GeoError) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *reportLog) HandlePanic(*geoerrors.PanicError) {}

func captureReports(t *testing.T) *reportLog {
	t.Helper()
	l := &reportLog{}
	geoerrors.SetHandler(l)
	t.Cleanup(func() { geoerrors.SetHandler(nil) })
	return l
}

func TestPermissionStreamErrorsReportedAsPermission(t *testing.T) {
	installRecordingBridge(t)
	reports := captureReports(t)

	unsubscribe := GeolocationPermission.Listen(func(PermissionState) {})
	defer unsubscribe()

	if err := HandleEventError("geo/permissions/changes", "unsupported", "permissions API gone"); err != nil {
		t.Fatalf("HandleEventError: %v", err)
	}
	if err := HandleEvent("geo/permissions/changes", []byte(`"garbage"`)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	reports.mu.Lock()
	defer reports.mu.Unlock()
	if len(reports.errs) != 2 {
		t.Fatalf("reported %d errors, want 2", len(reports.errs))
	}
	if got := reports.errs[0]; got.Kind != geoerrors.KindPermission || got.Channel != "geo/permissions/changes" {
		t.Errorf("stream error = %v, want kind permission on geo/permissions/changes", got)
	}
	if got := reports.errs[1]; got.Kind != geoerrors.KindParsing {
		t.Errorf("parse error kind = %v, want parsing", got.Kind)
	}
}

func TestGenericStreamErrorsReportedAsPlatform(t *testing.T) {
	installRecordingBridge(t)
	reports := captureReports(t)

	stream := NewStream(NewEventChannel("geo/test/generic"), func(data any) (string, error) {
		return parseString(data), nil
	})
	unsubscribe := stream.Listen(func(string) {})
	defer unsubscribe()

	if err := HandleEventError("geo/test/generic", "boom", "failed"); err != nil {
		t.Fatalf("HandleEventError: %v", err)
	}

	reports.mu.Lock()
	defer reports.mu.Unlock()
	if len(reports.errs) != 1 || reports.errs[0].Kind != geoerrors.KindPlatform {
		t.Errorf("reports = %v, want one platform error", reports.errs)
	}
}
