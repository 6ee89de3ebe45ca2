package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestGeoErrorString(t *testing.T) {
	err := &GeoError{
		Op:   "geo.PermissionMonitor.Check",
		Kind: KindPermission,
		Err:  fmt.Errorf("query failed"),
	}
	want := "geo.PermissionMonitor.Check [permission]: query failed"
	if got := err.Error(); got != want {
		t.Errorf("GeoError.Error() = %q, want %q", got, want)
	}
}

func TestGeoErrorWithChannel(t *testing.T) {
	err := &GeoError{
		Op:      "platform.HandleEvent",
		Kind:    KindParsing,
		Channel: "geo/geolocation/events",
		Err:     &ParseError{Channel: "geo/geolocation/events", DataType: "PositionEvent", Got: nil},
	}
	got := err.Error()
	want := "channel=geo/geolocation/events"
	if !strings.Contains(got, want) {
		t.Errorf("error string %q should contain %q", got, want)
	}
}

func TestGeoErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("boom")
	err := &GeoError{Op: "x", Err: inner}
	if err.Unwrap() != inner {
		t.Error("Unwrap should return the wrapped error")
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindPlatform, "platform"},
		{KindParsing, "parsing"},
		{KindPermission, "permission"},
		{KindPosition, "position"},
		{KindPanic, "panic"},
		{KindConfig, "config"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestPanicErrorString(t *testing.T) {
	err := &PanicError{Value: "test panic", Timestamp: time.Now()}
	if got, want := err.Error(), "panic: test panic"; got != want {
		t.Errorf("PanicError.Error() = %q, want %q", got, want)
	}

	err.Op = "platform.WatchPosition"
	if got, want := err.Error(), "panic in platform.WatchPosition: test panic"; got != want {
		t.Errorf("PanicError.Error() = %q, want %q", got, want)
	}
}

func TestParseErrorString(t *testing.T) {
	err := &ParseError{Channel: "geo/permissions/changes", DataType: "PermissionChange", Got: 123}
	want := "failed to parse PermissionChange from channel geo/permissions/changes: got int"
	if got := err.Error(); got != want {
		t.Errorf("ParseError.Error() = %q, want %q", got, want)
	}
}

func TestReport(t *testing.T) {
	var captured *GeoError
	handler := &testHandler{onError: func(err *GeoError) { captured = err }}

	oldHandler := DefaultHandler
	SetHandler(handler)
	defer SetHandler(oldHandler)

	Report(&GeoError{Op: "test.op", Kind: KindPlatform, Err: fmt.Errorf("x")})

	if captured == nil {
		t.Fatal("expected error to be captured")
	}
	if captured.Op != "test.op" {
		t.Errorf("Op = %q, want %q", captured.Op, "test.op")
	}
	if captured.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
}

func TestReportNil(t *testing.T) {
	called := false
	oldHandler := DefaultHandler
	SetHandler(&testHandler{
		onError: func(*GeoError) { called = true },
		onPanic: func(*PanicError) { called = true },
	})
	defer SetHandler(oldHandler)

	Report(nil)
	ReportPanic(nil)
	if called {
		t.Error("nil reports should not reach the handler")
	}
}

func TestRecover(t *testing.T) {
	var captured *PanicError
	oldHandler := DefaultHandler
	SetHandler(&testHandler{onPanic: func(err *PanicError) { captured = err }})
	defer SetHandler(oldHandler)

	func() {
		defer Recover("test.recover")
		panic("intentional test panic")
	}()

	if captured == nil {
		t.Fatal("expected panic to be recovered and captured")
	}
	if captured.Value != "intentional test panic" {
		t.Errorf("Value = %v, want %q", captured.Value, "intentional test panic")
	}
	if captured.Op != "test.recover" {
		t.Errorf("Op = %q, want %q", captured.Op, "test.recover")
	}
	if captured.StackTrace == "" {
		t.Error("expected a stack trace")
	}
}

func TestRecoverWithCallback(t *testing.T) {
	oldHandler := DefaultHandler
	SetHandler(&testHandler{})
	defer SetHandler(oldHandler)

	var got any
	func() {
		defer RecoverWithCallback("test.callback", func(r any) { got = r })
		panic(42)
	}()

	if got != 42 {
		t.Errorf("callback value = %v, want 42", got)
	}
}

func TestPanicAsError(t *testing.T) {
	inner := fmt.Errorf("inner")
	err := PanicAsError("op", inner)
	if !strings.Contains(err.Error(), "panic in op") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !stderrors.Is(err, inner) {
		t.Error("panic value not reachable through errors.Is")
	}

	err = PanicAsError("op", "text")
	var pe *PanicError
	if p, ok := err.(*PanicError); ok {
		pe = p
	}
	if pe == nil || pe.Value != "text" {
		t.Errorf("expected *PanicError with value text, got %#v", err)
	}
}

func TestCaptureStack(t *testing.T) {
	stack := CaptureStack()
	if stack == "" {
		t.Error("expected non-empty stack trace")
	}
	if !strings.Contains(stack, "testing") && !strings.Contains(stack, "runtime") {
		t.Errorf("stack trace should contain testing or runtime frames, got: %s", stack)
	}
}

func TestSetHandlerNil(t *testing.T) {
	oldHandler := DefaultHandler
	defer SetHandler(oldHandler)

	SetHandler(nil)
	if _, ok := DefaultHandler.(*LogHandler); !ok {
		t.Errorf("SetHandler(nil) should set LogHandler, got %T", DefaultHandler)
	}
}

func TestLogHandlerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	h := NewLogHandler(&log)

	h.HandleError(&GeoError{
		Op:      "platform.HandleEvent",
		Kind:    KindParsing,
		Channel: "geo/geolocation/events",
		Err:     fmt.Errorf("bad payload"),
	})

	out := buf.String()
	for _, want := range []string{`"op":"platform.HandleEvent"`, `"kind":"parsing"`, `"channel":"geo/geolocation/events"`, `"error":"bad payload"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}

	buf.Reset()
	h.HandlePanic(&PanicError{Op: "x", Value: "v"})
	if !strings.Contains(buf.String(), `"value":"v"`) {
		t.Errorf("panic output %s missing value", buf.String())
	}
}

type testHandler struct {
	onError func(*GeoError)
	onPanic func(*PanicError)
}

func (h *testHandler) HandleError(err *GeoError) {
	if h.onError != nil {
		h.onError(err)
	}
}

func (h *testHandler) HandlePanic(err *PanicError) {
	if h.onPanic != nil {
		h.onPanic(err)
	}
}
