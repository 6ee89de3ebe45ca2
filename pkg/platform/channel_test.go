package platform

import (
	"errors"
	"testing"
)

func TestEventChannelStartsStreamOnce(t *testing.T) {
	bridge := installRecordingBridge(t)
	ch := NewEventChannel("geo/test/once")

	a := ch.Listen(EventHandler{})
	b := ch.Listen(EventHandler{})
	if len(bridge.started) != 1 {
		t.Errorf("started = %v, want one start", bridge.started)
	}

	a.Cancel()
	b.Cancel()
	ch.Listen(EventHandler{})
	if len(bridge.started) != 2 {
		t.Errorf("started = %v, want restart after all listeners left", bridge.started)
	}
}

func TestListenBeforeBridgeStartsOnSet(t *testing.T) {
	t.Cleanup(ResetForTest)
	ch := NewEventChannel("geo/test/early")

	var startErr error
	ch.Listen(EventHandler{OnError: func(err error) { startErr = err }})
	if !errors.Is(startErr, ErrPlatformUnavailable) {
		t.Fatalf("startErr = %v, want ErrPlatformUnavailable", startErr)
	}

	bridge := &recordingBridge{}
	SetNativeBridge(bridge)
	found := false
	for _, name := range bridge.started {
		if name == "geo/test/early" {
			found = true
		}
	}
	if !found {
		t.Errorf("stream not started on SetNativeBridge, started = %v", bridge.started)
	}
}

func TestHandleEventDoneCancelsSubscriptions(t *testing.T) {
	installRecordingBridge(t)
	ch := NewEventChannel("geo/test/done")

	done := false
	sub := ch.Listen(EventHandler{OnDone: func() { done = true }})
	if err := HandleEventDone("geo/test/done"); err != nil {
		t.Fatalf("HandleEventDone: %v", err)
	}
	if !done || !sub.IsCanceled() {
		t.Errorf("done = %v, canceled = %v", done, sub.IsCanceled())
	}
}

func TestHandleEventUnregistered(t *testing.T) {
	installRecordingBridge(t)
	err := HandleEvent("geo/test/missing", []byte(`{}`))
	if !errors.Is(err, ErrChannelNotRegistered) {
		t.Errorf("err = %v, want ErrChannelNotRegistered", err)
	}
	if err := HandleEventError("geo/test/missing", "x", "y"); !errors.Is(err, ErrChannelNotRegistered) {
		t.Errorf("HandleEventError err = %v", err)
	}
}

func TestHandleEventErrorReachesSubscribers(t *testing.T) {
	installRecordingBridge(t)
	ch := NewEventChannel("geo/test/errors")

	var got error
	ch.Listen(EventHandler{OnError: func(err error) { got = err }})
	if err := HandleEventError("geo/test/errors", "stream_failed", "sensor off"); err != nil {
		t.Fatalf("HandleEventError: %v", err)
	}
	var chErr *ChannelError
	if !errors.As(got, &chErr) || chErr.Code != "stream_failed" {
		t.Errorf("got %v", got)
	}
}

func TestHandleMethodCall(t *testing.T) {
	installRecordingBridge(t)
	ch := NewMethodChannel("geo/test/method")
	ch.SetHandler(func(method string, args any) (any, error) {
		return map[string]any{"method": method, "echo": parseMap(args)["v"]}, nil
	})

	out, err := HandleMethodCall("geo/test/method", "ping", []byte(`{"v":"x"}`))
	if err != nil {
		t.Fatalf("HandleMethodCall: %v", err)
	}
	if string(out) != `{"echo":"x","method":"ping"}` {
		t.Errorf("out = %s", out)
	}

	if _, err := HandleMethodCall("geo/test/nope", "ping", nil); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("err = %v, want ErrChannelNotFound", err)
	}
}

func TestCBORCodecDecodesStringMaps(t *testing.T) {
	codec, err := NewCBORCodec()
	if err != nil {
		t.Fatalf("NewCBORCodec: %v", err)
	}
	SetCodec(codec)
	t.Cleanup(func() { SetCodec(nil) })

	data, err := codec.Encode(map[string]any{
		"id":       "abc",
		"position": map[string]any{"latitude": 1.5, "longitude": -2.25, "timestamp": 1700000000000},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	event, err := parsePositionEvent(decoded)
	if err != nil {
		t.Fatalf("parsePositionEvent: %v", err)
	}
	if event.id != "abc" || event.position.Latitude != 1.5 || event.position.Longitude != -2.25 {
		t.Errorf("event = %+v", event)
	}
	if event.position.Timestamp.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp = %v", event.position.Timestamp)
	}
}

func TestSetupTestBridge(t *testing.T) {
	SetupTestBridge(t.Cleanup)

	result, err := NewMethodChannel("geo/test/noop").Invoke("anything", map[string]any{"a": 1})
	if err != nil || result != nil {
		t.Fatalf("Invoke = %v, %v; want nil, nil", result, err)
	}

	ran := false
	if !Dispatch(func() { ran = true }) || !ran {
		t.Error("Dispatch did not run the callback inline")
	}
}
