// Package webview implements platform.NativeBridge on top of an embedded
// browser view, so navigator.geolocation and navigator.permissions serve as
// the host APIs.
//
// Go calls into the page by evaluating window.__geotrack.invoke with a JSON
// call object. The page answers through one bound function,
// __geotrackPost, which carries replies and events as JSON envelopes.
// Events are handed to the platform layer in arrival order on a dedicated
// goroutine, never on the UI thread.
package webview

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/go-drift/geotrack/pkg/platform"
)

//go:embed shim.js
var shim string

// BindingName is the JavaScript function the page posts envelopes to.
const BindingName = "__geotrackPost"

// DefaultCallTimeout bounds how long InvokeMethod waits for the page.
const DefaultCallTimeout = 5 * time.Second

// ErrUnsupportedCodec is returned when platform.DefaultCodec is not JSON.
var ErrUnsupportedCodec = errors.New("webview bridge requires the JSON codec")

// Host is the part of webview.WebView the bridge needs.
type Host interface {
	Init(js string)
	Eval(js string)
	Dispatch(f func())
	Bind(name string, f interface{}) error
}

// Options configures a Bridge.
type Options struct {
	// CallTimeout bounds each InvokeMethod. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
	// Logger receives debug logs. Nil disables logging.
	Logger *zerolog.Logger
}

type reply struct {
	result []byte
	err    error
}

type event struct {
	kind    string
	channel string
	data    []byte
	code    string
	message string
}

// Bridge is a NativeBridge backed by a webview page.
type Bridge struct {
	host    Host
	timeout time.Duration
	log     zerolog.Logger

	replies *xsync.Map[string, chan reply]

	mu     sync.Mutex
	queue  []event
	closed bool
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ platform.NativeBridge = (*Bridge)(nil)

// New installs the page shim and the envelope binding on host. Call it before
// the page is navigated so the shim is present on every load.
func New(host Host, opts Options) (*Bridge, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("bridge", "webview").Logger()
	}
	b := &Bridge{
		host:    host,
		timeout: opts.CallTimeout,
		log:     log,
		replies: xsync.NewMap[string, chan reply](),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if b.timeout <= 0 {
		b.timeout = DefaultCallTimeout
	}

	host.Init(shim)
	if err := host.Bind(BindingName, b.receive); err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", BindingName, err)
	}

	b.wg.Add(1)
	go b.pump()
	return b, nil
}

// InvokeMethod implements platform.NativeBridge. It must not be called on the
// UI thread: the reply arrives there.
func (b *Bridge) InvokeMethod(channel, method string, args []byte) ([]byte, error) {
	if _, ok := platform.DefaultCodec.(platform.JSONCodec); !ok {
		return nil, ErrUnsupportedCodec
	}
	if b.isClosed() {
		return nil, platform.ErrClosed
	}

	id := xid.New().String()
	call, err := encodeCall(id, channel, method, args)
	if err != nil {
		return nil, err
	}

	ch := make(chan reply, 1)
	b.replies.Store(id, ch)
	defer b.replies.Delete(id)

	b.eval("window.__geotrack.invoke(" + call + ")")

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.result, r.err
	case <-timer.C:
		b.log.Warn().Str("channel", channel).Str("method", method).Msg("Page did not answer")
		return nil, fmt.Errorf("%w: %s.%s", platform.ErrTimeout, channel, method)
	case <-b.done:
		return nil, platform.ErrClosed
	}
}

// StartEventStream implements platform.NativeBridge.
func (b *Bridge) StartEventStream(channel string) error {
	return b.stream("startStream", channel)
}

// StopEventStream implements platform.NativeBridge.
func (b *Bridge) StopEventStream(channel string) error {
	return b.stream("stopStream", channel)
}

// Close fails pending calls, stops the event pump, and drops queued events.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.queue = nil
	close(b.done)
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Bridge) stream(fn, channel string) error {
	if b.isClosed() {
		return platform.ErrClosed
	}
	arg, err := sjson.Set("", "channel", channel)
	if err != nil {
		return err
	}
	b.eval("window.__geotrack." + fn + "(" + arg + ")")
	return nil
}

func (b *Bridge) eval(js string) {
	b.host.Dispatch(func() { b.host.Eval(js) })
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// receive is bound into the page. It runs on the UI thread and never blocks.
func (b *Bridge) receive(envelope string) error {
	if !gjson.Valid(envelope) {
		return fmt.Errorf("invalid envelope")
	}
	env := gjson.Parse(envelope)
	switch kind := env.Get("type").Str; kind {
	case "reply":
		id := env.Get("id").Str
		ch, ok := b.replies.Load(id)
		if !ok {
			b.log.Debug().Str("id", id).Msg("Reply for unknown call")
			return nil
		}
		var r reply
		if e := env.Get("error"); e.Exists() && e.IsObject() {
			r.err = platform.NewChannelError(e.Get("code").String(), e.Get("message").String())
		} else if res := env.Get("result"); res.Exists() && res.Type != gjson.Null {
			r.result = []byte(res.Raw)
		}
		select {
		case ch <- r:
		default:
		}
		return nil

	case "event", "eventError", "done":
		channel := env.Get("channel").Str
		if channel == "" {
			return fmt.Errorf("%s envelope without channel", kind)
		}
		ev := event{kind: kind, channel: channel}
		if data := env.Get("data"); data.Exists() {
			ev.data = []byte(data.Raw)
		}
		ev.code = env.Get("code").String()
		ev.message = env.Get("message").String()
		b.enqueue(ev)
		return nil

	default:
		return fmt.Errorf("unknown envelope type %q", kind)
	}
}

func (b *Bridge) enqueue(ev event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) pump() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}
		for {
			b.mu.Lock()
			if b.closed || len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			b.deliver(ev)
		}
	}
}

func (b *Bridge) deliver(ev event) {
	var err error
	switch ev.kind {
	case "event":
		err = platform.HandleEvent(ev.channel, ev.data)
	case "eventError":
		err = platform.HandleEventError(ev.channel, ev.code, ev.message)
	case "done":
		err = platform.HandleEventDone(ev.channel)
	}
	if err != nil {
		b.log.Debug().Err(err).Str("channel", ev.channel).Str("kind", ev.kind).Msg("Event not delivered")
	}
}

// encodeCall builds the JSON call object passed to window.__geotrack.invoke.
func encodeCall(id, channel, method string, args []byte) (string, error) {
	call, err := sjson.Set("", "id", id)
	if err != nil {
		return "", err
	}
	if call, err = sjson.Set(call, "channel", channel); err != nil {
		return "", err
	}
	if call, err = sjson.Set(call, "method", method); err != nil {
		return "", err
	}
	if len(args) > 0 && gjson.ValidBytes(args) {
		if call, err = sjson.SetRaw(call, "args", string(args)); err != nil {
			return "", err
		}
	}
	return call, nil
}
