/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package hardware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"periph.io/x/conn/v3/gpio"

	"github.com/friendsincode/openhome/internal/station"
	"github.com/friendsincode/openhome/internal/telemetry"
)

// SwitchTimeout bounds every special station call.
const SwitchTimeout = 5 * time.Second

// ErrExternalTimeout marks a special station call that did not finish in
// time. The call is dropped; the next refresh retries it.
var ErrExternalTimeout = errors.New("special station call timed out")

// Switcher turns one kind of special station on or off.
type Switcher interface {
	Switch(ctx context.Context, kind station.Kind, on bool) error
}

// Dispatcher runs special station switches off the control loop. Calls
// for one station run one at a time in dispatch order. A request waiting
// behind a slow call is replaced by a newer one, so the last call made for
// a station always carries its latest state.
type Dispatcher struct {
	switchers map[station.Type]Switcher
	logger    zerolog.Logger
	wg        sync.WaitGroup

	mu    sync.Mutex
	lanes map[station.ID]*lane
}

type switchRequest struct {
	kind     station.Kind
	on       bool
	switcher Switcher
}

// lane holds the pending request of one station.
type lane struct {
	pending *switchRequest
	busy    bool
}

// NewDispatcher returns a dispatcher with no transports registered.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		switchers: make(map[station.Type]Switcher),
		lanes:     make(map[station.ID]*lane),
		logger:    logger.With().Str("component", "special-stations").Logger(),
	}
}

// Register sets the transport for t. Call before the first Dispatch.
func (d *Dispatcher) Register(t station.Type, s Switcher) {
	d.switchers[t] = s
}

// Dispatch switches sid in the background.
func (d *Dispatcher) Dispatch(sid station.ID, kind station.Kind, on bool) {
	t := kind.Type()
	s, ok := d.switchers[t]
	if !ok {
		if t != station.TypeStandard {
			d.logger.Debug().Str("type", t.String()).Int("station", sid.Number()).Msg("no transport for special station")
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.lanes[sid]
	if l == nil {
		l = &lane{}
		d.lanes[sid] = l
	}
	if l.pending != nil {
		telemetry.SpecialSwitchTotal.WithLabelValues(t.String(), "superseded").Inc()
	}
	l.pending = &switchRequest{kind: kind, on: on, switcher: s}
	if l.busy {
		return
	}
	l.busy = true
	d.wg.Add(1)
	go d.drain(sid, l)
}

// drain runs the lane's requests until none is pending.
func (d *Dispatcher) drain(sid station.ID, l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		req := l.pending
		l.pending = nil
		if req == nil {
			l.busy = false
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()
		d.switchOne(sid, req)
	}
}

func (d *Dispatcher) switchOne(sid station.ID, req *switchRequest) {
	t := req.kind.Type()
	ctx, cancel := context.WithTimeout(context.Background(), SwitchTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "special_station.switch",
		attribute.Int("station", sid.Number()),
		attribute.String("station.type", t.String()),
		attribute.Bool("station.on", req.on),
	)

	err := req.switcher.Switch(ctx, req.kind, req.on)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrExternalTimeout, err)
	}
	telemetry.EndSpan(span, err)

	result := "ok"
	switch {
	case errors.Is(err, ErrExternalTimeout):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	telemetry.SpecialSwitchTotal.WithLabelValues(t.String(), result).Inc()
	if err != nil {
		d.logger.Warn().Err(err).Int("station", sid.Number()).Str("type", t.String()).Bool("on", req.on).Msg("special station switch failed")
	}
}

// Wait blocks until every dispatched switch has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// RFTransmitter sends 24 bit codes through a 433MHz transmitter wired to
// a GPIO line.
type RFTransmitter struct {
	pin outPin
	mu  sync.Mutex
}

const (
	rfRepeats = 15
	rfBits    = 24
)

// NewRFTransmitter opens the transmitter data pin by periph name.
func NewRFTransmitter(pin string) (*RFTransmitter, error) {
	p, err := lookupOut(pin)
	if err != nil {
		return nil, err
	}
	return &RFTransmitter{pin: p}, nil
}

func (r *RFTransmitter) Switch(ctx context.Context, kind station.Kind, on bool) error {
	rf, ok := kind.(station.RFCode)
	if !ok {
		return fmt.Errorf("rf transmitter got %s station", kind.Type())
	}
	code := rf.Off
	if on {
		code = rf.On
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.send(ctx, code, time.Duration(rf.Timing)*time.Microsecond)
}

// send writes code MSB first: a one is a 3:1 high:low pulse, a zero 1:3,
// and each repetition ends with a 1:31 sync pulse.
func (r *RFTransmitter) send(ctx context.Context, code uint32, unit time.Duration) error {
	for n := 0; n < rfRepeats; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := rfBits - 1; i >= 0; i-- {
			high, low := unit, 3*unit
			if code>>i&1 == 1 {
				high, low = 3*unit, unit
			}
			if err := r.pulse(high, low); err != nil {
				return err
			}
		}
		if err := r.pulse(unit, 31*unit); err != nil {
			return err
		}
	}
	return nil
}

func (r *RFTransmitter) pulse(high, low time.Duration) error {
	if err := r.pin.Out(gpio.High); err != nil {
		return err
	}
	spin(high)
	if err := r.pin.Out(gpio.Low); err != nil {
		return err
	}
	spin(low)
	return nil
}

// spin busy waits; time.Sleep cannot hold microsecond pulse widths.
func spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

// GPIOSwitcher drives relays wired straight to host GPIO lines.
type GPIOSwitcher struct {
	lookup func(name string) (outPin, error)
}

// NewGPIOSwitcher resolves pins through the periph registry as GPIO<n>.
func NewGPIOSwitcher() *GPIOSwitcher {
	return &GPIOSwitcher{lookup: lookupOut}
}

func (g *GPIOSwitcher) Switch(_ context.Context, kind station.Kind, on bool) error {
	k, ok := kind.(station.GPIOPin)
	if !ok {
		return fmt.Errorf("gpio switcher got %s station", kind.Type())
	}
	p, err := g.lookup("GPIO" + strconv.Itoa(k.Pin))
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(on == k.ActiveHigh))
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   SwitchTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func get(ctx context.Context, client *http.Client, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: status %d", req.URL.Host, resp.StatusCode)
	}
	return nil
}

// remoteRefreshCycle is the timer sent to remote controllers. It covers two
// refresh rounds so a station stays on while refreshes keep arriving.
const remoteRefreshCycle = 2 * station.MaxStations

// RemoteSwitcher forwards the station state to another controller running
// in remote extension mode. Both controllers share the device password.
type RemoteSwitcher struct {
	client   *http.Client
	password atomic.Pointer[string]
}

func NewRemoteSwitcher() *RemoteSwitcher {
	r := &RemoteSwitcher{client: newHTTPClient()}
	r.SetPassword("")
	return r
}

// SetPassword updates the password sent with every call.
func (r *RemoteSwitcher) SetPassword(pw string) { r.password.Store(&pw) }

func (r *RemoteSwitcher) Switch(ctx context.Context, kind station.Kind, on bool) error {
	k, ok := kind.(station.RemoteTarget)
	if !ok {
		return fmt.Errorf("remote switcher got %s station", kind.Type())
	}
	en := "0"
	if on {
		en = "1"
	}
	q := url.Values{}
	q.Set("pw", *r.password.Load())
	q.Set("sid", strconv.Itoa(k.Station))
	q.Set("en", en)
	q.Set("t", strconv.Itoa(remoteRefreshCycle))
	u := url.URL{Scheme: "http", Host: k.Addr.String(), Path: "/cm", RawQuery: q.Encode()}
	return get(ctx, r.client, u.String())
}

// HTTPSwitcher calls a configured GET path on a third party device.
type HTTPSwitcher struct {
	client *http.Client
}

func NewHTTPSwitcher() *HTTPSwitcher {
	return &HTTPSwitcher{client: newHTTPClient()}
}

func (h *HTTPSwitcher) Switch(ctx context.Context, kind station.Kind, on bool) error {
	k, ok := kind.(station.HTTPTarget)
	if !ok {
		return fmt.Errorf("http switcher got %s station", kind.Type())
	}
	host := k.Server + ":" + strconv.Itoa(k.Port)
	return get(ctx, h.client, "http://"+host+"/"+k.Command(on))
}
