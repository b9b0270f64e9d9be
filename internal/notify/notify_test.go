package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeGateway struct {
	calls   []Recipient
	startAt []time.Time
	endAt   []time.Time
	fail    map[string]error
	// latency is how long each Deliver takes.
	latency time.Duration
}

func (g *fakeGateway) Deliver(ctx context.Context, message string, r Recipient) (int, error) {
	g.calls = append(g.calls, r)
	g.startAt = append(g.startAt, time.Now())
	defer func() { g.endAt = append(g.endAt, time.Now()) }()
	if g.latency > 0 {
		time.Sleep(g.latency)
	}
	if err := g.fail[r.Address]; err != nil {
		return 0, err
	}
	return 200, nil
}

func TestDispatch_continuesAfterTransportError(t *testing.T) {
	gw := &fakeGateway{fail: map[string]error{"+2": errors.New("connection reset by peer")}}
	d := &Dispatcher{Gateway: gw, Pause: time.Millisecond}
	recipients := []Recipient{
		{Address: "+1", Credential: "k1"},
		{Address: "+2", Credential: "k2"},
		{Address: "+3", Credential: "k3"},
	}
	out := d.Dispatch(context.Background(), "hello", recipients)
	if len(gw.calls) != 3 {
		t.Fatalf("gateway calls = %d, want 3", len(gw.calls))
	}
	if gw.calls[2].Address != "+3" {
		t.Errorf("third call went to %s", gw.calls[2].Address)
	}
	if n := Failures(out); n != 1 {
		t.Errorf("Failures = %d, want 1", n)
	}
	if out[1].OK || out[1].Err == nil {
		t.Errorf("out[1] = %+v, want failed", out[1])
	}
	if !out[0].OK || !out[2].OK {
		t.Errorf("out = %+v", out)
	}
}

func TestDispatch_skipsInvalidRecipients(t *testing.T) {
	gw := &fakeGateway{}
	var observed []Delivery
	d := &Dispatcher{Gateway: gw, OnDelivery: func(del Delivery) { observed = append(observed, del) }}
	recipients := []Recipient{
		{Address: "+1", Credential: ""},
		{Address: "  ", Credential: "k"},
		{Address: "+3", Credential: "k3"},
	}
	out := d.Dispatch(context.Background(), "msg", recipients)
	if len(gw.calls) != 1 || gw.calls[0].Address != "+3" {
		t.Fatalf("calls = %+v, want only +3", gw.calls)
	}
	for i := 0; i < 2; i++ {
		if !out[i].Skipped || !errors.Is(out[i].Err, ErrInvalidRecipient) {
			t.Errorf("out[%d] = %+v, want skipped invalid", i, out[i])
		}
	}
	if Failures(out) != 2 {
		t.Errorf("Failures = %d, want 2", Failures(out))
	}
	if len(observed) != 3 {
		t.Errorf("OnDelivery called %d times, want 3", len(observed))
	}
}

func TestDispatch_pauseBetweenAttempts(t *testing.T) {
	pause := 60 * time.Millisecond
	gw := &fakeGateway{latency: 40 * time.Millisecond, fail: map[string]error{"+2": errors.New("HTTP 500")}}
	d := &Dispatcher{Gateway: gw, Pause: pause}
	recipients := []Recipient{
		{Address: "+1", Credential: "a"},
		{Address: "+2", Credential: "b"},
		{Address: "", Credential: "skipped"},
		{Address: "+3", Credential: "c"},
	}
	d.Dispatch(context.Background(), "msg", recipients)
	if len(gw.startAt) != 3 {
		t.Fatalf("calls = %d", len(gw.startAt))
	}
	for i := 1; i < len(gw.startAt); i++ {
		// The idle gap is measured from the end of the previous attempt, so a
		// slow gateway does not eat into it. Allow scheduler jitter below nominal.
		if gap := gw.startAt[i].Sub(gw.endAt[i-1]); gap < pause-5*time.Millisecond {
			t.Errorf("idle gap before attempt %d = %v, want >= %v", i+1, gap, pause)
		}
	}
}

func TestDispatch_noPauseBeforeFirstAttempt(t *testing.T) {
	gw := &fakeGateway{}
	d := &Dispatcher{Gateway: gw, Pause: time.Hour}
	start := time.Now()
	d.Dispatch(context.Background(), "msg", []Recipient{{Address: "", Credential: "x"}, {Address: "+1", Credential: "a"}})
	if len(gw.startAt) != 1 {
		t.Fatalf("calls = %d", len(gw.startAt))
	}
	if wait := gw.startAt[0].Sub(start); wait > time.Second {
		t.Errorf("first attempt waited %v", wait)
	}
}

func TestDispatch_cancelledContext(t *testing.T) {
	gw := &fakeGateway{}
	d := &Dispatcher{Gateway: gw, Pause: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := d.Dispatch(ctx, "msg", []Recipient{{Address: "+1", Credential: "a"}, {Address: "+2", Credential: "b"}})
	if len(gw.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(gw.calls))
	}
	if Failures(out) != 2 {
		t.Errorf("Failures = %d, want 2", Failures(out))
	}
}

func TestDispatch_noRecipients(t *testing.T) {
	out := (&Dispatcher{Gateway: &fakeGateway{}}).Dispatch(context.Background(), "msg", nil)
	if len(out) != 0 {
		t.Errorf("out = %+v", out)
	}
}

func TestRecipient_String(t *testing.T) {
	r := Recipient{Address: "+573000000000", Credential: "secret"}
	if r.String() != "+573000000000" {
		t.Errorf("String = %q", r.String())
	}
	if (Recipient{}).String() != "<no address>" {
		t.Errorf("empty String = %q", Recipient{}.String())
	}
}
