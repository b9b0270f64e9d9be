// Package notify delivers the run summary to each recipient through a messaging gateway.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPause spaces consecutive delivery attempts so the gateway does not throttle the sender.
const DefaultPause = 2 * time.Second

// ErrInvalidRecipient marks a recipient skipped for a missing address or credential.
var ErrInvalidRecipient = errors.New("invalid recipient")

// Recipient is one gateway destination. Credential is a per-recipient API key.
type Recipient struct {
	Address    string `json:"address"`
	Credential string `json:"credential"`
}

// Valid reports whether both fields are non-blank.
func (r Recipient) Valid() bool {
	return strings.TrimSpace(r.Address) != "" && strings.TrimSpace(r.Credential) != ""
}

// String never includes the credential.
func (r Recipient) String() string {
	if r.Address == "" {
		return "<no address>"
	}
	return r.Address
}

// Gateway sends message to one recipient and returns the gateway's HTTP status.
// A non-nil error means the message was not delivered.
type Gateway interface {
	Deliver(ctx context.Context, message string, r Recipient) (int, error)
}

// Delivery is the per-recipient result of Dispatch.
type Delivery struct {
	Recipient  Recipient
	OK         bool
	Skipped    bool
	StatusCode int
	Err        error
}

// Dispatcher sends one message to many recipients, strictly in order.
type Dispatcher struct {
	Gateway Gateway
	// Pause is the idle time between the end of one attempt and the start of
	// the next, whatever the outcome. Zero disables it.
	Pause time.Duration
	// OnDelivery, if set, is called after every recipient (metrics).
	OnDelivery func(Delivery)
}

// Dispatch attempts every valid recipient once. A failed delivery is recorded
// and the next recipient is still attempted; invalid recipients are skipped
// without a request. If ctx is cancelled, the remaining recipients are recorded
// as failed with ctx's error.
func (d *Dispatcher) Dispatch(ctx context.Context, message string, recipients []Recipient) []Delivery {
	// lim is nil until the first attempt ends; afterwards its next token is
	// Pause after the end of the previous attempt.
	var lim *rate.Limiter
	out := make([]Delivery, 0, len(recipients))
	for _, r := range recipients {
		del := Delivery{Recipient: r}
		switch {
		case !r.Valid():
			del.Skipped = true
			del.Err = fmt.Errorf("%w: %s", ErrInvalidRecipient, r)
			log.Printf("Skipping recipient %s: missing address or credential", r)
		case ctx.Err() != nil:
			del.Err = ctx.Err()
		default:
			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					del.Err = err
					break
				}
			}
			log.Printf("Sending to %s ...", r)
			del.StatusCode, del.Err = d.Gateway.Deliver(ctx, message, r)
			lim = d.pauseFrom(time.Now())
			del.OK = del.Err == nil
			if del.OK {
				log.Printf("Message sent to %s (HTTP %d)", r, del.StatusCode)
			} else {
				log.Printf("Send to %s failed: %v", r, del.Err)
			}
		}
		out = append(out, del)
		if d.OnDelivery != nil {
			d.OnDelivery(del)
		}
	}
	return out
}

// pauseFrom returns a limiter whose only token becomes available Pause after now.
func (d *Dispatcher) pauseFrom(now time.Time) *rate.Limiter {
	if d.Pause <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	lim := rate.NewLimiter(rate.Every(d.Pause), 1)
	lim.AllowN(now, 1)
	return lim
}

// Failures counts deliveries that did not succeed, skipped recipients included.
func Failures(ds []Delivery) int {
	n := 0
	for _, d := range ds {
		if !d.OK {
			n++
		}
	}
	return n
}
