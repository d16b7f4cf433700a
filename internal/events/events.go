package events

import (
	"context"
	"log/slog"

	"github.com/AnuragDani/subscription-charger/internal/models"
)

// Event type constants
const (
	TypeSubscription = "subscription"
)

// Subscription event names
const (
	NameChargeSucceeded = "subscription.charge_succeeded"
	NameChargeExhausted = "subscription.charge_exhausted"
)

// Event is anything the dispatcher can deliver
type Event interface {
	Name() string
}

// ChargeSucceeded is emitted after a successful charge has been applied
type ChargeSucceeded struct {
	Transaction  *models.PayTransaction  `json:"transaction"`
	Subscription *models.SubscriptionItem `json:"subscription"`
	Response     *models.ChargeResponse  `json:"response"`
}

func (ChargeSucceeded) Name() string { return NameChargeSucceeded }

// ChargeExhausted is emitted once a subscription has used up its charge attempts
type ChargeExhausted struct {
	Subscription *models.SubscriptionItem `json:"subscription"`
}

func (ChargeExhausted) Name() string { return NameChargeExhausted }

// Envelope is the wire shape listeners publish
type Envelope struct {
	Type  string      `json:"type"`
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// NewEnvelope wraps an event for publishing
func NewEnvelope(e Event) Envelope {
	return Envelope{Type: TypeSubscription, Event: e.Name(), Data: e}
}

// Listener receives dispatched events
type Listener interface {
	Handle(ctx context.Context, e Event) error
}

// ListenerFunc adapts a function to a Listener
type ListenerFunc func(ctx context.Context, e Event) error

func (f ListenerFunc) Handle(ctx context.Context, e Event) error { return f(ctx, e) }

// Dispatcher delivers events synchronously to every registered listener.
// A listener error is logged and never stops delivery to the rest.
type Dispatcher struct {
	listeners []Listener
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over an explicit listener list
func NewDispatcher(logger *slog.Logger, listeners ...Listener) *Dispatcher {
	return &Dispatcher{listeners: listeners, logger: logger}
}

// Dispatch sends e to each listener in registration order
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) {
	if d == nil {
		return
	}
	for _, l := range d.listeners {
		if err := l.Handle(ctx, e); err != nil && d.logger != nil {
			d.logger.Error("event listener failed", "event", e.Name(), "error", err)
		}
	}
}
