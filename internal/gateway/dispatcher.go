package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// notPublicMessage is the private response sent when a user presses a
// component that belongs to someone else's interaction.
const notPublicMessage = "This component is not for you."

// Dispatcher matches inbound events to registered handlers and invokes
// them. Each handler runs in its own goroutine; errors and panics are
// contained at the dispatch boundary so one misbehaving handler never
// affects dispatch of subsequent events.
type Dispatcher struct {
	registry   *Registry
	interactor Interactor
	correlator *Correlator

	wg sync.WaitGroup
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Registry   *Registry
	Interactor Interactor
	Correlator *Correlator // optional; consumes awaited modal submissions
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("gateway: dispatcher: registry is required")
	}
	if opts.Interactor == nil {
		return nil, fmt.Errorf("gateway: dispatcher: interactor is required")
	}
	return &Dispatcher{
		registry:   opts.Registry,
		interactor: opts.Interactor,
		correlator: opts.Correlator,
	}, nil
}

// Dispatch routes one event. Modal submissions are first offered to the
// correlator: a handler blocked on Wait for this (custom ID, user) pair
// consumes the event and no registered modal handler runs. Unmatched
// events are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) {
	if ev.Kind == KindModal && d.correlator != nil && d.correlator.Deliver(ev) {
		return
	}

	h, ok := d.registry.Resolve(ev.Kind, ev.Key)
	if !ok {
		log.Printf("gateway: no handler for %s %q", ev.Kind, ev.Key)
		return
	}

	// Ownership is only checkable when the platform told us who the
	// component's message belongs to. DMs sent by the bot carry no
	// initiator; their sole recipient is the rightful user.
	if h.OwnerOnly && ev.InitiatorID != "" && ev.UserID != ev.InitiatorID {
		if err := d.interactor.Respond(ctx, ev.Ref, Response{Content: notPublicMessage, Private: true}); err != nil {
			log.Printf("gateway: respond not-public for %s %q: %v", ev.Kind, ev.Key, err)
		}
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("gateway: handler %s %q panicked: %v", ev.Kind, ev.Key, r)
			}
		}()
		if err := h.Run(ctx, ev); err != nil {
			log.Printf("gateway: handler %s %q: %v", ev.Kind, ev.Key, err)
		}
	}()
}

// Drain blocks until all in-flight handlers have returned. Used during
// shutdown and in tests.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}
