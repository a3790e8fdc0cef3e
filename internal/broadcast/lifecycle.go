package broadcast

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/eventbridge"
	"github.com/kingrea/focus/internal/session"
)

// LifecycleHub routes session start and stop events to observers.
type LifecycleHub struct {
	router *eventbridge.Router[session.Event]
}

var _ session.Publisher = (*LifecycleHub)(nil)

// NewLifecycleHub builds a hub whose subscribers buffer up to buffer events.
func NewLifecycleHub(buffer int, logger zerolog.Logger) *LifecycleHub {
	return &LifecycleHub{
		router: eventbridge.NewRouter[session.Event]("sessions",
			eventbridge.RouterWithSubscriberCapacity(buffer),
			eventbridge.RouterWithLogger(logger)),
	}
}

func (h *LifecycleHub) Publish(_ context.Context, event session.Event) {
	h.router.Route(eventbridge.Wildcard, event)
}

// Subscribe returns every lifecycle event published after the call.
func (h *LifecycleHub) Subscribe() eventbridge.Subscription[session.Event] {
	return h.router.Subscribe(eventbridge.Wildcard)
}

func (h *LifecycleHub) Close() { h.router.Close() }
