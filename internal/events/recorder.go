package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Recorder is an in-memory Publisher.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

type Recorded struct {
	Aggregate string
	Event     CanonicalEvent
	Envelope  Envelope
}

func (r *Recorder) Publish(ctx context.Context, aggregate string, evt CanonicalEvent) error {
	env, err := newEnvelope(aggregate, evt, correlationFromContext(ctx))
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Aggregate: aggregate, Event: evt, Envelope: env})
	return nil
}

// Types lists recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event.EventType())
	}
	return out
}

func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Deliver replays recorded events through h as outbox entries.
func (r *Recorder) Deliver(ctx context.Context, h DeliveryHandler) error {
	for _, rec := range r.Events() {
		env := rec.Envelope
		payload, err := json.Marshal(env)
		if err != nil {
			return err
		}
		entry := OutboxEntry{
			ID:        env.EventID,
			Aggregate: env.Aggregate,
			Type:      env.EventType,
			Payload:   payload,
			CreatedAt: time.UnixMicro(env.TimestampMicros),
		}
		if err := h.Handle(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
