// Package events emits entity lifecycle events after successful commits.
//
// # Overview
//
// Services call Emitter.Emit with an Event such as [user, create] once the
// write is durable. A Bus fans each event out to its subscribers, either
// inline or through an async.Runner so slow subscribers never hold up the
// request.
//
//	bus := events.NewBus(logger, runner)
//	bus.Subscribe(events.NewLogSubscriber(logger))
//	bus.Emit(ctx, events.Event{Resource: events.ResourceUser, Action: events.ActionCreate, ID: "charlie"})
package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/async"
)

// Resource names
const (
	ResourceUser         = "user"
	ResourceOrganization = "organization"
	ResourcePermission   = "permission"
)

// Actions
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDestroy = "destroy"
	ActionConfirm = "confirm"
	ActionForgot  = "forgot"
	ActionMail    = "mail"
)

// Event describes a committed change
type Event struct {
	Resource string         `json:"resource"`
	Action   string         `json:"action"`
	ID       string         `json:"id"`
	Actor    string         `json:"actor,omitempty"`
	Time     time.Time      `json:"time"`
	Data     map[string]any `json:"data,omitempty"`
}

// Emitter publishes events
type Emitter interface {
	Emit(ctx context.Context, evt Event)
}

// Subscriber consumes events
type Subscriber interface {
	Handle(ctx context.Context, evt Event) error
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(ctx context.Context, evt Event) error

// Handle implements Subscriber
func (f SubscriberFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Nop discards every event
type Nop struct{}

// Emit implements Emitter
func (Nop) Emit(context.Context, Event) {}

// Bus fans events out to subscribers
type Bus struct {
	mu      sync.RWMutex
	subs    []Subscriber
	runner  *async.Runner
	logger  *logrus.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewBus returns a bus. With a nil runner subscribers run inline and their
// errors are logged.
func NewBus(logger *logrus.Logger, runner *async.Runner) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		runner:  runner,
		logger:  logger,
		timeout: 10 * time.Second,
		now:     time.Now,
	}
}

// Subscribe registers s for every subsequent event
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

// Emit implements Emitter
func (b *Bus) Emit(ctx context.Context, evt Event) {
	if evt.Time.IsZero() {
		evt.Time = b.now().UTC()
	}

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		s := s
		if b.runner != nil {
			b.runner.Go(ctx, b.timeout, "event "+evt.Resource+"."+evt.Action, func(ctx context.Context) error {
				return s.Handle(ctx, evt)
			})
			continue
		}
		if err := s.Handle(ctx, evt); err != nil {
			b.logger.WithError(err).WithFields(logrus.Fields{
				"resource": evt.Resource,
				"action":   evt.Action,
			}).Warn("event subscriber failed")
		}
	}
}

// NewLogSubscriber writes each event as a structured log line
func NewLogSubscriber(logger *logrus.Logger) Subscriber {
	return SubscriberFunc(func(_ context.Context, evt Event) error {
		fields := logrus.Fields{
			"resource": evt.Resource,
			"action":   evt.Action,
			"id":       evt.ID,
		}
		if evt.Actor != "" {
			fields["actor"] = evt.Actor
		}
		for k, v := range evt.Data {
			fields["data."+k] = v
		}
		logger.WithFields(fields).Info("[" + evt.Resource + ", " + evt.Action + "]")
		return nil
	})
}

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter
func (r *Recorder) Emit(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Handle implements Subscriber
func (r *Recorder) Handle(ctx context.Context, evt Event) error {
	r.Emit(ctx, evt)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Actions returns "resource.action" for each recorded event
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Resource + "." + evt.Action
	}
	return out
}
