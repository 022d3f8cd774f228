// Package hook fans user activity (a chapter read, a check-in) out to the
// subsystems that react to it, such as daily missions and the audit trail.
package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Activity event names.
const (
	ChapterRead  = "chapter_read"
	DailyCheckin = "daily_checkin"
)

// Events lists every activity event a subscriber may bind to.
var Events = []string{ChapterRead, DailyCheckin}

// ErrInterrupt signals that a handler wants to stop further processing.
var ErrInterrupt = errors.New("hook interrupted")

// Activity is the payload passed through the handler chain. Handlers attach
// their results with Put; the trigger site reads them back after Trigger.
type Activity struct {
	Event     string
	UserID    int64
	ChapterID *int64

	mu      sync.Mutex
	outputs map[string]interface{}
}

func NewActivity(event string, userID int64, chapterID *int64) *Activity {
	return &Activity{Event: event, UserID: userID, ChapterID: chapterID}
}

func (a *Activity) Put(key string, v interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outputs == nil {
		a.outputs = make(map[string]interface{})
	}
	a.outputs[key] = v
}

func (a *Activity) Output(key string) (interface{}, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.outputs[key]
	return v, ok
}

// Outputs returns a copy of everything handlers attached.
func (a *Activity) Outputs() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]interface{}, len(a.outputs))
	for k, v := range a.outputs {
		out[k] = v
	}
	return out
}

// Handler reacts to an activity. Returning ErrInterrupt stops the chain;
// any other error is ignored by the center, so handlers record their own failures.
type Handler func(ctx context.Context, act *Activity) error

type entry struct {
	priority int
	name     string
	fn       Handler
}

// Center manages handler registrations per event.
type Center struct {
	mu       sync.RWMutex
	handlers map[string][]*entry
}

func NewCenter() *Center {
	return &Center{handlers: make(map[string][]*entry)}
}

// Register adds fn for event with the given priority (lower runs first).
// name is used for Unregister.
func (c *Center) Register(event string, priority int, name string, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.handlers[event], &entry{priority: priority, name: name, fn: fn})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.handlers[event] = entries
}

// Unregister removes every handler called name, across all events when event is empty.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ev, entries := range c.handlers {
		if event != "" && ev != event {
			continue
		}
		kept := entries[:0:0]
		for _, e := range entries {
			if e.name != name {
				kept = append(kept, e)
			}
		}
		c.handlers[ev] = kept
	}
}

// Names lists the handlers registered for event in execution order.
func (c *Center) Names(event string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handlers[event]))
	for _, e := range c.handlers[event] {
		names = append(names, e.name)
	}
	return names
}

// Trigger runs the handlers for act.Event in priority order.
func (c *Center) Trigger(ctx context.Context, act *Activity) error {
	c.mu.RLock()
	entries := make([]*entry, len(c.handlers[act.Event]))
	copy(entries, c.handlers[act.Event])
	c.mu.RUnlock()

	for _, e := range entries {
		if err := e.fn(ctx, act); errors.Is(err, ErrInterrupt) {
			return err
		}
	}
	return nil
}
