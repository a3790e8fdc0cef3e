package session

import (
	"context"
	"time"

	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/internal/preset"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventStarted EventType = "session.started"
	EventStopped EventType = "session.stopped"
)

// InstanceInfo describes one running module instance.
type InstanceInfo struct {
	InstanceID string `json:"instance_id"`
	ModuleID   string `json:"module_id"`
	Module     string `json:"module"`
	Label      string `json:"label"`
}

// Event is published when a session starts or stops.
type Event struct {
	Type       EventType      `json:"type"`
	SessionID  string         `json:"session_id"`
	PresetID   string         `json:"preset_id"`
	PresetName string         `json:"preset_name"`
	Instances  []InstanceInfo `json:"instances"`
	At         time.Time      `json:"at"`
	// Errors lists teardown failures for stop events.
	Errors []string `json:"errors,omitempty"`

	// Session is the live session for in-process consumers. Its instances
	// are already disposed when Type is EventStopped.
	Session *ActiveSession `json:"-"`
}

// Publisher receives lifecycle events. Publish is called synchronously
// after the state transition it reports.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) { f(ctx, event) }

// Publishers fans an event out in order.
type Publishers []Publisher

func (p Publishers) Publish(ctx context.Context, event Event) {
	for _, pub := range p {
		if pub != nil {
			pub.Publish(ctx, event)
		}
	}
}

// ActiveSession is the single running session.
type ActiveSession struct {
	ID        string
	Preset    preset.Preset
	Instances []*module.Instance
	ByID      map[string]*module.Instance
	Labels    map[string]string
	StartedAt time.Time
}

// Instance returns the running instance with the given id.
func (s *ActiveSession) Instance(instanceID string) (*module.Instance, bool) {
	if s == nil {
		return nil, false
	}
	inst, ok := s.ByID[instanceID]
	return inst, ok
}

// Info lists the instances in start order.
func (s *ActiveSession) Info() []InstanceInfo {
	if s == nil {
		return nil
	}
	out := make([]InstanceInfo, 0, len(s.Instances))
	for _, inst := range s.Instances {
		out = append(out, InstanceInfo{
			InstanceID: inst.ID,
			ModuleID:   inst.Definition.ID,
			Module:     inst.Definition.Name,
			Label:      s.Labels[inst.ID],
		})
	}
	return out
}
