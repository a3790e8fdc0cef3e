// Package eventbridge fans runtime events out to in-process and remote
// observers.
package eventbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// ProtocolVersion identifies the bridge contract version exposed via /health.
	ProtocolVersion = "2.0.0"
	// EventSchemaVersion is the envelope version written to streams.
	EventSchemaVersion = 2
)

// Envelope wraps an event for delivery to remote observers.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	Sequence   int64           `json:"sequence"`
	Type       string          `json:"type"`
	Key        string          `json:"key,omitempty"`
	ServerTime time.Time       `json:"server_time"`
	Payload    json.RawMessage `json:"payload"`
}

// Validate enforces baseline schema requirements.
func (e Envelope) Validate() error {
	if e.Version != EventSchemaVersion {
		return fmt.Errorf("version %d not supported", e.Version)
	}
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("type is required")
	}
	if len(e.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

// Sequencer stamps envelopes with ids and a monotonically increasing
// sequence number.
type Sequencer struct {
	next atomic.Int64
	now  func() time.Time
}

func NewSequencer() *Sequencer {
	return &Sequencer{now: time.Now}
}

// Wrap encodes payload into a new envelope.
func (s *Sequencer) Wrap(eventType, key string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbridge: encode %s: %w", eventType, err)
	}
	return Envelope{
		Version:    EventSchemaVersion,
		EventID:    uuid.NewString(),
		Sequence:   s.next.Add(1),
		Type:       strings.TrimSpace(eventType),
		Key:        key,
		ServerTime: s.now().UTC(),
		Payload:    data,
	}, nil
}
