package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kingrea/focus/internal/broadcast"
	"github.com/kingrea/focus/internal/eventbridge"
	"github.com/kingrea/focus/internal/session"
)

func (s *Server) handleSettingsStream(w http.ResponseWriter, r *http.Request) {
	instanceID := r.URL.Query().Get("instance")
	sub := s.backend.SubscribeSettings(instanceID)
	defer sub.Close()
	stream(s, w, r, sub.Events, func(u broadcast.SettingUpdate) (string, string) {
		return "setting." + string(u.Property), u.InstanceID
	})
}

func (s *Server) handleSessionsStream(w http.ResponseWriter, r *http.Request) {
	sub := s.backend.SubscribeSessions()
	defer sub.Close()
	stream(s, w, r, sub.Events, func(e session.Event) (string, string) {
		return string(e.Type), e.SessionID
	})
}

// stream writes every event from events as an SSE frame carrying an
// eventbridge.Envelope until the client leaves or the channel closes.
func stream[E any](s *Server, w http.ResponseWriter, r *http.Request, events <-chan E, describe func(E) (string, string)) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("stream flush unsupported")
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			eventType, key := describe(event)
			envelope, err := s.sequencer.Wrap(eventType, key, event)
			if err != nil {
				s.log.Warn().Err(err).Str("type", eventType).Msg("wrap stream event")
				continue
			}
			if err := writeFrame(w, envelope); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, envelope eventbridge.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", envelope.Sequence, envelope.Type, data)
	return err
}
