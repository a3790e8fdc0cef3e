package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kingrea/focus/internal/eventbridge"
	"github.com/kingrea/focus/internal/module"
	"github.com/kingrea/focus/internal/preset"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/sdk"
)

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	State         string `json:"session_state"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Module     string `json:"module,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	Phase      string `json:"phase,omitempty"`
	Field      string `json:"field,omitempty"`
}

type presetSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Modules int    `json:"modules"`
}

type startRequest struct {
	PresetID string `json:"preset_id"`
}

type captureRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// settingRequest carries either a typed value or its text form.
type settingRequest struct {
	Value *sdk.Value `json:"value,omitempty"`
	Raw   *string    `json:"raw,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        string(s.Status()),
		Version:       eventbridge.ProtocolVersion,
		UptimeSeconds: s.uptimeSeconds(),
		State:         s.backend.SessionStatus().State.String(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListModules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.ListModules())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.RefreshCatalog(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	problems := make([]string, 0)
	for _, problem := range s.backend.DiscoveryProblems() {
		problems = append(problems, problem.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modules":  s.backend.ListModules(),
		"problems": problems,
	})
}

func (s *Server) handleModuleSettings(w http.ResponseWriter, r *http.Request) {
	views, err := s.backend.GetModuleSettings(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	presets, err := s.backend.ListPresets()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	out := make([]presetSummary, 0, len(presets))
	for _, p := range presets {
		out = append(out, presetSummary{ID: p.ID, Name: p.Name, Modules: len(p.Modules)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.backend.GetPreset(r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writePreset(w, http.StatusOK, p)
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	p, err := preset.Decode(body)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	saved, err := s.backend.SavePreset(p)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writePreset(w, http.StatusCreated, saved)
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeletePreset(r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.PresetID == "" {
		writeError(w, http.StatusBadRequest, "preset_id is required")
		return
	}
	if _, err := s.backend.StartSession(r.Context(), req.PresetID); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.backend.SessionStatus())
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.SessionStatus())
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.StopSession(r.Context()); err != nil {
		var noSession *session.NoActiveSessionError
		if errors.As(err, &noSession) {
			s.writeFailure(w, err)
			return
		}
		// Teardown errors do not keep the session alive.
		writeJSON(w, http.StatusOK, map[string]any{"state": s.backend.SessionStatus().State, "errors": unjoin(err)})
		return
	}
	writeJSON(w, http.StatusOK, s.backend.SessionStatus())
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	p, err := s.backend.CapturePreset(req.ID, req.Name)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writePreset(w, http.StatusCreated, p)
}

func (s *Server) handleInstanceSettings(w http.ResponseWriter, r *http.Request) {
	views, err := s.backend.InstanceSettings(r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	instanceID, key := r.PathValue("id"), r.PathValue("key")
	var err error
	switch {
	case req.Value != nil:
		err = s.backend.UpdateSetting(r.Context(), instanceID, key, *req.Value)
	case req.Raw != nil:
		err = s.backend.UpdateSettingRaw(r.Context(), instanceID, key, *req.Raw)
	default:
		writeError(w, http.StatusBadRequest, "value or raw is required")
		return
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInstanceActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.backend.InstanceActions(r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if actions == nil {
		actions = []sdk.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleInvokeAction(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.InvokeAction(r.Context(), r.PathValue("id"), r.PathValue("key")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload exceeds limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "unable to read body")
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := s.readBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) writePreset(w http.ResponseWriter, status int, p preset.Preset) {
	data, err := preset.Encode(p)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeFailure maps runtime errors onto HTTP statuses.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	var startErr *session.StartError
	if errors.As(err, &startErr) {
		resp.Module = startErr.Module
		resp.InstanceID = startErr.InstanceID
		resp.Phase = string(startErr.Phase)
		resp.Field = startErr.Field
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	var validation *sdk.ValidationError
	switch {
	case errors.Is(err, preset.ErrNotFound),
		errors.Is(err, module.ErrUnknownModule),
		errors.Is(err, session.ErrUnknownInstance),
		errors.Is(err, sdk.ErrUnknownSetting),
		errors.Is(err, sdk.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyRunning),
		errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, module.ErrInstancesOutstanding):
		return http.StatusConflict
	case errors.Is(err, sdk.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, session.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, preset.ErrInvalid),
		errors.Is(err, preset.ErrUnsupportedVersion),
		errors.Is(err, session.ErrEmptySession),
		errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func unjoin(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		out := make([]string, 0)
		for _, inner := range joined.Unwrap() {
			out = append(out, inner.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}
