package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/overlay"
	"github.com/evcraddock/proptech-copilot/internal/scenario"
)

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := map[string]string{"error": msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("encoding error response", "error", err)
	}
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

// apiFail maps a service error to a status code.
func apiFail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scenario.ErrValidation), errors.Is(err, overlay.ErrInvalidFloor):
		apiError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scenario.ErrPropertyNotFound),
		errors.Is(err, audit.ErrSessionNotFound),
		errors.Is(err, overlay.ErrNotFound):
		apiError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, overlay.ErrStorageTimeout), errors.Is(err, overlay.ErrStorageConflict):
		w.Header().Set("Retry-After", "1")
		apiError(w, "storage busy, retry the request", http.StatusServiceUnavailable)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		apiError(w, "internal error", http.StatusInternalServerError)
	}
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: invalid JSON body", scenario.ErrValidation)
}

// sessionID prefers the body's session id over the header.
func sessionID(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return r.Header.Get(SessionHeader)
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", scenario.ErrValidation, name)
	}
	return n, nil
}

type floorsRequest struct {
	Floors    []int  `json:"floors"`
	SessionID string `json:"session_id"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// apiListProperties returns the caller's effective view of every property.
func (s *Server) apiListProperties(w http.ResponseWriter, r *http.Request, userID string) {
	views, err := s.svc.Portfolio(r.Context(), userID)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, views, http.StatusOK)
}

func (s *Server) apiEffectiveView(w http.ResponseWriter, r *http.Request, userID string) {
	v, err := s.svc.EffectiveView(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, v, http.StatusOK)
}

func (s *Server) apiCloseFloors(w http.ResponseWriter, r *http.Request, userID string) {
	var req floorsRequest
	if err := decodeBody(r, &req); err != nil {
		apiFail(w, r, err)
		return
	}
	res, err := s.svc.CloseFloors(r.Context(), userID, mux.Vars(r)["id"], req.Floors, sessionID(r, req.SessionID))
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

func (s *Server) apiOpenFloors(w http.ResponseWriter, r *http.Request, userID string) {
	var req floorsRequest
	if err := decodeBody(r, &req); err != nil {
		apiFail(w, r, err)
		return
	}
	res, err := s.svc.OpenFloors(r.Context(), userID, mux.Vars(r)["id"], req.Floors, sessionID(r, req.SessionID))
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, res, http.StatusOK)
}

func (s *Server) apiReset(w http.ResponseWriter, r *http.Request, userID string) {
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil {
		apiFail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	deleted, err := s.svc.Reset(r.Context(), userID, id, sessionID(r, req.SessionID))
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, map[string]any{"property_id": id, "reset": deleted}, http.StatusOK)
}

func (s *Server) apiResetAll(w http.ResponseWriter, r *http.Request, userID string) {
	var req sessionRequest
	if err := decodeBody(r, &req); err != nil {
		apiFail(w, r, err)
		return
	}
	n, err := s.svc.ResetAll(r.Context(), userID, sessionID(r, req.SessionID))
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, map[string]int{"reset_count": n}, http.StatusOK)
}

func (s *Server) apiUpdateParams(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		scenario.ParamsRequest
		SessionID string `json:"session_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		apiFail(w, r, err)
		return
	}
	v, err := s.svc.UpdateParams(r.Context(), userID, mux.Vars(r)["id"], req.ParamsRequest, sessionID(r, req.SessionID))
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, v, http.StatusOK)
}

func (s *Server) apiSimulate(w http.ResponseWriter, r *http.Request, userID string) {
	var req scenario.SimulateRequest
	if err := decodeBody(r, &req); err != nil {
		apiFail(w, r, err)
		return
	}
	report, err := s.svc.Simulate(r.Context(), userID, mux.Vars(r)["id"], req)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, report, http.StatusOK)
}

func (s *Server) apiRecommendations(w http.ResponseWriter, r *http.Request, userID string) {
	recs, err := s.svc.Recommendations(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, recs, http.StatusOK)
}

func (s *Server) apiInsight(w http.ResponseWriter, r *http.Request, userID string) {
	in, err := s.svc.Insight(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, in, http.StatusOK)
}

func (s *Server) apiForecast(w http.ResponseWriter, r *http.Request, _ string) {
	points, err := s.svc.Forecast(mux.Vars(r)["id"])
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, points, http.StatusOK)
}

func (s *Server) apiRisk(w http.ResponseWriter, r *http.Request, userID string) {
	report, err := s.svc.Risk(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, report, http.StatusOK)
}

func (s *Server) apiEnergyScenarios(w http.ResponseWriter, r *http.Request, _ string) {
	ladder, err := s.svc.EnergyScenarios(mux.Vars(r)["id"])
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, ladder, http.StatusOK)
}

// apiChanges returns the caller's change log, filtered by query parameters.
func (s *Server) apiChanges(w http.ResponseWriter, r *http.Request, userID string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		apiFail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		apiFail(w, r, err)
		return
	}
	q := r.URL.Query()
	changes, err := s.svc.ChangeLog(r.Context(), userID, audit.Filter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		SessionID:  q.Get("session_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, changes, http.StatusOK)
}

func (s *Server) apiListOverlays(w http.ResponseWriter, r *http.Request, userID string) {
	states, err := s.svc.Overlays(r.Context(), userID)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, states, http.StatusOK)
}

func (s *Server) apiChangeStats(w http.ResponseWriter, r *http.Request, userID string) {
	stats, err := s.svc.ChangeStats(r.Context(), userID)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, stats, http.StatusOK)
}

func (s *Server) apiEntityHistory(w http.ResponseWriter, r *http.Request, userID string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		apiFail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	changes, err := s.svc.EntityHistory(r.Context(), userID, vars["type"], vars["id"], limit)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, changes, http.StatusOK)
}

func (s *Server) apiCreateSession(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		DeviceInfo string `json:"device_info"`
	}
	if err := decodeBody(r, &req); err != nil {
		apiFail(w, r, err)
		return
	}
	if req.DeviceInfo == "" {
		req.DeviceInfo = r.UserAgent()
	}
	sess, err := s.svc.CreateSession(r.Context(), userID, req.DeviceInfo, clientIP(r))
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, sess, http.StatusCreated)
}

func (s *Server) apiListSessions(w http.ResponseWriter, r *http.Request, userID string) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		apiFail(w, r, err)
		return
	}
	sessions, err := s.svc.ListSessions(r.Context(), userID, limit)
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, sessions, http.StatusOK)
}

func (s *Server) apiSessionSummary(w http.ResponseWriter, r *http.Request, userID string) {
	summary, err := s.svc.SessionSummary(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, summary, http.StatusOK)
}

func (s *Server) apiEndSession(w http.ResponseWriter, r *http.Request, userID string) {
	sess, err := s.svc.EndSession(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		apiFail(w, r, err)
		return
	}
	apiJSON(w, sess, http.StatusOK)
}

func (s *Server) apiDashboard(w http.ResponseWriter, r *http.Request, _ string) {
	apiJSON(w, s.svc.Dashboard(), http.StatusOK)
}

func (s *Server) apiBenchmark(w http.ResponseWriter, r *http.Request, _ string) {
	apiJSON(w, s.svc.Benchmark(), http.StatusOK)
}

func (s *Server) apiExecutiveSummary(w http.ResponseWriter, r *http.Request, _ string) {
	apiJSON(w, s.svc.ExecutiveSummary(), http.StatusOK)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
