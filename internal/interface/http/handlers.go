package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/application/command"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown endpoint")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "Kotoba Progress Engine API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":   "/health",
			"metrics":  "/metrics",
			"triggers": "/api/v1/triggers",
			"progress": "/api/v1/users/{id}/progress",
			"daily":    "/api/v1/users/{id}/daily",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		status := s.deps.Health.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if status := s.deps.Health.Check(r.Context()); !status.Healthy {
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "Dependency check failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
	}
	if s.deps.Metrics != nil {
		metrics["dispatcher"] = s.deps.Metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGER INTAKE
// ══════════════════════════════════════════════════════════════════════════════

// triggerRequest is the wire form of an enqueued trigger.
type triggerRequest struct {
	Kind       string    `json:"kind"`
	UserID     int64     `json:"user_id"`
	AuxID      int64     `json:"aux_id,omitempty"`
	Correct    bool      `json:"correct,omitempty"`
	DedupToken string    `json:"dedup_token"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// handleEnqueueTrigger handles POST /api/v1/triggers.
//
// The endpoint acknowledges with 202 once the trigger is queued; evaluation
// happens asynchronously on the user's dispatcher lane.
func (s *Server) handleEnqueueTrigger(w http.ResponseWriter, r *http.Request) {
	if s.deps.Enqueuer == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Trigger intake not configured")
		return
	}

	if s.config.AuthToken != "" {
		if r.Header.Get("Authorization") != "Bearer "+s.config.AuthToken {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid bearer token")
			return
		}
	}

	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	defer body.Close()

	var req triggerRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
		return
	}

	trg := shared.Trigger{
		Kind:       shared.TriggerKind(req.Kind),
		UserID:     req.UserID,
		AuxID:      req.AuxID,
		Correct:    req.Correct,
		DedupToken: req.DedupToken,
		OccurredAt: req.OccurredAt,
	}

	if err := s.validate.Struct(trg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_trigger", err.Error())
		return
	}
	if !trg.Kind.Known() {
		writeJSONError(w, http.StatusBadRequest, "unknown_kind", "Unknown trigger kind: "+req.Kind)
		return
	}

	if err := s.deps.Enqueuer.Enqueue(r.Context(), trg); err != nil {
		if errors.Is(err, messaging.ErrDispatcherClosed) {
			writeJSONError(w, http.StatusServiceUnavailable, "shutting_down", "Trigger intake is shutting down")
			return
		}
		s.logger.Error("failed to enqueue trigger",
			slog.String("kind", string(trg.Kind)),
			slog.Int64("user_id", trg.UserID),
			slog.Any("error", err),
		)
		writeJSONError(w, http.StatusInternalServerError, "enqueue_failed", "Failed to queue trigger")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":      true,
		"kind":        req.Kind,
		"user_id":     req.UserID,
		"dedup_token": req.DedupToken,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK FREEZE
// ══════════════════════════════════════════════════════════════════════════════

// freezeRequest optionally names the day to freeze; empty means today.
type freezeRequest struct {
	Day string `json:"day,omitempty"`
}

// handleApplyFreeze handles POST /api/v1/users/{id}/freeze.
//
// Unlike triggers, freezes apply synchronously so the caller learns
// whether the token was actually consumed.
func (s *Server) handleApplyFreeze(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if s.deps.Freeze == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Freeze handling not configured")
		return
	}

	var req freezeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
			return
		}
	}

	day := time.Now()
	if req.Day != "" {
		parsed, err := s.deps.Calendar.ParseDay(req.Day)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_day", "Day must be formatted YYYY-MM-DD")
			return
		}
		day = parsed
	}

	result, err := s.deps.Freeze.Handle(r.Context(), command.ApplyFreezeCommand{UserID: userID, Day: day})
	if err != nil {
		s.logger.Error("failed to apply freeze",
			slog.Int64("user_id", userID),
			slog.Any("error", err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to apply freeze")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"consumed": result.Consumed,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ-SIDE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetUserProgress handles GET /api/v1/users/{id}/progress.
func (s *Server) handleGetUserProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if s.deps.UserProgress == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress queries not configured")
		return
	}

	view, err := s.deps.UserProgress.Handle(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to load user progress",
			slog.Int64("user_id", userID),
			slog.Any("error", err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to load user progress")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// handleGetDailyProgress handles GET /api/v1/users/{id}/daily.
func (s *Server) handleGetDailyProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if s.deps.DailyProgress == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress queries not configured")
		return
	}

	view, err := s.deps.DailyProgress.Handle(r.Context(), userID, time.Now())
	if err != nil {
		s.logger.Error("failed to load daily progress",
			slog.Int64("user_id", userID),
			slog.Any("error", err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to load daily progress")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// pathUserID parses the {id} path segment, writing a 400 on failure.
func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_user_id", "User id must be a positive integer")
		return 0, false
	}
	return id, true
}
