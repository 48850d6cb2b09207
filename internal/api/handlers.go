package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"whale-watch/internal/domain"
	"whale-watch/internal/settlement"
	"whale-watch/internal/storage"
)

// Query limits.
const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := storage.MovementQuery{Limit: defaultQueryLimit}

	if asset := r.URL.Query().Get("asset"); asset != "" {
		kind := domain.AssetKind(asset)
		if !kind.IsValid() {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown asset %q", asset))
			return
		}
		q.Asset = kind
	}
	category, ok := parseCategory(s, w, r)
	if !ok {
		return
	}
	q.Category = category
	if raw := r.URL.Query().Get("min_amount"); raw != "" {
		minAmount, err := strconv.ParseFloat(raw, 64)
		if err != nil || minAmount < 0 {
			s.writeError(w, http.StatusBadRequest, "min_amount must be a non-negative number")
			return
		}
		q.MinAmount = minAmount
	}
	limit, ok := parseLimit(s, w, r)
	if !ok {
		return
	}
	q.Limit = limit

	movements, err := s.movements.Query(r.Context(), q)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(movements),
		"movements": movements,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := storage.AlertQuery{Limit: defaultQueryLimit}

	if severity := r.URL.Query().Get("severity"); severity != "" {
		sev := domain.Severity(severity)
		if !sev.IsValid() {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown severity %q", severity))
			return
		}
		q.Severity = sev
	}
	category, ok := parseCategory(s, w, r)
	if !ok {
		return
	}
	q.Category = category
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || hours <= 0 {
			s.writeError(w, http.StatusBadRequest, "hours must be a positive number")
			return
		}
		q.Since = time.Now().Add(-time.Duration(hours * float64(time.Hour))).UnixMilli()
	}
	limit, ok := parseLimit(s, w, r)
	if !ok {
		return
	}
	q.Limit = limit

	alerts, err := s.alerts.Query(r.Context(), q)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	movements, err := s.movements.Query(ctx, storage.MovementQuery{})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	alerts, err := s.alerts.Query(ctx, storage.AlertQuery{})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	byAsset := map[string]int{}
	var totalVolume float64
	for _, m := range movements {
		byAsset[string(m.AssetKind)]++
		totalVolume += m.Amount
	}
	bySeverity := map[string]int{}
	for _, a := range alerts {
		bySeverity[string(a.Severity)]++
	}

	stats := map[string]any{
		"tracked_movements":  len(movements),
		"movements_by_asset": byAsset,
		"total_volume":       totalVolume,
		"alerts":             len(alerts),
		"alerts_by_severity": bySeverity,
	}
	if s.archive != nil {
		if archived, err := s.archive.CountByAsset(ctx); err != nil {
			s.logger.Printf("archive stats unavailable: %v", err)
		} else {
			stats["archived_by_asset"] = archived
		}
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())

	status := "ok"
	code := http.StatusOK
	if health.LastCycleError != "" {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":                status,
		"last_processed_height": health.LastProcessedHeight,
		"tracked_count":         health.TrackedCount,
		"last_cycle_at":         health.LastCycleAt,
		"last_cycle_error":      health.LastCycleError,
	})
}

type registerSubscriptionRequest struct {
	Target string                    `json:"target"`
	Secret string                    `json:"secret"`
	Filter domain.SubscriptionFilter `json:"filter"`
}

func (s *Server) handleRegisterSubscription(w http.ResponseWriter, r *http.Request) {
	var req registerSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sub, err := s.registry.Register(r.Context(), req.Target, req.Secret, req.Filter)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.registry.All(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":         len(subs),
		"subscriptions": subs,
	})
}

// handleListDeliveries returns the recent delivery receipts, oldest first.
// The receipt log is bounded and in-memory; it resets on restart.
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	attempts := s.dispatcher.History()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(attempts),
		"deliveries": attempts,
	})
}

func (s *Server) handleRevokeSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "subscription not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "revocation failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitPredictionRequest struct {
	AgentID      string `json:"agent_id"`
	MovementID   string `json:"movement_id"`
	Claim        string `json:"claim"`
	StakedAmount int64  `json:"staked_amount"`
}

func (s *Server) handleSubmitPrediction(w http.ResponseWriter, r *http.Request) {
	var req submitPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	prediction, err := s.orchestrator.Submit(r.Context(), req.AgentID, req.MovementID, req.Claim, req.StakedAmount)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidInput),
			errors.Is(err, settlement.ErrUnknownMovement),
			errors.Is(err, settlement.ErrStaleMovement):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, settlement.ErrInsufficientFunds):
			s.writeError(w, http.StatusPaymentRequired, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, "prediction submission failed")
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, prediction)
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	prediction, err := s.orchestrator.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "prediction not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, prediction)
}

type settlePredictionRequest struct {
	Verdict domain.Verdict `json:"verdict"`
}

func (s *Server) handleSettlePrediction(w http.ResponseWriter, r *http.Request) {
	var req settlePredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	prediction, err := s.orchestrator.Settle(r.Context(), r.PathValue("id"), req.Verdict)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidInput):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "prediction not found")
		default:
			s.writeError(w, http.StatusInternalServerError, "settlement failed")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, prediction)
}

// parseCategory reads and validates the category query parameter; reports
// false after writing an error response.
func parseCategory(s *Server, w http.ResponseWriter, r *http.Request) (domain.Category, bool) {
	raw := r.URL.Query().Get("category")
	if raw == "" {
		return "", true
	}
	category := domain.Category(raw)
	if !category.IsValid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", raw))
		return "", false
	}
	return category, true
}

// parseLimit reads the limit query parameter, applying the default and cap.
func parseLimit(s *Server, w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultQueryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	return limit, true
}
