package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/datamantri/internal/models"
	"github.com/good-yellow-bee/datamantri/internal/scheduler"
	"github.com/good-yellow-bee/datamantri/internal/storage"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeConflict         = "CONFLICT"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func (h *Handler) jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		h.logger.Warn("json encode error", zap.Error(err))
	}
}

func (h *Handler) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		h.logger.Warn("json encode error", zap.Error(err))
	}
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	h.jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
}

// Response types
type AlertResponse struct {
	ID              string                      `json:"id"`
	Name            string                      `json:"name"`
	Description     string                      `json:"description,omitempty"`
	ConditionType   string                      `json:"condition_type"`
	ConditionConfig map[string]any              `json:"condition_config"`
	Channels        []models.Channel            `json:"channels"`
	Recipients      map[models.Channel][]string `json:"recipients"`
	IsActive        bool                        `json:"is_active"`
	LastTriggeredAt string                      `json:"last_triggered_at,omitempty"`
	TriggerCount    int                         `json:"trigger_count"`
	CreatedAt       string                      `json:"created_at"`
	UpdatedAt       string                      `json:"updated_at"`
}

type AlertHistoryResponse struct {
	ID                string                                  `json:"id"`
	AlertID           string                                  `json:"alert_id"`
	AlertName         string                                  `json:"alert_name"`
	TriggeredAt       string                                  `json:"triggered_at"`
	Severity          string                                  `json:"severity"`
	ConditionMet      map[string]any                          `json:"condition_met"`
	NotificationsSent map[models.Channel]models.ChannelResult `json:"notifications_sent"`
	ResolvedAt        string                                  `json:"resolved_at,omitempty"`
	ResolvedBy        string                                  `json:"resolved_by,omitempty"`
	ResolutionNotes   string                                  `json:"resolution_notes,omitempty"`
}

type HistoryListResponse struct {
	Items      []*AlertHistoryResponse `json:"items"`
	Total      int64                   `json:"total"`
	Page       int                     `json:"page"`
	PerPage    int                     `json:"per_page"`
	TotalPages int                     `json:"total_pages"`
}

// EvaluateResponse reports the outcome of an on-demand evaluation.
type EvaluateResponse struct {
	Triggered     bool                                    `json:"triggered"`
	Severity      string                                  `json:"severity,omitempty"`
	Details       map[string]any                          `json:"details,omitempty"`
	Notifications map[models.Channel]models.ChannelResult `json:"notifications,omitempty"`
	HistoryID     string                                  `json:"history_id,omitempty"`
	Warning       string                                  `json:"warning,omitempty"`
}

// Runner evaluates a single alert on demand.
type Runner interface {
	RunAlert(ctx context.Context, id string) (*scheduler.Outcome, error)
}

// Handler handles alert and alert history endpoints.
type Handler struct {
	alerts  storage.AlertRepository
	history storage.AlertHistoryRepository
	runner  Runner
	now     func() time.Time
	logger  *zap.Logger
}

func NewHandler(alerts storage.AlertRepository, history storage.AlertHistoryRepository, runner Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		alerts:  alerts,
		history: history,
		runner:  runner,
		now:     time.Now,
		logger:  logger.Named("api.alerts"),
	}
}

// Request types
type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

type ResolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
	Notes      string `json:"notes"`
}

// List returns all alerts.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		alerts []*models.Alert
		err    error
	)
	if r.URL.Query().Get("active") == "true" {
		alerts, err = h.alerts.ListActive(ctx)
	} else {
		alerts, err = h.alerts.List(ctx)
	}
	if err != nil {
		h.internalError(w, "list alerts", err)
		return
	}

	resp := make([]*AlertResponse, len(alerts))
	for i, a := range alerts {
		resp[i] = alertToResponse(a)
	}
	h.jsonOK(w, resp)
}

// GetByID returns an alert by ID.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	h.jsonOK(w, alertToResponse(alert))
}

// SetActive enables or disables an alert.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.IsActive == nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "is_active is required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.alerts.SetActive(r.Context(), id, *req.IsActive); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
			return
		}
		h.internalError(w, "set alert active", err)
		return
	}

	h.logger.Info("alert active state changed", zap.String("alert_id", id), zap.Bool("is_active", *req.IsActive))
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	h.jsonOK(w, alertToResponse(alert))
}

// Delete deletes an alert and its history.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.alerts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
			return
		}
		h.internalError(w, "delete alert", err)
		return
	}

	h.logger.Info("alert deleted", zap.String("alert_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate runs the alert's check now and notifies if it triggers.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	outcome, err := h.runner.RunAlert(r.Context(), id)
	switch {
	case errors.Is(err, scheduler.ErrAlertNotFound):
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	case errors.Is(err, scheduler.ErrAlertInactive):
		h.jsonError(w, http.StatusConflict, errCodeConflict, "alert is inactive")
		return
	case err != nil:
		h.internalError(w, "evaluate alert", err)
		return
	}

	resp := EvaluateResponse{Triggered: outcome.Triggered()}
	if outcome.Triggered() {
		resp.Severity = string(outcome.Payload.Severity)
		resp.Details = outcome.Payload.Details
		resp.Notifications = outcome.Results
		if outcome.Err == nil {
			resp.HistoryID = outcome.History.ID
		} else {
			resp.Warning = "alert triggered but history could not be saved"
		}
	}
	h.jsonOK(w, resp)
}

// AlertHistory returns the history of one alert with pagination.
func (h *Handler) AlertHistory(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}

	page, perPage := ParsePagination(r)
	histories, total, err := h.history.ListByAlert(r.Context(), alert.ID, perPage, (page-1)*perPage)
	if err != nil {
		h.internalError(w, "list alert history", err)
		return
	}
	h.jsonOK(w, historyList(histories, total, page, perPage))
}

// History returns all alert history with pagination, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page, perPage := ParsePagination(r)
	histories, total, err := h.history.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.internalError(w, "list history", err)
		return
	}
	h.jsonOK(w, historyList(histories, total, page, perPage))
}

// Resolve marks a history entry as resolved. A second resolve is a conflict.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if err := ValidateResolvedBy(req.ResolvedBy); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	err := h.history.Resolve(ctx, id, strings.TrimSpace(req.ResolvedBy), strings.TrimSpace(req.Notes), h.now().UTC())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "history entry not found")
		return
	case errors.Is(err, storage.ErrAlreadyResolved):
		h.jsonError(w, http.StatusConflict, errCodeConflict, "history entry already resolved")
		return
	case err != nil:
		h.internalError(w, "resolve history", err)
		return
	}

	entry, err := h.history.GetByID(ctx, id)
	if err != nil || entry == nil {
		h.internalError(w, "reload history", err)
		return
	}

	h.logger.Info("alert history resolved", zap.String("history_id", id), zap.String("resolved_by", entry.ResolvedBy))
	h.jsonOK(w, historyToResponse(entry))
}

func (h *Handler) loadAlert(w http.ResponseWriter, r *http.Request) (*models.Alert, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, "alert id required")
		return nil, false
	}

	alert, err := h.alerts.GetByID(r.Context(), id)
	if err != nil {
		h.internalError(w, "get alert", err)
		return nil, false
	}
	if alert == nil {
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return nil, false
	}
	return alert, true
}

// ParsePagination reads page (default 1) and per_page (default 50, max 100).
func ParsePagination(r *http.Request) (page, perPage int) {
	page, perPage = 1, 50
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if pp := r.URL.Query().Get("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 && v <= 100 {
			perPage = v
		}
	}
	return page, perPage
}

func historyList(histories []*models.AlertHistory, total int64, page, perPage int) HistoryListResponse {
	items := make([]*AlertHistoryResponse, len(histories))
	for i, hist := range histories {
		items[i] = historyToResponse(hist)
	}
	return HistoryListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: int((total + int64(perPage) - 1) / int64(perPage)),
	}
}

func alertToResponse(a *models.Alert) *AlertResponse {
	recipients := make(map[models.Channel][]string, len(a.Recipients))
	for ch := range a.Recipients {
		recipients[ch] = a.RecipientsFor(ch)
	}

	resp := &AlertResponse{
		ID:              a.ID,
		Name:            a.Name,
		Description:     a.Description,
		ConditionType:   string(a.ConditionType),
		ConditionConfig: a.ConditionConfig,
		Channels:        a.Channels,
		Recipients:      recipients,
		IsActive:        a.IsActive,
		TriggerCount:    a.TriggerCount,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.Format(time.RFC3339),
	}
	if a.LastTriggeredAt != nil {
		resp.LastTriggeredAt = a.LastTriggeredAt.Format(time.RFC3339)
	}
	return resp
}

func historyToResponse(h *models.AlertHistory) *AlertHistoryResponse {
	resp := &AlertHistoryResponse{
		ID:                h.ID,
		AlertID:           h.AlertID,
		AlertName:         h.AlertName,
		TriggeredAt:       h.TriggeredAt.Format(time.RFC3339),
		Severity:          string(h.Severity),
		ConditionMet:      h.ConditionMet,
		NotificationsSent: h.NotificationsSent,
		ResolvedBy:        h.ResolvedBy,
		ResolutionNotes:   h.ResolutionNotes,
	}
	if h.ResolvedAt != nil {
		resp.ResolvedAt = h.ResolvedAt.Format(time.RFC3339)
	}
	return resp
}
