package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"replypulse/internal/model"
	"replypulse/internal/service"
	"replypulse/internal/transport/rest/middleware"

	"github.com/gorilla/mux"
)

// ReportHandler handles report endpoints
type ReportHandler struct {
	reportSvc *service.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportSvc *service.ReportService) *ReportHandler {
	return &ReportHandler{reportSvc: reportSvc}
}

// Create handles POST /v1/reports
func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req service.CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.reportSvc.CreateReport(r.Context(), ownerID, req)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

// List handles GET /v1/reports
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	reports, err := h.reportSvc.ListReports(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

// Get handles GET /v1/reports/{id}
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["id"]

	report, err := h.reportSvc.GetReport(r.Context(), reportID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Replies handles GET /v1/reports/{id}/replies
func (h *ReportHandler) Replies(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["id"]
	qualifiedOnly := r.URL.Query().Get("qualified") == "true"

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	replies, err := h.reportSvc.ListReplies(r.Context(), reportID, qualifiedOnly, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, replies)
}

// Activity handles GET /v1/reports/{id}/activity
func (h *ReportHandler) Activity(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["id"]

	events, err := h.reportSvc.ListActivity(r.Context(), reportID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// GenerateSummary handles POST /v1/reports/{id}/summary
func (h *ReportHandler) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["id"]

	if err := h.reportSvc.StartSynthesis(r.Context(), reportID); err != nil {
		switch {
		case errors.Is(err, service.ErrReportNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrSummaryNotEligible):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "generating"})
}

func isValidationError(err error) bool {
	return errors.Is(err, model.ErrInvalidThreshold) ||
		errors.Is(err, model.ErrInvalidWeights) ||
		errors.Is(err, model.ErrInvalidRelevance) ||
		errors.Is(err, model.ErrInvalidMinLength) ||
		errors.Is(err, model.ErrInvalidFollowers) ||
		errors.Is(err, model.ErrMissingGoal) ||
		errors.Is(err, model.ErrMissingConversation)
}
