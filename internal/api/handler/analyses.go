// Package handler contains the HTTP handlers behind the chi router. Each
// constructor takes the narrow interface it depends on so tests can swap
// in fakes without standing up the full service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scholarai/gapfinder/internal/api/response"
	"github.com/scholarai/gapfinder/internal/gap"
	"github.com/scholarai/gapfinder/internal/store"
	"github.com/scholarai/gapfinder/pkg/models"
)

// Analyzer defines the orchestrator surface the handlers depend on.
type Analyzer interface {
	Submit(ctx context.Context, req models.AnalysisRequest) (*models.Analysis, error)
	Result(ctx context.Context, analysisID uuid.UUID) (*models.AnalysisResult, error)
}

// NewSubmitAnalysisHandler returns an http.HandlerFunc for POST /api/v1/analyses.
// The analysis is accepted and processed asynchronously; the client polls
// GET /api/v1/analyses/{analysisID} for the outcome. Resubmitting the same
// correlation_id restarts the existing analysis instead of creating a new one.
func NewSubmitAnalysisHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PaperID       string                `json:"paper_id"`
			ExtractionID  string                `json:"extraction_id"`
			CorrelationID string                `json:"correlation_id"`
			RequestID     string                `json:"request_id"`
			Config        models.AnalysisConfig `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.PaperID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "paper_id is required", nil)
			return
		}
		paperID, err := uuid.Parse(req.PaperID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "paper_id must be a valid UUID", nil)
			return
		}

		if req.ExtractionID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "extraction_id is required", nil)
			return
		}
		extractionID, err := uuid.Parse(req.ExtractionID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "extraction_id must be a valid UUID", nil)
			return
		}

		correlationID := req.CorrelationID
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		analysis, err := svc.Submit(r.Context(), models.AnalysisRequest{
			PaperID:       paperID,
			ExtractionID:  extractionID,
			CorrelationID: correlationID,
			RequestID:     req.RequestID,
			Config:        req.Config,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to start analysis", nil)
			return
		}

		response.Accepted(w, analysisResponse(analysis))
	}
}

// NewGetAnalysisHandler returns an http.HandlerFunc for
// GET /api/v1/analyses/{analysisID}. While the analysis is running only its
// status is returned; once terminal the full aggregated result is included.
func NewGetAnalysisHandler(svc Analyzer, s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := uuid.Parse(chi.URLParam(r, "analysisID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"analysisID must be a valid UUID", nil)
			return
		}

		result, err := svc.Result(r.Context(), analysisID)
		if err == nil {
			response.JSON(w, result)
			return
		}

		switch {
		case errors.Is(err, gap.ErrResultNotReady):
			analysis, err := s.GetAnalysis(r.Context(), analysisID)
			if err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to load analysis", nil)
				return
			}
			response.JSON(w, analysisResponse(analysis))
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis not found", nil)
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load analysis", nil)
		}
	}
}

// NewListAnalysesHandler returns an http.HandlerFunc for GET /api/v1/analyses.
// Supports paper_id, status, page, and limit query parameters.
func NewListAnalysesHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.AnalysisFilter{
			Status: r.URL.Query().Get("status"),
			Page:   queryInt(r, "page", 1),
			Limit:  queryInt(r, "limit", 20),
		}
		if raw := r.URL.Query().Get("paper_id"); raw != "" {
			paperID, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"paper_id must be a valid UUID", nil)
				return
			}
			filter.PaperID = paperID
		}

		analyses, total, err := s.ListAnalyses(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list analyses", nil)
			return
		}

		items := make([]*analysisBody, 0, len(analyses))
		for _, a := range analyses {
			items = append(items, analysisResponse(a))
		}
		response.Collection(w, items, response.PaginationMeta{
			Page:    filter.Page,
			Limit:   filter.Limit,
			Total:   total,
			HasNext: filter.Page*filter.Limit < total,
		})
	}
}

// NewListGapsHandler returns an http.HandlerFunc for
// GET /api/v1/analyses/{analysisID}/gaps. Gaps come back in generation order
// with whatever state each pipeline reached.
func NewListGapsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		analysisID, err := uuid.Parse(chi.URLParam(r, "analysisID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"analysisID must be a valid UUID", nil)
			return
		}

		if _, err := s.GetAnalysis(r.Context(), analysisID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load analysis", nil)
			return
		}

		gaps, err := s.ListGapsByAnalysis(r.Context(), analysisID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list gaps", nil)
			return
		}
		response.JSON(w, gaps)
	}
}

type analysisBody struct {
	ID            uuid.UUID             `json:"id"`
	PaperID       uuid.UUID             `json:"paper_id"`
	ExtractionID  uuid.UUID             `json:"extraction_id"`
	CorrelationID string                `json:"correlation_id"`
	RequestID     string                `json:"request_id"`
	Status        string                `json:"status"`
	TotalGaps     int                   `json:"total_gaps"`
	ValidGaps     int                   `json:"valid_gaps"`
	ErrorMessage  *string               `json:"error_message,omitempty"`
	Config        models.AnalysisConfig `json:"config"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

func analysisResponse(a *models.Analysis) *analysisBody {
	return &analysisBody{
		ID:            a.ID,
		PaperID:       a.PaperID,
		ExtractionID:  a.ExtractionID,
		CorrelationID: a.CorrelationID,
		RequestID:     a.RequestID,
		Status:        a.Status,
		TotalGaps:     a.TotalGaps,
		ValidGaps:     a.ValidGaps,
		ErrorMessage:  a.ErrorMessage,
		Config:        a.Config,
		StartedAt:     a.StartedAt,
		CompletedAt:   a.CompletedAt,
		CreatedAt:     a.CreatedAt,
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
