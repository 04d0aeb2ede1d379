package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"clinsight/internal/index"
	"clinsight/internal/pipeline"
	"clinsight/models"
)

type summaryRequest struct {
	ClinicalNote       string `json:"clinical_note"`
	LanguagePreference string `json:"language_preference,omitempty"`
	RequestID          string `json:"request_id,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleSummarize runs one note through the pipeline and maps its typed
// errors onto HTTP statuses. A PHI rejection is 422 with a distinct code so
// clients can tell "edit your input" apart from "we broke".
func (s *Server) handleSummarize(c echo.Context) error {
	var req summaryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: err.Error()})
	}

	resp, err := s.pipe.ProcessNote(c.Request().Context(), models.NoteRequest{
		ClinicalNote:       req.ClinicalNote,
		LanguagePreference: req.LanguagePreference,
		RequestID:          req.RequestID,
	})
	if err != nil {
		var (
			phiErr *pipeline.PhiError
			valErr *pipeline.ValidationError
			extErr *pipeline.ExternalServiceError
		)
		switch {
		case errors.As(err, &phiErr):
			return c.JSON(http.StatusUnprocessableEntity, errorBody{
				Code:    "PHI_DETECTED",
				Message: "note contains identifying information; remove it and resubmit",
			})
		case errors.As(err, &valErr):
			return c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_INPUT", Message: valErr.Reason})
		case errors.As(err, &extErr):
			return c.JSON(http.StatusBadGateway, errorBody{Code: "UPSTREAM_FAILED", Message: extErr.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"})
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleCorpusSearch answers keyword queries against the evidence corpus, for
// clinicians checking what a recommendation was grounded on.
func (s *Server) handleCorpusSearch(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_INPUT", Message: "q is required"})
	}
	k := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			return c.JSON(http.StatusBadRequest, errorBody{Code: "INVALID_INPUT", Message: "limit must be 1..50"})
		}
		k = n
	}
	hits, err := s.index.KeywordSearch(q, k)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: err.Error()})
	}
	if hits == nil {
		hits = []index.KeywordHit{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"query": q, "hits": hits})
}

// handleAuditLookup returns the tamper-evident audit entries for a request id.
func (s *Server) handleAuditLookup(c echo.Context) error {
	id := c.Param("request_id")
	if s.auditLookup == nil {
		return c.JSON(http.StatusNotImplemented, errorBody{Code: "UNSUPPORTED", Message: "audit lookup requires the postgres backend"})
	}
	entries, err := s.auditLookup.ListByRequestID(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: err.Error()})
	}
	if len(entries) == 0 {
		return c.JSON(http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "no audit entries for request"})
	}
	return c.JSON(http.StatusOK, entries)
}
