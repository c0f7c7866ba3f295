package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/datatypes"

	"crimesleuth/internal/query"
	"crimesleuth/internal/repository"
	"crimesleuth/internal/service"
)

const defaultEvidenceSort = "-collection_date"

// EvidenceHandler handles evidence endpoints.
type EvidenceHandler struct {
	evidenceService service.EvidenceService
}

// NewEvidenceHandler creates a new evidence handler.
func NewEvidenceHandler(evidenceService service.EvidenceService) *EvidenceHandler {
	return &EvidenceHandler{evidenceService: evidenceService}
}

// CreateEvidence godoc
// @Summary Attach evidence to a case
// @Description Accepts JSON, or multipart/form-data with the same fields plus an optional "file" part.
// @Tags evidence
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param caseId path string true "Case ID"
// @Param request body service.EvidenceInput true "Evidence data"
// @Param file formData file false "Evidence file"
// @Success 201 {object} Response{data=model.Evidence}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /cases/{caseId}/evidence [post]
func (h *EvidenceHandler) CreateEvidence(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	caseID, err := paramUUID(c, "caseId")
	if err != nil {
		return err
	}

	var req service.EvidenceInput
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	var upload *service.FileUpload
	if isMultipart(c) {
		if err := bindFormExtras(c, &req); err != nil {
			return err
		}
		fh, err := c.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return badRequest("invalid file upload")
		default:
			f, err := fh.Open()
			if err != nil {
				return badRequest("invalid file upload")
			}
			defer f.Close()
			upload = &service.FileUpload{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get(echo.HeaderContentType),
				Size:        fh.Size,
				Body:        f,
			}
		}
	}

	ev, err := h.evidenceService.AddEvidence(c.Request().Context(), actor, caseID, req, upload)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusCreated, ev)
}

func isMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// bindFormExtras reads the fields form binding cannot decode on its own.
func bindFormExtras(c echo.Context, req *service.EvidenceInput) error {
	if v := c.FormValue("metadata"); v != "" {
		if !json.Valid([]byte(v)) {
			return badRequest("metadata must be valid JSON")
		}
		req.Metadata = datatypes.JSON(v)
	}
	if v := c.FormValue("collection_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest("collection_date must be an RFC 3339 timestamp")
		}
		req.CollectionDate = &t
	}
	if v := c.FormValue("chain"); v != "" {
		req.Chain = json.RawMessage(v)
	}
	return nil
}

// ListCaseEvidence godoc
// @Summary List evidence of a case
// @Tags evidence
// @Produce json
// @Security BearerAuth
// @Param caseId path string true "Case ID"
// @Param select query string false "Comma separated fields"
// @Param sort query string false "Comma separated sort keys, prefix - for descending"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(25)
// @Success 200 {object} ListResponse{data=[]model.Evidence}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /cases/{caseId}/evidence [get]
func (h *EvidenceHandler) ListCaseEvidence(c echo.Context) error {
	caseID, err := paramUUID(c, "caseId")
	if err != nil {
		return err
	}
	return h.list(c, &caseID)
}

// ListEvidence godoc
// @Summary List evidence across all cases
// @Tags evidence
// @Produce json
// @Security BearerAuth
// @Param select query string false "Comma separated fields"
// @Param sort query string false "Comma separated sort keys, prefix - for descending"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(25)
// @Success 200 {object} ListResponse{data=[]model.Evidence}
// @Failure 400 {object} errors.ErrorResponse
// @Router /evidence [get]
func (h *EvidenceHandler) ListEvidence(c echo.Context) error {
	return h.list(c, nil)
}

func (h *EvidenceHandler) list(c echo.Context, caseID *uuid.UUID) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	q, err := query.Parse(c.QueryParams(), repository.EvidenceQuerySchema, defaultEvidenceSort)
	if err != nil {
		return respondError(err)
	}

	page, err := h.evidenceService.ListEvidence(c.Request().Context(), actor, caseID, q)
	if err != nil {
		return respondError(err)
	}
	return respondList(c, page.Items, page.Total, page.Pagination, q.Fields)
}

// GetEvidence godoc
// @Summary Evidence detail with chain of custody and analysis results
// @Tags evidence
// @Produce json
// @Security BearerAuth
// @Param id path string true "Evidence ID"
// @Success 200 {object} Response{data=model.Evidence}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /evidence/{id} [get]
func (h *EvidenceHandler) GetEvidence(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	ev, err := h.evidenceService.GetEvidence(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, ev)
}

// UpdateEvidence godoc
// @Summary Update evidence and append a custody entry
// @Tags evidence
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Evidence ID"
// @Param request body service.EvidenceUpdate true "Fields to change and custody notes"
// @Success 200 {object} Response{data=model.Evidence}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /evidence/{id} [put]
func (h *EvidenceHandler) UpdateEvidence(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req service.EvidenceUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ev, err := h.evidenceService.UpdateEvidence(c.Request().Context(), actor, id, req)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, ev)
}

// DeleteEvidence godoc
// @Summary Delete evidence and its stored file
// @Tags evidence
// @Produce json
// @Security BearerAuth
// @Param id path string true "Evidence ID"
// @Success 200 {object} MessageResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /evidence/{id} [delete]
func (h *EvidenceHandler) DeleteEvidence(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.evidenceService.DeleteEvidence(c.Request().Context(), actor, id); err != nil {
		return respondError(err)
	}
	return respondMessage(c, http.StatusOK, "evidence deleted")
}

// AnalyzeEvidence godoc
// @Summary Record an analysis of evidence
// @Description With use_ml the stored image is sent to the analysis service first.
// @Tags evidence
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Evidence ID"
// @Param request body service.AnalysisInput false "Analysis data"
// @Success 200 {object} Response{data=model.Evidence}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /evidence/{id}/analyze [post]
func (h *EvidenceHandler) AnalyzeEvidence(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req service.AnalysisInput
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	ev, err := h.evidenceService.Analyze(c.Request().Context(), actor, id, req)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, ev)
}
