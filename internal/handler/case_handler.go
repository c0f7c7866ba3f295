package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"crimesleuth/internal/query"
	"crimesleuth/internal/repository"
	"crimesleuth/internal/service"
)

const defaultCaseSort = "-date_opened"

// CaseHandler handles case endpoints.
type CaseHandler struct {
	caseService service.CaseService
}

// NewCaseHandler creates a new case handler.
func NewCaseHandler(caseService service.CaseService) *CaseHandler {
	return &CaseHandler{caseService: caseService}
}

// CreateCase godoc
// @Summary Open a case
// @Tags cases
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CaseInput true "Case data"
// @Success 201 {object} Response{data=model.Case}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /cases [post]
func (h *CaseHandler) CreateCase(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req service.CaseInput
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	created, err := h.caseService.CreateCase(c.Request().Context(), actor, req)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusCreated, created)
}

// ListCases godoc
// @Summary List cases
// @Description Filter with field=value or field[gt|gte|lt|lte|in]=value, project with select=a,b, sort with sort=-field, paginate with page and limit.
// @Tags cases
// @Produce json
// @Security BearerAuth
// @Param select query string false "Comma separated fields"
// @Param sort query string false "Comma separated sort keys, prefix - for descending"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(25)
// @Success 200 {object} ListResponse{data=[]model.Case}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /cases [get]
func (h *CaseHandler) ListCases(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	q, err := query.Parse(c.QueryParams(), repository.CaseQuerySchema, defaultCaseSort)
	if err != nil {
		return respondError(err)
	}

	page, err := h.caseService.ListCases(c.Request().Context(), actor, q)
	if err != nil {
		return respondError(err)
	}
	return respondList(c, page.Items, page.Total, page.Pagination, q.Fields)
}

// GetCase godoc
// @Summary Get a case with its evidence summaries
// @Tags cases
// @Produce json
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Success 200 {object} Response{data=model.CaseDetail}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /cases/{id} [get]
func (h *CaseHandler) GetCase(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	detail, err := h.caseService.GetCase(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, detail)
}

// UpdateCase godoc
// @Summary Update a case
// @Tags cases
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Param request body service.CaseUpdate true "Fields to change"
// @Success 200 {object} Response{data=model.Case}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /cases/{id} [put]
func (h *CaseHandler) UpdateCase(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req service.CaseUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}

	updated, err := h.caseService.UpdateCase(c.Request().Context(), actor, id, req)
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, updated)
}

// DeleteCase godoc
// @Summary Delete an empty case
// @Tags cases
// @Produce json
// @Security BearerAuth
// @Param id path string true "Case ID"
// @Success 200 {object} MessageResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /cases/{id} [delete]
func (h *CaseHandler) DeleteCase(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.caseService.DeleteCase(c.Request().Context(), actor, id); err != nil {
		return respondError(err)
	}
	return respondMessage(c, http.StatusOK, "case deleted")
}
