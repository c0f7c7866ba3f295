package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"crimesleuth/internal/service"
)

// MLHandler proxies requests to the image analysis service.
type MLHandler struct {
	mlService service.MLService
}

// NewMLHandler creates a new ML handler.
func NewMLHandler(mlService service.MLService) *MLHandler {
	return &MLHandler{mlService: mlService}
}

// AnalyzeImage godoc
// @Summary Analyze an image without recording it
// @Tags ml
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param image formData file true "Image file"
// @Success 200 {object} Response{data=mlclient.ImageAnalysis}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /ml/analyze-image [post]
func (h *MLHandler) AnalyzeImage(c echo.Context) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest("image is required")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest("invalid image upload")
	}
	defer f.Close()

	analysis, err := h.mlService.AnalyzeImage(c.Request().Context(), actor, service.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, analysis)
}

// Health godoc
// @Summary Analysis service health
// @Tags ml
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=mlclient.Health}
// @Failure 503 {object} errors.ErrorResponse
// @Router /ml/health [get]
func (h *MLHandler) Health(c echo.Context) error {
	health, err := h.mlService.Health(c.Request().Context())
	if err != nil {
		return respondError(err)
	}
	return respond(c, http.StatusOK, health)
}
