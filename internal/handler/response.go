package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"crimesleuth/internal/auth"
	apperrors "crimesleuth/internal/errors"
	"crimesleuth/internal/query"
)

// Response is the success envelope.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ListResponse is the success envelope for paginated lists.
type ListResponse struct {
	Success    bool             `json:"success"`
	Count      int              `json:"count"`
	Total      int64            `json:"total"`
	Pagination query.Pagination `json:"pagination"`
	Data       any              `json:"data"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, Response{Success: true, Data: data})
}

func respondList[T any](c echo.Context, items []T, total int64, p query.Pagination, fields []string) error {
	data, err := query.Project(items, fields)
	if err != nil {
		return fmt.Errorf("project list: %w", err)
	}
	return c.JSON(http.StatusOK, ListResponse{
		Success:    true,
		Count:      len(items),
		Total:      total,
		Pagination: p,
		Data:       data,
	})
}

func respondMessage(c echo.Context, status int, message string) error {
	return c.JSON(status, MessageResponse{Success: true, Message: message})
}

// respondError converts a service error into an Echo HTTP error carrying the
// error envelope.
func respondError(err error) error {
	httpErr := apperrors.MapErrorToHTTP(err)
	he := echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	return he.SetInternal(err)
}

func badRequest(message string) error {
	return echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
		Error: message,
		Code:  "INVALID_REQUEST",
	})
}

// bindAndValidate decodes the request body into req and validates it.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return badRequest("invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return respondError(err)
	}
	return nil
}

func paramUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
			Error: fmt.Sprintf("invalid %s", name),
			Code:  "INVALID_UUID",
		})
	}
	return id, nil
}

// principal returns the authenticated caller set by the JWT middleware.
func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFrom(c.Request().Context())
	if !ok {
		return auth.Principal{}, respondError(apperrors.ErrInvalidToken)
	}
	return p, nil
}

// ErrorHandler renders every error returned by a handler or middleware as the
// error envelope. Internal errors are logged and never shown to clients.
func ErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var body apperrors.ErrorResponse
		status := http.StatusInternalServerError

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			switch msg := he.Message.(type) {
			case apperrors.ErrorResponse:
				body = msg
			case string:
				body = apperrors.ErrorResponse{Error: msg, Code: codeForStatus(status)}
			default:
				body = apperrors.ErrorResponse{Error: http.StatusText(status), Code: codeForStatus(status)}
			}
			if he.Internal != nil {
				err = he.Internal
			}
		} else {
			httpErr := apperrors.MapErrorToHTTP(err)
			status = httpErr.StatusCode
			body = httpErr.ToErrorResponse()
		}
		body.Success = false

		ctx := c.Request().Context()
		if status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "request failed", "method", c.Request().Method, "path", c.Path(), "status", status, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.ErrorContext(ctx, "write error response", "error", err)
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "INVALID_TOKEN"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
