package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"crimesleuth/internal/auth"
	"crimesleuth/internal/config"
	apperrors "crimesleuth/internal/errors"
	"crimesleuth/internal/handler"
	"crimesleuth/internal/logging"
	"crimesleuth/internal/service"
	"crimesleuth/internal/storage"
)

const claimsContextKey = "claims"

var errTokenStore = errors.New("token store unavailable")

// Deps are the pieces the HTTP surface is assembled from.
type Deps struct {
	Config      *config.Config
	Logger      *slog.Logger
	AuthService service.AuthService

	Auth     *handler.AuthHandler
	User     *handler.UserHandler
	Case     *handler.CaseHandler
	Evidence *handler.EvidenceHandler
	ML       *handler.MLHandler

	// Uploads is served under its base URL when evidence files live on disk.
	Uploads *storage.DiskStore
}

// Register wires routes and middleware.
func Register(e *echo.Echo, d Deps) {
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Logger)
	e.Validator = &CustomValidator{}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			ctx := logging.ContextWithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
		},
	}))
	e.Use(requestLogger(d.Logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(bodyLimit(d.Config.MaxUploadBytes)))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// Stored evidence files need the same bearer token as evidence detail.
	if d.Uploads != nil && strings.HasPrefix(d.Uploads.BaseURL(), "/") {
		files := echo.StaticDirectoryHandler(echo.MustSubFS(e.Filesystem, d.Uploads.Root()), false)
		e.GET(strings.TrimSuffix(d.Uploads.BaseURL(), "/")+"/*", files, jwtMiddleware(d.AuthService))
	}

	api := e.Group("/api")

	// Public routes
	api.POST("/auth/register", d.Auth.Register)
	api.POST("/auth/login", d.Auth.Login)
	api.POST("/auth/refresh", d.Auth.Refresh)
	api.POST("/auth/logout", d.Auth.Logout)
	api.POST("/auth/forgot-password", d.Auth.ForgotPassword)
	api.POST("/auth/reset-password", d.Auth.ResetPassword)

	// Secured routes (require JWT authentication)
	secured := api.Group("", jwtMiddleware(d.AuthService))

	secured.GET("/me", d.User.Me)
	secured.PUT("/me", d.User.UpdateMe)
	secured.PUT("/me/password", d.User.ChangePassword)
	secured.GET("/users", d.User.ListUsers)
	secured.PUT("/users/:id/role", d.User.SetRole)

	secured.POST("/cases", d.Case.CreateCase)
	secured.GET("/cases", d.Case.ListCases)
	secured.GET("/cases/:id", d.Case.GetCase)
	secured.PUT("/cases/:id", d.Case.UpdateCase)
	secured.DELETE("/cases/:id", d.Case.DeleteCase)

	secured.GET("/cases/:caseId/evidence", d.Evidence.ListCaseEvidence)
	secured.POST("/cases/:caseId/evidence", d.Evidence.CreateEvidence)
	secured.GET("/evidence", d.Evidence.ListEvidence)
	secured.GET("/evidence/:id", d.Evidence.GetEvidence)
	secured.PUT("/evidence/:id", d.Evidence.UpdateEvidence)
	secured.DELETE("/evidence/:id", d.Evidence.DeleteEvidence)
	secured.POST("/evidence/:id/analyze", d.Evidence.AnalyzeEvidence)

	secured.POST("/ml/analyze-image", d.ML.AnalyzeImage)
	secured.GET("/ml/health", d.ML.Health)
}

// jwtMiddleware authenticates bearer tokens through the auth service, so
// revoked access tokens are rejected, and puts the caller into the request
// context.
func jwtMiddleware(authService service.AuthService) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  claimsContextKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			claims, err := authService.Authenticate(c.Request().Context(), token)
			if err != nil {
				if apperrors.KindOf(err) == apperrors.KindInternal {
					return nil, fmt.Errorf("%w: %w", errTokenStore, err)
				}
				return nil, err
			}
			if _, err := claims.Principal(); err != nil {
				return nil, apperrors.ErrInvalidToken.WithCause(err)
			}
			return claims, nil
		},
		SuccessHandler: func(c echo.Context) {
			claims, ok := c.Get(claimsContextKey).(*auth.Claims)
			if !ok {
				return
			}
			p, _ := claims.Principal()
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
		},
		ErrorHandler: func(c echo.Context, err error) error {
			if errors.Is(err, errTokenStore) {
				return err
			}
			httpErr := apperrors.MapErrorToHTTP(apperrors.ErrInvalidToken)
			return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse()).SetInternal(err)
		},
	})
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
			}
			if p, ok := auth.PrincipalFrom(c.Request().Context()); ok {
				attrs = append(attrs, "user_id", p.ID)
			}
			ctx := c.Request().Context()
			if v.Error != nil && v.Status >= http.StatusInternalServerError {
				logger.ErrorContext(ctx, "request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.InfoContext(ctx, "request", attrs...)
			return nil
		},
	})
}

func bodyLimit(maxBytes int64) string {
	kb := maxBytes >> 10
	if kb < 1 {
		kb = 1
	}
	return fmt.Sprintf("%dK", kb)
}

// CustomValidator wraps the service validator for Echo.
type CustomValidator struct{}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return service.Validate(i)
}
