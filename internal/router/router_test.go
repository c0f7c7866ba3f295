package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crimesleuth/internal/auth"
	"crimesleuth/internal/config"
	"crimesleuth/internal/handler"
	"crimesleuth/internal/logging"
	"crimesleuth/internal/mlclient"
	"crimesleuth/internal/model"
	"crimesleuth/internal/repository"
	"crimesleuth/internal/service"
	"crimesleuth/internal/storage"
	"crimesleuth/internal/testutil"
)

// memoryTokenStore keeps tokens in process memory.
type memoryTokenStore struct {
	mu        sync.Mutex
	refresh   map[string]uuid.UUID
	blacklist map[string]bool
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{refresh: map[string]uuid.UUID{}, blacklist: map[string]bool{}}
}

func (s *memoryTokenStore) StoreRefreshToken(_ context.Context, tokenID string, userID uuid.UUID, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenID] = userID
	return nil
}

func (s *memoryTokenStore) GetRefreshToken(_ context.Context, tokenID string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refresh[tokenID]
	if !ok {
		return uuid.Nil, auth.ErrRefreshTokenNotFound
	}
	return id, nil
}

func (s *memoryTokenStore) DeleteRefreshToken(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, tokenID)
	return nil
}

func (s *memoryTokenStore) BlacklistAccessToken(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl > 0 {
		s.blacklist[tokenID] = true
	}
	return nil
}

func (s *memoryTokenStore) IsAccessTokenBlacklisted(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist[tokenID], nil
}

type testServer struct {
	e        *echo.Echo
	users    repository.UserRepository
	password string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Defaults()
	cfg.DBDriver = "sqlite"
	cfg.Storage.DiskRoot = t.TempDir()
	logger := logging.Discard()

	gdb := testutil.NewDB(t)
	store, err := storage.NewDiskStore(cfg.Storage.DiskRoot, "/uploads")
	require.NoError(t, err)

	userRepo := repository.NewUserRepository(gdb)
	caseRepo := repository.NewCaseRepository(gdb)
	evidenceRepo := repository.NewEvidenceRepository(gdb)

	jwtService := auth.NewJWTService("router-test-secret", cfg.AccessTTL, cfg.RefreshTTL)
	ml := mlclient.New("", time.Second, logger)

	authService := service.NewAuthService(userRepo, jwtService, newMemoryTokenStore(), logger)
	userService := service.NewUserService(userRepo, nil)
	caseService := service.NewCaseService(caseRepo, userRepo, nil, logger)
	evidenceService := service.NewEvidenceService(evidenceRepo, caseRepo, store, ml, nil, logger)
	mlService := service.NewMLService(ml, logger)

	e := echo.New()
	Register(e, Deps{
		Config:      cfg,
		Logger:      logger,
		AuthService: authService,
		Auth:        handler.NewAuthHandler(authService, true),
		User:        handler.NewUserHandler(userService, authService),
		Case:        handler.NewCaseHandler(caseService),
		Evidence:    handler.NewEvidenceHandler(evidenceService),
		ML:          handler.NewMLHandler(mlService),
		Uploads:     store,
	})
	return &testServer{e: e, users: userRepo, password: "secret123"}
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Count      int             `json:"count"`
	Total      int64           `json:"total"`
	Pagination json.RawMessage `json:"pagination"`
	Message    string          `json:"message"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return s.send(t, req, token)
}

func (s *testServer) send(t *testing.T, req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

// login registers a user, promotes it to role and returns an access token.
func (s *testServer) login(t *testing.T, name string, role model.Role) (string, *model.User) {
	t.Helper()

	email := name + "@example.com"
	rec, env := s.do(t, http.MethodPost, "/api/auth/register", "", handler.RegisterRequest{Name: name, Email: email, Password: s.password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user model.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	if role != model.RoleInvestigator {
		stored, err := s.users.FindByID(context.Background(), user.ID)
		require.NoError(t, err)
		stored.Role = role
		require.NoError(t, s.users.Update(context.Background(), stored))
	}

	rec, env = s.do(t, http.MethodPost, "/api/auth/login", "", handler.LoginRequest{Email: email, Password: s.password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	require.NotEmpty(t, tokens.AccessToken)
	return tokens.AccessToken, &user
}

func TestRouter_Healthz(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestRouter_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, http.MethodGet, "/api/cases", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, "INVALID_TOKEN", env.Code)
		})
	}
}

func TestRouter_CaseAndEvidenceFlow(t *testing.T) {
	s := newTestServer(t)
	investigator, _ := s.login(t, "ivy", model.RoleInvestigator)
	analyst, analystUser := s.login(t, "ana", model.RoleAnalyst)
	supervisor, _ := s.login(t, "sam", model.RoleSupervisor)

	rec, env := s.do(t, http.MethodPost, "/api/cases", analyst, map[string]any{
		"case_number": "CASE-001", "title": "Burglary", "description": "Rear door forced",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, "analysts cannot open cases")
	assert.Equal(t, "FORBIDDEN", env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/cases", investigator, map[string]any{
		"case_number": "CASE-001", "title": "Burglary", "description": "Rear door forced", "priority": "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c model.Case
	require.NoError(t, json.Unmarshal(env.Data, &c))
	assert.Equal(t, 0, c.EvidenceCount)

	rec, env = s.do(t, http.MethodPost, "/api/cases", investigator, map[string]any{
		"case_number": "CASE-001", "title": "Again", "description": "dup",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DUPLICATE_CASE_NUMBER", env.Code)

	// multipart upload with a file
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("evidence_id", "EV-1"))
	require.NoError(t, mw.WriteField("type", "image"))
	require.NoError(t, mw.WriteField("title", "Door photo"))
	require.NoError(t, mw.WriteField("metadata", `{"camera":"Nikon"}`))
	part, err := mw.CreateFormFile("file", "door.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/cases/"+c.ID.String()+"/evidence", &body)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec, env = s.send(t, req, investigator)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ev model.Evidence
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, "EV-1", ev.Identifier)
	assert.Empty(t, ev.Chain)
	assert.JSONEq(t, `{"camera":"Nikon"}`, string(ev.Metadata))
	require.True(t, strings.HasPrefix(ev.FileURL, "/uploads/"))

	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ev.FileURL, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "stored files need a token")

	rec, _ = s.send(t, httptest.NewRequest(http.MethodGet, ev.FileURL, nil), analyst)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	rec, env = s.do(t, http.MethodPut, "/api/evidence/"+ev.ID.String(), analyst, map[string]any{
		"title": "Door photo (relabeled)", "notes": "relabeled",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	require.Len(t, ev.Chain, 1)
	assert.Equal(t, analystUser.ID, ev.Chain[0].HandledByID)
	assert.Equal(t, "relabeled", ev.Chain[0].Notes)

	rec, env = s.do(t, http.MethodPut, "/api/evidence/"+ev.ID.String(), analyst, map[string]any{
		"chain": []map[string]string{{"action": "forged"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CHAIN_IMMUTABLE", env.Code)

	rec, env = s.do(t, http.MethodPost, "/api/evidence/"+ev.ID.String()+"/analyze", analyst, map[string]any{
		"analysis_type": "forensic", "confidence": 0.92,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	require.Len(t, ev.Chain, 2)
	require.Len(t, ev.AnalysisResults, 1)
	assert.Equal(t, "Analysis pending", ev.AnalysisResults[0].Result)

	rec, env = s.do(t, http.MethodPost, "/api/evidence/"+ev.ID.String()+"/analyze", analyst, map[string]any{"use_ml": true})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ML_SERVICE_ERROR", env.Code)

	rec, env = s.do(t, http.MethodGet, "/api/cases?select=case_number&priority[in]=high,critical", investigator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.Count)
	assert.JSONEq(t, `[{"id":"`+c.ID.String()+`","case_number":"CASE-001"}]`, string(env.Data))

	rec, env = s.do(t, http.MethodGet, "/api/cases/"+c.ID.String(), analyst, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail model.CaseDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, 1, detail.EvidenceCount)
	require.Len(t, detail.Evidence, 1)

	rec, env = s.do(t, http.MethodDelete, "/api/cases/"+c.ID.String(), investigator, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CASE_HAS_EVIDENCE", env.Code)

	rec, _ = s.do(t, http.MethodDelete, "/api/evidence/"+ev.ID.String(), analyst, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodDelete, "/api/evidence/"+ev.ID.String(), supervisor, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodGet, "/api/evidence?case_id="+c.ID.String(), investigator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, env.Count)

	rec, _ = s.do(t, http.MethodDelete, "/api/cases/"+c.ID.String(), investigator, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_InvalidQuery(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.login(t, "quinn", model.RoleInvestigator)

	rec, env := s.do(t, http.MethodGet, "/api/cases?password_hash=x", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	rec, env = s.do(t, http.MethodGet, "/api/cases?page=9223372036854775807&limit=2", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)

	rec, env = s.do(t, http.MethodGet, "/api/cases/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_UUID", env.Code)
}

func TestRouter_LogoutRevokesAccessToken(t *testing.T) {
	s := newTestServer(t)

	_, env := s.do(t, http.MethodPost, "/api/auth/register", "", handler.RegisterRequest{Name: "lee", Email: "lee@example.com", Password: s.password})
	require.True(t, env.Success)
	_, env = s.do(t, http.MethodPost, "/api/auth/login", "", handler.LoginRequest{Email: "lee@example.com", Password: s.password})
	var tokens service.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &tokens))

	rec, _ := s.do(t, http.MethodGet, "/api/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", handler.RefreshRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/logout", tokens.AccessToken, handler.LogoutRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodGet, "/api/me", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_TOKEN", env.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/refresh", "", handler.RefreshRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_PasswordReset(t *testing.T) {
	s := newTestServer(t)
	s.login(t, "rae", model.RoleInvestigator)

	rec, env := s.do(t, http.MethodPost, "/api/auth/forgot-password", "", handler.ForgotPasswordRequest{Email: "rae@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var forgot handler.ForgotPasswordResponse
	require.NoError(t, json.Unmarshal(env.Data, &forgot))
	require.NotEmpty(t, forgot.ResetToken)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/reset-password", "", handler.ResetPasswordRequest{Token: forgot.ResetToken, Password: "brand-new"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/auth/login", "", handler.LoginRequest{Email: "rae@example.com", Password: "brand-new"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/api/auth/reset-password", "", handler.ResetPasswordRequest{Token: forgot.ResetToken, Password: "again-new"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RESET_TOKEN", env.Code)
}

func TestRouter_RegisterValidation(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"name": "x", "email": "not-an-email", "password": "secret123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
	assert.Contains(t, env.Error, "email")
}
