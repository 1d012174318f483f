package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/FACorreiaa/im-auth/app/observability/metrics"
	"github.com/FACorreiaa/im-auth/config"
	"github.com/FACorreiaa/im-auth/internal/container"
	"github.com/FACorreiaa/im-auth/internal/types"
	api "github.com/FACorreiaa/im-auth/internal/router"
)

// memoryAuthRepo is an in-memory identity store with the same uniqueness rules
// as the users table.
type memoryAuthRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]types.UserIdentity
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{users: map[string]types.UserIdentity{}}
}

func (r *memoryAuthRepo) GetUserByUsername(_ context.Context, username string) (*types.UserIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &u, nil
}

func (r *memoryAuthRepo) GetUserByID(_ context.Context, id int64) (*types.UserIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, types.ErrNotFound
}

func (r *memoryAuthRepo) CreateUser(_ context.Context, nu types.NewUser) (*types.UserIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[nu.Username]; ok {
		return nil, types.ErrConflict
	}
	for _, u := range r.users {
		if u.Email == nu.Email {
			return nil, types.ErrConflict
		}
	}
	r.nextID++
	u := types.UserIdentity{
		ID:           r.nextID,
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	r.users[nu.Username] = u
	return &u, nil
}

// E2ETestSuite drives the full HTTP stack: router, middleware, handlers,
// service, hasher and token service.
type E2ETestSuite struct {
	suite.Suite
	server *httptest.Server
	client *http.Client
	repo   *memoryAuthRepo
}

func (s *E2ETestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		JWT: config.JWTConfig{
			SecretKey:                "e2e-secret",
			Algorithm:                "HS256",
			AccessTokenExpireMinutes: 30,
		},
		Password: config.PasswordConfig{Algorithm: "bcrypt", BcryptCost: 10},
	}
	cfg.Server.Timeout = 10 * time.Second
	s.Require().NoError(cfg.Validate())

	m, err := metrics.New(noop.NewMeterProvider().Meter("e2e"))
	s.Require().NoError(err)

	s.repo = newMemoryAuthRepo()
	c, err := container.NewAuthContainer(cfg, logger, s.repo, m)
	s.Require().NoError(err)

	s.server = httptest.NewServer(api.SetupRouter(c.RouterConfig()))
	s.client = &http.Client{Timeout: 10 * time.Second}
}

func (s *E2ETestSuite) TearDownTest() {
	if s.server != nil {
		s.server.Close()
	}
}

func (s *E2ETestSuite) do(method, path, contentType string, body io.Reader, token string) (*http.Response, map[string]any) {
	req, err := http.NewRequest(method, s.server.URL+path, body)
	s.Require().NoError(err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		s.Require().NoError(json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (s *E2ETestSuite) postJSON(path string, payload any) (*http.Response, map[string]any) {
	b, err := json.Marshal(payload)
	s.Require().NoError(err)
	return s.do(http.MethodPost, path, "application/json", bytes.NewReader(b), "")
}

func (s *E2ETestSuite) TestAliceScenario() {
	resp, body := s.postJSON("/auth/register", map[string]string{
		"username": "alice", "email": "alice@x.com", "password": "secret1",
	})
	s.Equal(http.StatusCreated, resp.StatusCode)
	s.Equal(map[string]any{"id": float64(1), "username": "alice", "email": "alice@x.com"}, body)

	resp, body = s.postJSON("/auth/register", map[string]string{
		"username": "alice", "email": "a2@x.com", "password": "other",
	})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("Username already registered", body["error"])

	resp, body = s.postJSON("/auth/login", map[string]string{"username": "alice", "password": "wrong"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("Bearer", resp.Header.Get("WWW-Authenticate"))
	s.Equal("Invalid credentials", body["error"])

	resp, body = s.postJSON("/auth/login", map[string]string{"username": "alice", "password": "secret1"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("bearer", body["token_type"])
	token, ok := body["access_token"].(string)
	s.Require().True(ok)
	s.Require().NotEmpty(token)

	resp, body = s.do(http.MethodGet, "/auth/profile", "", nil, token)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(map[string]any{"id": float64(1), "username": "alice", "email": "alice@x.com"}, body)
}

func (s *E2ETestSuite) TestLoginWithOAuth2Form() {
	resp, _ := s.postJSON("/auth/register", map[string]string{
		"username": "bob", "email": "bob@x.com", "password": "hunter22",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	form := url.Values{"grant_type": {"password"}, "username": {"bob"}, "password": {"hunter22"}}
	resp, body := s.do(http.MethodPost, "/auth/login", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()), "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.NotEmpty(body["access_token"])
}

func (s *E2ETestSuite) TestUnknownUserAndWrongPasswordLookAlike() {
	resp, _ := s.postJSON("/auth/register", map[string]string{
		"username": "carol", "email": "carol@x.com", "password": "secret1",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	wrongResp, wrongBody := s.postJSON("/auth/login", map[string]string{"username": "carol", "password": "nope"})
	unknownResp, unknownBody := s.postJSON("/auth/login", map[string]string{"username": "nobody", "password": "nope"})

	s.Equal(wrongResp.StatusCode, unknownResp.StatusCode)
	s.Equal(wrongBody["error"], unknownBody["error"])
}

func (s *E2ETestSuite) TestDuplicateEmailRejected() {
	resp, _ := s.postJSON("/auth/register", map[string]string{
		"username": "dave", "email": "shared@x.com", "password": "secret1",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp, body := s.postJSON("/auth/register", map[string]string{
		"username": "erin", "email": "shared@x.com", "password": "secret1",
	})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("Username already registered", body["error"])
}

func (s *E2ETestSuite) TestProfileRejectsBadTokens() {
	for _, token := range []string{"", "garbage", "a.b.c"} {
		resp, body := s.do(http.MethodGet, "/auth/profile", "", nil, token)
		s.Equal(http.StatusUnauthorized, resp.StatusCode, token)
		s.Equal("Bearer", resp.Header.Get("WWW-Authenticate"))
		s.Equal(false, body["success"])
		s.NotEmpty(body["request_id"])
	}
}

func (s *E2ETestSuite) TestPublicEndpoints() {
	resp, body := s.do(http.MethodGet, "/", "", nil, "")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Welcome to the Instant Messaging Service!", body["message"])

	resp, _ = s.do(http.MethodGet, "/ping", "", nil, "")
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/swagger/doc.json", "", nil, "")
	s.Equal(http.StatusOK, resp.StatusCode)
}

func TestE2ETestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e suite in short mode")
	}
	suite.Run(t, new(E2ETestSuite))
}

func TestMemoryAuthRepoSatisfiesStoreRules(t *testing.T) {
	repo := newMemoryAuthRepo()
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, types.NewUser{Username: "a", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	require.Equal(t, int64(1), u.ID)

	_, err = repo.CreateUser(ctx, types.NewUser{Username: "a", Email: "b@x.com", PasswordHash: "h"})
	require.ErrorIs(t, err, types.ErrConflict)

	_, err = repo.GetUserByUsername(ctx, "missing")
	require.ErrorIs(t, err, types.ErrNotFound)

	byID, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "a", byID.Username)

	_, err = repo.GetUserByID(ctx, 99)
	require.ErrorIs(t, err, types.ErrNotFound)
}
