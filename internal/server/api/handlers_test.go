package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashid-platform/auth-service/internal/audit"
	"github.com/ashid-platform/auth-service/internal/common"
	"github.com/ashid-platform/auth-service/internal/identity"
	"github.com/ashid-platform/auth-service/internal/ledger"
	"github.com/ashid-platform/auth-service/internal/logging"
	"github.com/ashid-platform/auth-service/internal/server/config"
	"github.com/ashid-platform/auth-service/internal/server/lifecycle"
	"github.com/ashid-platform/auth-service/internal/token"
	"github.com/ashid-platform/auth-service/internal/tokenstore"
)

type fakeVerifier struct {
	user     *identity.User
	password string
}

func (f *fakeVerifier) Authenticate(ctx context.Context, usernameOrEmail, password string) (*identity.User, error) {
	if usernameOrEmail != f.user.Username && usernameOrEmail != f.user.Email {
		return nil, common.ErrUnauthenticated
	}
	if password != f.password {
		return nil, common.ErrUnauthenticated
	}
	return f.user, nil
}

func (f *fakeVerifier) GetByID(ctx context.Context, id int64) (*identity.User, error) {
	if id != f.user.ID {
		return nil, common.ErrNotFound
	}
	return f.user, nil
}

type testServer struct {
	srv      *Server
	handler  http.Handler
	user     *identity.User
	verifier *fakeVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	encoder := token.NewEncoder([]byte(cfg.SecretKey), cfg.AccessTokenTTL, cfg.RefreshTokenTTL, 0)
	user := &identity.User{ID: 7, Email: "bob@example.com", Username: "bob", Active: true}
	verifier := &fakeVerifier{user: user, password: "hunter22"}

	coord := lifecycle.NewCoordinator(encoder, tokenstore.NewMemoryStore(), ledger.NewMemoryLedger(), verifier, lifecycle.Options{}, log)
	srv := NewServer(cfg, log, coord, audit.Noop{})

	return &testServer{srv: srv, handler: srv.Handler(), user: user, verifier: verifier}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
	return v
}

func (ts *testServer) login(t *testing.T) TokenEnvelope {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/auth/token", map[string]string{"username": "bob", "password": "hunter22"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status: got %d body %s", rr.Code, rr.Body.String())
	}
	return decodeBody[TokenEnvelope](t, rr)
}

func TestLoginEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	env := ts.login(t)

	if env.TokenType != "bearer" {
		t.Fatalf("token_type: got %q", env.TokenType)
	}
	if env.AccessToken == "" || env.RefreshToken == "" {
		t.Fatal("empty token in envelope")
	}
	if env.ExpiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("expires_in: got %d", env.ExpiresIn)
	}
}

func TestLoginEndpoint_BadCredentials(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/auth/token", map[string]string{"username": "bob", "password": "nope"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", rr.Code)
	}
}

func TestLoginEndpoint_InactiveAccount(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.user.Active = false
	rr := ts.do(t, http.MethodPost, "/auth/token", map[string]string{"username": "bob", "password": "hunter22"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rr.Code)
	}
}

func TestLoginEndpoint_MissingFields(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/auth/token", map[string]string{"username": "bob"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rr.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	env := ts.login(t)

	rr := ts.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": env.RefreshToken}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status: got %d body %s", rr.Code, rr.Body.String())
	}
	fresh := decodeBody[TokenEnvelope](t, rr)
	if fresh.RefreshToken == env.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	// The old refresh token is spent.
	rr = ts.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": env.RefreshToken}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status: got %d want 401", rr.Code)
	}
}

func TestRefreshEndpoint_AccessTokenRejected(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	env := ts.login(t)

	rr := ts.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": env.AccessToken}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", rr.Code)
	}
}

func TestRefreshEndpoint_Garbage(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": "garbage"}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", rr.Code)
	}
}

func TestRevokeEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	env := ts.login(t)

	rr := ts.do(t, http.MethodPost, "/auth/revoke", map[string]string{"token": env.AccessToken, "reason": "compromised"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke status: got %d body %s", rr.Code, rr.Body.String())
	}

	// The revoked token fails validation.
	rr = ts.do(t, http.MethodGet, "/auth/validate?token="+env.AccessToken, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("validate status: got %d", rr.Code)
	}
	if v := decodeBody[ValidateResponse](t, rr); v.Valid {
		t.Fatal("revoked token reported valid")
	}
}

func TestRevokeEndpoint_Garbage(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/auth/revoke", map[string]string{"token": "garbage"}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rr.Code)
	}
}

func TestRevokeEndpoint_UnknownToken(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	// Well signed but never issued through the store.
	encoder := token.NewEncoder([]byte("secretKey"), time.Minute, time.Minute, 0)
	cred, _, err := encoder.Mint("7", token.KindAccess)
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	rr := ts.do(t, http.MethodPost, "/auth/revoke", map[string]string{"token": cred}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rr.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	env := ts.login(t)

	rr := ts.do(t, http.MethodGet, "/auth/validate?token="+env.AccessToken, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	v := decodeBody[ValidateResponse](t, rr)
	if !v.Valid {
		t.Fatal("fresh token reported invalid")
	}
	if v.UserID == nil || *v.UserID != 7 {
		t.Fatalf("user_id: got %v", v.UserID)
	}
	if v.Username != "bob" {
		t.Fatalf("username: got %q", v.Username)
	}
	if v.ExpiresAt == nil {
		t.Fatal("exp missing")
	}
}

func TestValidateEndpoint_MissingParam(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/auth/validate", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rr.Code)
	}
}

func TestValidateEndpoint_GarbageIsOK(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/auth/validate?token=garbage", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200", rr.Code)
	}
	if v := decodeBody[ValidateResponse](t, rr); v.Valid {
		t.Fatal("garbage reported valid")
	}
}

func TestSessionsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	env := ts.login(t)

	h := http.Header{}
	h.Set("Authorization", "Bearer "+env.AccessToken)
	rr := ts.do(t, http.MethodGet, "/auth/sessions", nil, h)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d body %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[SessionsResponse](t, rr)
	if resp.Count != 2 || len(resp.Sessions) != 2 {
		t.Fatalf("sessions: got count=%d len=%d", resp.Count, len(resp.Sessions))
	}
}

func TestSessionsEndpoint_NoHeader(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/auth/sessions", nil, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", rr.Code)
	}
}

func TestSessionsEndpoint_RefreshTokenRejected(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	env := ts.login(t)

	h := http.Header{}
	h.Set("Authorization", "Bearer "+env.RefreshToken)
	rr := ts.do(t, http.MethodGet, "/auth/sessions", nil, h)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/health", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if body := decodeBody[map[string]string](t, rr); body["status"] != "healthy" {
		t.Fatalf("body: %v", body)
	}
}
