package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/intake/internal/auth"
	"horse.fit/intake/internal/db"
	"horse.fit/intake/internal/globaltime"
)

type fakeAuthStore struct {
	sessions            map[string]*db.AuthSession
	operatorsByUsername map[string]*db.AuthOperator
	createSessionCalls  int
	deleteSessionCalls  []string
	touchSessionCalls   int
	touchLoginCalls     int
	passwordUpdates     map[int64]string
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		sessions:            map[string]*db.AuthSession{},
		operatorsByUsername: map[string]*db.AuthOperator{},
		passwordUpdates:     map[int64]string{},
	}
}

func (s *fakeAuthStore) GetSession(_ context.Context, sessionID string, now time.Time) (*db.AuthSession, error) {
	row, exists := s.sessions[sessionID]
	if !exists || !row.ExpiresAt.After(now) {
		return nil, db.ErrNoRows
	}
	copyRow := *row
	return &copyRow, nil
}

func (s *fakeAuthStore) CreateSession(_ context.Context, sessionID string, operatorID int64, expiresAt, at time.Time) error {
	s.createSessionCalls++
	username := ""
	for _, operator := range s.operatorsByUsername {
		if operator.OperatorID == operatorID {
			username = operator.Username
		}
	}
	s.sessions[sessionID] = &db.AuthSession{
		SessionID:  sessionID,
		OperatorID: operatorID,
		Username:   username,
		ExpiresAt:  expiresAt,
		LastSeenAt: at,
	}
	return nil
}

func (s *fakeAuthStore) TouchSession(_ context.Context, sessionID string, at time.Time) error {
	s.touchSessionCalls++
	if row, exists := s.sessions[sessionID]; exists {
		row.LastSeenAt = at
	}
	return nil
}

func (s *fakeAuthStore) DeleteSession(_ context.Context, sessionID string) error {
	s.deleteSessionCalls = append(s.deleteSessionCalls, sessionID)
	delete(s.sessions, sessionID)
	return nil
}

func (s *fakeAuthStore) GetOperatorByUsername(_ context.Context, username string) (*db.AuthOperator, error) {
	row, exists := s.operatorsByUsername[strings.TrimSpace(strings.ToLower(username))]
	if !exists {
		return nil, db.ErrNoRows
	}
	copyRow := *row
	return &copyRow, nil
}

func (s *fakeAuthStore) TouchOperatorLogin(_ context.Context, operatorID int64, at time.Time) error {
	s.touchLoginCalls++
	return nil
}

func (s *fakeAuthStore) UpdateOperatorPassword(_ context.Context, operatorID int64, passwordHash string) error {
	s.passwordUpdates[operatorID] = passwordHash
	return nil
}

func newTestServer(store *fakeAuthStore) *Server {
	server := NewServer(nil, nil, nil, nil, zerolog.Nop(), Options{
		SessionCookie: "intake_session",
		SessionTTL:    time.Hour,
	})
	server.authStore = store
	return server
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func performJSON(t *testing.T, handler echo.HandlerFunc, method, target string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestLoginSetsSessionCookie(t *testing.T) {
	store := newFakeAuthStore()
	store.operatorsByUsername["admin"] = &db.AuthOperator{
		OperatorID:   7,
		Username:     "admin",
		PasswordHash: mustHash(t, "correct horse battery"),
		CreatedAt:    globaltime.UTC(),
	}
	server := newTestServer(store)

	rec := performJSON(t, server.handleLogin, http.MethodPost, "/api/v1/auth/login",
		loginRequest{Username: "Admin", Password: "correct horse battery"}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if store.createSessionCalls != 1 {
		t.Fatalf("create session calls = %d", store.createSessionCalls)
	}
	if store.touchLoginCalls != 1 {
		t.Fatalf("touch login calls = %d", store.touchLoginCalls)
	}

	cookies := rec.Result().Cookies()
	var found bool
	for _, cookie := range cookies {
		if cookie.Name == "intake_session" && cookie.Value != "" {
			found = true
			if !cookie.HttpOnly {
				t.Fatal("session cookie must be http-only")
			}
		}
	}
	if !found {
		t.Fatal("session cookie not set")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	store := newFakeAuthStore()
	store.operatorsByUsername["admin"] = &db.AuthOperator{
		OperatorID:   7,
		Username:     "admin",
		PasswordHash: mustHash(t, "correct horse battery"),
	}
	server := newTestServer(store)

	rec := performJSON(t, server.handleLogin, http.MethodPost, "/api/v1/auth/login",
		loginRequest{Username: "admin", Password: "wrong"}, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if store.createSessionCalls != 0 {
		t.Fatal("session created for bad password")
	}
}

func TestRequireAuthRejectsExpiredSession(t *testing.T) {
	store := newFakeAuthStore()
	store.sessions["stale"] = &db.AuthSession{
		SessionID:  "stale",
		OperatorID: 7,
		Username:   "admin",
		ExpiresAt:  globaltime.UTC().Add(-time.Minute),
		LastSeenAt: globaltime.UTC().Add(-2 * time.Hour),
	}
	server := newTestServer(store)

	handler := server.requireAuth()(func(c echo.Context) error {
		return success(c, map[string]any{"reached": true})
	})

	rec := performJSON(t, handler, http.MethodGet, "/api/v1/auth/me", nil,
		&http.Cookie{Name: "intake_session", Value: "stale"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthAcceptsLiveSession(t *testing.T) {
	store := newFakeAuthStore()
	store.sessions["live"] = &db.AuthSession{
		SessionID:  "live",
		OperatorID: 7,
		Username:   "admin",
		ExpiresAt:  globaltime.UTC().Add(time.Hour),
		LastSeenAt: globaltime.UTC().Add(-10 * time.Minute),
	}
	server := newTestServer(store)

	var seen authPrincipal
	handler := server.requireAuth()(func(c echo.Context) error {
		seen, _ = principalFromContext(c)
		return success(c, map[string]any{"reached": true})
	})

	rec := performJSON(t, handler, http.MethodGet, "/api/v1/stats", nil,
		&http.Cookie{Name: "intake_session", Value: "live"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if seen.Username != "admin" || seen.OperatorID != 7 {
		t.Fatalf("principal = %+v", seen)
	}
	if store.touchSessionCalls != 1 {
		t.Fatalf("touch session calls = %d, stale last-seen must refresh", store.touchSessionCalls)
	}
}

func TestChangePasswordVerifiesCurrent(t *testing.T) {
	store := newFakeAuthStore()
	store.operatorsByUsername["admin"] = &db.AuthOperator{
		OperatorID:   7,
		Username:     "admin",
		PasswordHash: mustHash(t, "correct horse battery"),
	}
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password",
		strings.NewReader(`{"current_password":"nope","new_password":"a new long password"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set("auth.principal", authPrincipal{SessionID: "live", OperatorID: 7, Username: "admin"})

	if err := server.handleChangePassword(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if len(store.passwordUpdates) != 0 {
		t.Fatal("password updated despite wrong current password")
	}
}
