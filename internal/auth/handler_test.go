package auth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-crm/meridian/internal/auth"
	"github.com/meridian-crm/meridian/internal/shared"
	_ "github.com/meridian-crm/meridian/testing"
)

func newTestRouter(handler *auth.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

type stubRepo struct {
	user     *auth.User
	sessions []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, &shared.NotFoundError{Resource: "users"}
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id, userID string, expiresAt time.Time, ip, ua string) error {
	s.sessions = append(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	for i, sid := range s.sessions {
		if sid == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	handler := auth.NewHandler(testLogger(), auth.NewService(repo), sessionManager)
	return handler, sessionManager
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func activeUser(t *testing.T, password string) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)
	tenant := "tenant-1"
	return &auth.User{ID: "u1", Email: "user@test.local", PasswordHash: string(hashed), IsActive: true, TenantID: &tenant}
}

func doLogin(t *testing.T, handler *auth.Handler, sessions *shared.SessionManager, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	router := newTestRouter(handler)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestLoginSuccess(t *testing.T) {
	repo := &stubRepo{user: activeUser(t, "correctpass1")}
	handler, sessions := newAuthHandler(t, repo)

	res := doLogin(t, handler, sessions, `{"email":"user@test.local","password":"correctpass1"}`)
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "u1", body["userId"])
	require.Len(t, repo.sessions, 1, "login session recorded")

	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies, "session cookie set")
}

func TestLoginWrongPassword(t *testing.T) {
	handler, sessions := newAuthHandler(t, &stubRepo{user: activeUser(t, "correctpass1")})

	res := doLogin(t, handler, sessions, `{"email":"user@test.local","password":"wrongpass1"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "invalid email or password")
}

func TestLoginInactiveAccountSameError(t *testing.T) {
	user := activeUser(t, "correctpass1")
	user.IsActive = false
	handler, sessions := newAuthHandler(t, &stubRepo{user: user})

	res := doLogin(t, handler, sessions, `{"email":"user@test.local","password":"correctpass1"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "invalid email or password")
}

func TestLoginValidation(t *testing.T) {
	handler, sessions := newAuthHandler(t, &stubRepo{})

	res := doLogin(t, handler, sessions, `{"email":"not-an-email","password":"short"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)

	var body struct {
		Errors map[string][]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Contains(t, body.Errors, "Email")
	require.Contains(t, body.Errors, "Password")
}

func TestLogoutDestroysSession(t *testing.T) {
	repo := &stubRepo{user: activeUser(t, "correctpass1")}
	handler, sessions := newAuthHandler(t, repo)

	login := doLogin(t, handler, sessions, `{"email":"user@test.local","password":"correctpass1"}`)
	require.Equal(t, http.StatusOK, login.Code)
	require.Len(t, repo.sessions, 1)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	newTestRouter(handler).ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Empty(t, repo.sessions, "login session record removed")
}
