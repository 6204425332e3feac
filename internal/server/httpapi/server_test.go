package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/tokenguard/internal/common"
	"github.com/dmitrijs2005/tokenguard/internal/logging"
	"github.com/dmitrijs2005/tokenguard/internal/server/auth"
	"github.com/dmitrijs2005/tokenguard/internal/server/repositories/users"
	"github.com/dmitrijs2005/tokenguard/internal/server/services"
	"github.com/dmitrijs2005/tokenguard/internal/timex"
	"github.com/dmitrijs2005/tokenguard/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type apiEnv struct {
	mr     *miniredis.Miniredis
	clock  *timex.FakeClock
	codec  *token.Codec
	server *Server
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	repo := users.NewRedisRepository(client, "")

	clock := timex.Fake(t0)
	codec, err := token.NewCodec([]byte("http-test-secret"))
	require.NoError(t, err)
	a := auth.NewAuthenticator(codec, token.NewIssuer(time.Hour, clock), repo, auth.WithClock(clock))
	svc := services.NewUserService(repo, a, nil)

	srv, err := NewServer("127.0.0.1:0", logging.Nop{}, svc, a)
	require.NoError(t, err)

	return &apiEnv{mr: mr, clock: clock, codec: codec, server: srv}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) register(t *testing.T, email, password string) authResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/user", gin.H{"email": email, "password": password, "first_name": "Test"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestHealth(t *testing.T) {
	env := newAPIEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.register(t, "alice@example.com", "pw")
	assert.Equal(t, "alice@example.com", resp.User.Email)
	require.NotNil(t, resp.User.FirstName)
	assert.Equal(t, "Test", *resp.User.FirstName)
	assert.Equal(t, t0.Add(time.Hour), resp.Token.ExpiresAt)

	inner, err := env.codec.Decode(resp.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, inner.Identity.UserID)

	t.Run("same password logs in", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/user", gin.H{"email": "alice@example.com", "password": "pw"}, "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(common.AuthTokenHeader))
	})

	t.Run("different password conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/user", gin.H{"email": "alice@example.com", "password": "other"}, "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, msgAlreadyExists, errorMessage(t, rec))
	})
}

func TestRegister_BadRequest(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/user", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/user", gin.H{"email": "not-an-email", "password": "pw"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, msgBadRequest, body.Error)
	assert.Equal(t, "email", body.Details["Email"])
}

func TestLogin(t *testing.T) {
	env := newAPIEnv(t)
	reg := env.register(t, "bob@example.com", "pw")

	rec := env.do(t, http.MethodPost, "/api/user/login", gin.H{"email": "bob@example.com", "password": "pw"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, reg.User.ID, resp.User.ID)
	assert.Equal(t, resp.Token.Token, rec.Header().Get(common.AuthTokenHeader))

	for _, tc := range []gin.H{
		{"email": "bob@example.com", "password": "wrong"},
		{"email": "nobody@example.com", "password": "pw"},
	} {
		rec := env.do(t, http.MethodPost, "/api/user/login", tc, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, msgInvalidCredentials, errorMessage(t, rec))
	}
}

func TestMe_RequiresToken(t *testing.T) {
	env := newAPIEnv(t)

	for _, bearer := range []string{"", "garbage"} {
		rec := env.do(t, http.MethodGet, "/api/user/me", nil, bearer)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, msgUnauthorized, errorMessage(t, rec))
	}
}

func TestMe_FreshToken(t *testing.T) {
	env := newAPIEnv(t)
	reg := env.register(t, "carol@example.com", "pw")

	env.clock.Advance(30 * time.Minute)
	rec := env.do(t, http.MethodGet, "/api/user/me", nil, reg.Token.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, reg.Token.Token, rec.Header().Get(common.AuthTokenHeader))
	assert.Equal(t, t0.Add(time.Hour).Format(time.RFC3339), rec.Header().Get(common.AuthTokenExpiresAtHeader))
	assert.Equal(t, t0.Add(2*time.Hour).Format(time.RFC3339), rec.Header().Get(common.AuthTokenRefreshAtHeader))

	var user userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, reg.User.ID, user.ID)
}

func TestMe_StaleTokenIsRefreshed(t *testing.T) {
	env := newAPIEnv(t)
	reg := env.register(t, "dave@example.com", "pw")

	env.clock.Advance(90 * time.Minute)
	rec := env.do(t, http.MethodGet, "/api/user/me", nil, reg.Token.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	fresh := rec.Header().Get(common.AuthTokenHeader)
	assert.NotEqual(t, reg.Token.Token, fresh)
	assert.Equal(t, t0.Add(150*time.Minute).Format(time.RFC3339), rec.Header().Get(common.AuthTokenExpiresAtHeader))

	rec = env.do(t, http.MethodGet, "/api/user/me", nil, fresh)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fresh, rec.Header().Get(common.AuthTokenHeader))
}

func TestMe_PastRefreshAt(t *testing.T) {
	env := newAPIEnv(t)
	reg := env.register(t, "erin@example.com", "pw")

	env.clock.Advance(2 * time.Hour)
	rec := env.do(t, http.MethodGet, "/api/user/me", nil, reg.Token.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgUnauthorized, errorMessage(t, rec))
}

func TestMe_StoreDown(t *testing.T) {
	env := newAPIEnv(t)
	reg := env.register(t, "fay@example.com", "pw")

	env.mr.Close()
	env.clock.Advance(90 * time.Minute)

	rec := env.do(t, http.MethodGet, "/api/user/me", nil, reg.Token.Token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, msgUnavailable, errorMessage(t, rec))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrInvalidTokenFormat, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", common.ErrorUnauthorized), http.StatusUnauthorized},
		{common.ErrInvalidCredentials, http.StatusUnauthorized},
		{common.ErrAlreadyExists, http.StatusConflict},
		{common.ErrEncoding, http.StatusInternalServerError},
		{common.ErrStoredTokenCorrupt, http.StatusInternalServerError},
		{common.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, "%v", tt.err)
	}
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)

	_, ok = bearerToken("Bearer ")
	assert.False(t, ok)
}
