package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

func TestIssueAndParseToken(t *testing.T) {
	key := []byte("k")
	tok, err := IssueToken(key, "alice", time.Hour, time.Now())
	require.NoError(t, err)

	user, err := ParseToken(key, tok)
	require.NoError(t, err)
	require.Equal(t, domain.UserID("alice"), user)

	_, err = ParseToken([]byte("other"), tok)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	_, err = IssueToken(key, "", time.Hour, time.Now())
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestTokenFrom_HeaderThenQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/v1/ws?token=q", nil)
	require.Equal(t, "q", tokenFrom(r))

	r.Header.Set("Authorization", "Bearer h")
	require.Equal(t, "h", tokenFrom(r))
}

func TestAuthenticate_StoresCaller(t *testing.T) {
	key := []byte("k")
	tok, err := IssueToken(key, "bob", time.Hour, time.Now())
	require.NoError(t, err)

	var seen domain.UserID
	h := Authenticate(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromCtx(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer "+tok)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, domain.UserID("bob"), seen)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecover_Returns500(t *testing.T) {
	h := Recover(nopLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
