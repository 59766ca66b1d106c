package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cipherchat/internal/domain"
	"cipherchat/internal/errs"
)

const leeway = 30 * time.Second

// IssueToken signs an HS256 token for user valid for ttl from now.
func IssueToken(secret []byte, user domain.UserID, ttl time.Duration, now time.Time) (string, error) {
	if user == "" {
		return "", errs.Wrap(errs.ErrValidation, errors.New("empty user id"))
	}
	claims := jwt.RegisteredClaims{
		Subject:   user.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies tok and returns its subject.
func ParseToken(secret []byte, tok string) (domain.UserID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errs.Wrap(errs.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", errs.Wrap(errs.ErrUnauthorized, errors.New("empty subject"))
	}
	return domain.UserID(claims.Subject), nil
}

// tokenFrom reads the bearer token from the Authorization header or, for
// websocket handshakes, the token query parameter.
func tokenFrom(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("Authorization")); len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return r.URL.Query().Get("token")
}

// Authenticate rejects requests without a valid token and stores the caller
// in the request context.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := tokenFrom(r)
			if tok == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
				return
			}
			user, err := ParseToken(secret, tok)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user)))
		})
	}
}
