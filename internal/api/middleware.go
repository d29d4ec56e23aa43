// Package api implements the Quill REST API using chi.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Auth modes understood by AuthMiddleware.
const (
	AuthDisabled = "disabled"
	AuthToken    = "token"
	AuthJWT      = "jwt"
)

// AuthSettings selects how requests are authenticated.
type AuthSettings struct {
	Mode      string
	Token     string
	JWTSecret string
}

// AuthMiddleware returns middleware that validates a Bearer credential.
// In disabled mode all requests pass through. In token mode the credential
// must equal Token; in jwt mode it must be an HS256 JWT signed with JWTSecret.
// Browsers cannot set headers on WebSocket upgrades, so a "token" query
// parameter is accepted as well.
func AuthMiddleware(s AuthSettings) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.Mode == "" || s.Mode == AuthDisabled {
				next.ServeHTTP(w, r)
				return
			}
			if !s.valid(credential(r)) {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func credential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (s AuthSettings) valid(cred string) bool {
	if cred == "" {
		return false
	}
	switch s.Mode {
	case AuthToken:
		return cred == s.Token
	case AuthJWT:
		return validateJWT([]byte(s.JWTSecret), cred) == nil
	}
	return false
}

// validateJWT pins the signing method to HS256.
func validateJWT(secret []byte, tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
