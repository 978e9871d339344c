package middleware

import (
	"crypto/sha256"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RequireAdminToken guards the admin API with a bearer token checked against a
// stored bcrypt hash, so the plaintext token never sits in configuration. An
// empty hash disables the admin surface entirely.
func RequireAdminToken(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				http.Error(w, "admin API disabled", http.StatusForbidden)
				return
			}

			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing admin token", http.StatusUnauthorized)
				return
			}

			// Pre-hash so tokens longer than bcrypt's 72-byte input limit
			// still verify.
			digest := sha256.Sum256([]byte(token))
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), digest[:]); err != nil {
				http.Error(w, "invalid admin token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HashAdminToken produces the bcrypt hash RequireAdminToken verifies against.
func HashAdminToken(token string) (string, error) {
	digest := sha256.Sum256([]byte(token))
	hash, err := bcrypt.GenerateFromPassword(digest[:], bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
