package apiserver

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// tokenAuthMiddleware requires every request to carry the configured API
// token as a bearer credential. The token is kept only as a bcrypt hash.
func tokenAuthMiddleware(apiToken string) (func(http.Handler) http.Handler, error) {
	tokenHash, err := bcrypt.GenerateFromPassword([]byte(apiToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := r.Header.Get("Authorization")
			token := strings.TrimPrefix(authorization, "Bearer ")

			if err := bcrypt.CompareHashAndPassword(tokenHash, []byte(token)); err != nil {
				writeError(w, http.StatusForbidden, errors.New("forbidden to use"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
