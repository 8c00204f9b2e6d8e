package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type contextKey string

const ownerContextKey contextKey = "owner"

// ErrMissingCredential is returned when a request carries no bearer token.
var ErrMissingCredential = fmt.Errorf("missing bearer credential")

// ExtractOwner parses the bearer credential from the Authorization header
// and returns the owner identifier it carries.
//
// Token issuance and signature verification happen upstream of this
// service (an external authenticator signs the claim); this function
// only trusts and decodes the numeric subject already validated there.
func ExtractOwner(r *http.Request) (int64, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return 0, ErrMissingCredential
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return 0, ErrMissingCredential
	}

	// The claim may carry additional fields separated by ".", mirroring a
	// JWT-shaped subject; only the leading numeric owner id is consumed.
	subject := token
	if i := strings.IndexByte(token, '.'); i >= 0 {
		subject = token[:i]
	}

	owner, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || owner <= 0 {
		return 0, fmt.Errorf("invalid bearer credential")
	}
	return owner, nil
}

// AuthMiddleware extracts the owner identifier from each request's bearer
// credential and stores it on the request context for downstream handlers.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := ExtractOwner(r)
		if err != nil {
			http.Error(w, `{"error":"unauthorized","message":"missing or invalid bearer credential"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ownerContextKey, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerFromContext returns the owner identifier populated by AuthMiddleware.
func OwnerFromContext(ctx context.Context) (int64, bool) {
	owner, ok := ctx.Value(ownerContextKey).(int64)
	return owner, ok
}
