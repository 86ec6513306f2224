package middleware

import (
	"context"
	"net/http"
	"strings"

	"erp-conflict-engine/pkg/response"
	"erp-conflict-engine/pkg/token"
)

type contextKey string

const OperatorIDKey contextKey = "operatorID"

// AuthMiddleware validates the bearer token and records the operator
// identity, which later becomes the resolver identity on resolved
// conflicts.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := token.ValidateToken(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), OperatorIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOperatorID(r *http.Request) string {
	operatorID, ok := r.Context().Value(OperatorIDKey).(string)
	if !ok {
		return ""
	}
	return operatorID
}
