package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/FACorreiaa/im-auth/internal/api"
	"github.com/FACorreiaa/im-auth/internal/types"
)

type contextKey string

const userKey contextKey = "authUser"

// Authenticate resolves the bearer token through the auth service and stores
// the identity in the request context.
func Authenticate(logger *slog.Logger, svc AuthService) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			l := logger.With(slog.String("middleware", "Authenticate"))

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				l.DebugContext(ctx, "Missing Authorization header")
				unauthorized(w, r, "Not authenticated")
				return
			}

			scheme, token, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
				l.DebugContext(ctx, "Invalid Authorization header format")
				unauthorized(w, r, "Authorization header format must be Bearer {token}")
				return
			}

			user, err := svc.Identify(ctx, strings.TrimSpace(token))
			if err != nil {
				if errors.Is(err, types.ErrUnauthorized) {
					l.InfoContext(ctx, "Bearer token rejected")
					unauthorized(w, r, msgInvalidToken)
					return
				}
				l.ErrorContext(ctx, "Failed to identify bearer token", slog.Any("error", err))
				api.ErrorResponse(w, r, http.StatusInternalServerError, msgInternal)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
		})
	}
}

func WithUser(ctx context.Context, user *types.UserIdentity) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func GetUserFromContext(ctx context.Context) (*types.UserIdentity, bool) {
	user, ok := ctx.Value(userKey).(*types.UserIdentity)
	return user, ok && user != nil
}
