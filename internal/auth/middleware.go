package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/clients"
)

type contextKey string

const clientKey contextKey = "client"

// Middleware validates the bearer API key, loads the client row and
// rejects inactive, revoked or expired tenants. Handlers past this point
// receive an already-authorized tenant identity and never see auth.
func Middleware(keys *KeyManager, clientSvc *clients.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			claims, err := keys.Validate(parts[1])
			if err != nil {
				api.HandleError(w, api.ErrInvalidKey)
				return
			}

			clientID, err := uuid.Parse(claims.Subject)
			if err != nil {
				api.HandleError(w, api.ErrInvalidKey)
				return
			}

			client, err := clientSvc.GetByID(r.Context(), clientID)
			if err != nil {
				slog.Error("loading client for API key", "error", err)
				api.HandleError(w, api.ErrInternalServer)
				return
			}
			if client == nil {
				api.HandleError(w, api.ErrInvalidKey)
				return
			}

			if !client.IsActive || client.IsKeyRevoked {
				api.HandleError(w, api.ErrClientInactive)
				return
			}
			if client.Expired(time.Now().UTC()) {
				api.HandleError(w, api.ErrPlanExpired)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
		})
	}
}

// WithClient stores the authorized tenant on the context.
func WithClient(ctx context.Context, client *clients.Client) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// ClientFromContext returns the authorized tenant, or nil outside the
// key-protected surface.
func ClientFromContext(ctx context.Context) *clients.Client {
	client, _ := ctx.Value(clientKey).(*clients.Client)
	return client
}

// AdminMiddleware gates the admin surface on the shared X-Admin-Token
// header, compared in constant time.
func AdminMiddleware(adminToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied := r.Header.Get("X-Admin-Token")
			if adminToken == "" ||
				subtle.ConstantTimeCompare([]byte(supplied), []byte(adminToken)) != 1 {
				api.HandleError(w, api.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
