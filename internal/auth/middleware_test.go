package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate-platform/relaygate/internal/clients"
)

// fakeClientRepo serves a single client by ID.
type fakeClientRepo struct {
	clients.Repository
	client *clients.Client
}

func (f *fakeClientRepo) GetByID(ctx context.Context, id uuid.UUID) (*clients.Client, error) {
	if f.client != nil && f.client.ID == id {
		return f.client, nil
	}
	return nil, nil
}

func validTestClient() *clients.Client {
	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	return &clients.Client{
		ID:         uuid.New(),
		Name:       "acme",
		IsActive:   true,
		PlanExpiry: &expiry,
	}
}

func runMiddleware(t *testing.T, client *clients.Client, authHeader string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	keys := NewKeyManager(testSecret, time.Hour)
	svc := clients.NewService(&fakeClientRepo{client: client})

	reached := false
	handler := Middleware(keys, svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		got := ClientFromContext(r.Context())
		require.NotNil(t, got)
		assert.Equal(t, client.ID, got.ID)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages/log", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached
}

func issueFor(t *testing.T, client *clients.Client) string {
	t.Helper()
	keys := NewKeyManager(testSecret, time.Hour)
	key, err := keys.Issue(client.ID.String())
	require.NoError(t, err)
	return "Bearer " + key
}

func TestMiddleware_ValidKey(t *testing.T) {
	client := validTestClient()
	rec, reached := runMiddleware(t, client, issueFor(t, client))
	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	rec, reached := runMiddleware(t, validTestClient(), "")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_MalformedHeader(t *testing.T) {
	rec, reached := runMiddleware(t, validTestClient(), "Token abc")
	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_InvalidKey(t *testing.T) {
	rec, reached := runMiddleware(t, validTestClient(), "Bearer not-a-key")
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_UnknownClient(t *testing.T) {
	client := validTestClient()
	header := issueFor(t, client)
	other := validTestClient()
	rec, reached := runMiddleware(t, other, header)
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_RevokedKey(t *testing.T) {
	client := validTestClient()
	client.IsKeyRevoked = true
	rec, reached := runMiddleware(t, client, issueFor(t, client))
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_InactiveClient(t *testing.T) {
	client := validTestClient()
	client.IsActive = false
	rec, reached := runMiddleware(t, client, issueFor(t, client))
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddleware_ExpiredPlan(t *testing.T) {
	client := validTestClient()
	past := time.Now().UTC().Add(-time.Hour)
	client.PlanExpiry = &past
	rec, reached := runMiddleware(t, client, issueFor(t, client))
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/clients", nil)
		req.Header.Set("X-Admin-Token", "operator-token")
		rec := httptest.NewRecorder()
		AdminMiddleware("operator-token")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/clients", nil)
		req.Header.Set("X-Admin-Token", "guess")
		rec := httptest.NewRecorder()
		AdminMiddleware("operator-token")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("empty configured token rejects everything", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/clients", nil)
		rec := httptest.NewRecorder()
		AdminMiddleware("")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
