//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relaygate-platform/relaygate/internal/admin"
	"github.com/relaygate-platform/relaygate/internal/api"
	"github.com/relaygate-platform/relaygate/internal/auth"
	"github.com/relaygate-platform/relaygate/internal/billing"
	"github.com/relaygate-platform/relaygate/internal/clients"
	"github.com/relaygate-platform/relaygate/internal/config"
	"github.com/relaygate-platform/relaygate/internal/conversations"
	"github.com/relaygate-platform/relaygate/internal/dashboard"
	"github.com/relaygate-platform/relaygate/internal/dispatch"
	"github.com/relaygate-platform/relaygate/internal/events"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
	"github.com/relaygate-platform/relaygate/internal/provider"
	"github.com/relaygate-platform/relaygate/internal/webhooks"
)

const (
	testPhoneID     = "1555000111222"
	testAdminToken  = "integration-admin-token"
	testVerifyToken = "integration-verify-token"
)

// providerStub fakes the Cloud API: sends succeed unless a recipient is
// marked to fail, and the account endpoint reports a settable tier.
type providerStub struct {
	mu     sync.Mutex
	tier   string
	fail   map[string]int // recipient -> HTTP status
	sends  int
	server *httptest.Server
}

func newProviderStub() *providerStub {
	s := &providerStub{tier: "TIER_250", fail: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /"+testPhoneID+"/messages", s.handleSend)
	mux.HandleFunc("GET /"+testPhoneID, s.handleAccount)
	s.server = httptest.NewServer(mux)
	return s
}

func (s *providerStub) handleSend(w http.ResponseWriter, r *http.Request) {
	var env struct {
		To string `json:"to"`
	}
	json.NewDecoder(r.Body).Decode(&env)

	s.mu.Lock()
	s.sends++
	code := s.fail[env.To]
	n := s.sends
	s.mu.Unlock()

	if code != 0 {
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"error":{"message":"stubbed failure"}}`)
		return
	}
	fmt.Fprintf(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.stub%d"}]}`, n)
}

func (s *providerStub) handleAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	tier := s.tier
	s.mu.Unlock()
	fmt.Fprintf(w, `{"display_phone_number":"+1 555 000-1112","quality_rating":"GREEN","messaging_limit_tier":%q}`, tier)
}

func (s *providerStub) failRecipient(to string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[to] = status
}

type TestEnv struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Server   *httptest.Server
	Provider *providerStub
	Logs     messagelog.Repository
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "relaygate_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	dsn := fmt.Sprintf("postgres://test:test@%s:%s/relaygate_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "pgcrypto";`)
	if err != nil {
		t.Fatalf("enabling extensions: %v", err)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	stub := newProviderStub()
	t.Cleanup(stub.server.Close)

	providerClient := provider.NewClient(config.ProviderConfig{
		BaseURL:     stub.server.URL,
		PhoneID:     testPhoneID,
		AccessToken: "stub-token",
		Timeout:     5 * time.Second,
	})

	publisher := events.NewPublisher(nil)
	keys := auth.NewKeyManager("integration-key-secret-32-chars!!!!", time.Hour)
	clientRepo := clients.NewRepository(pool)
	clientSvc := clients.NewService(clientRepo)
	authHandler := auth.NewHandler(keys, clientSvc)

	logRepo := messagelog.NewRepository(pool)

	// Short tier TTL so tests that flip the stub tier see it quickly.
	tiers := dispatch.NewTierResolver(providerClient, redisClient, testPhoneID, 100*time.Millisecond)
	windows := dispatch.NewWindowTracker(logRepo)
	evaluator := dispatch.NewEvaluator(tiers, windows)
	store := dispatch.NewStore(pool)
	coordinator := dispatch.NewCoordinator(evaluator, providerClient, store, publisher)
	dispatchHandler := dispatch.NewHandler(coordinator, tiers, logRepo)

	conversationsHandler := conversations.NewHandler(logRepo)
	dashboardHandler := dashboard.NewHandler(logRepo)
	billingRepo := billing.NewRepository(pool)
	billingHandler := billing.NewHandler(billingRepo, clientSvc)
	adminHandler := admin.NewHandler(clientSvc, billingRepo, logRepo, keys, providerClient)
	webhookRepo := webhooks.NewRepository(pool)
	webhookHandler := webhooks.NewHandler(testVerifyToken, logRepo, webhookRepo, publisher)

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
		Login:          authHandler.Login,
		Plans:          billingHandler.Plans,
		WebhookVerify:  webhookHandler.Verify,
		WebhookReceive: webhookHandler.Receive,

		ChangePassword:     authHandler.ChangePassword,
		SendMessage:        dispatchHandler.Send,
		MessagingTier:      dispatchHandler.Tier,
		RegisteredNumbers:  dispatchHandler.Recipients,
		MessageLog:         dispatchHandler.Log,
		Conversations:      conversationsHandler.List,
		ConversationCheck:  conversationsHandler.CanSendText,
		ConversationThread: conversationsHandler.Messages,
		DashboardUsage:     dashboardHandler.Usage,
		Subscription:       billingHandler.Subscription,
		BillingHistory:     billingHandler.BillingHistory,
		CreateSubRequest:   billingHandler.CreateRequest,
		ListSubRequests:    billingHandler.ListRequests,

		Onboard:           adminHandler.Onboard,
		CreatePlan:        adminHandler.CreatePlan,
		ListClients:       adminHandler.ListClients,
		UpdateClient:      adminHandler.UpdateClient,
		DeleteClient:      adminHandler.DeleteClient,
		RevokeKey:         adminHandler.RevokeKey,
		RestoreKey:        adminHandler.RestoreKey,
		Analytics:         adminHandler.Analytics,
		ProviderStatus:    adminHandler.ProviderStatus,
		AdminListRequests: adminHandler.ListRequests,
		ProcessRequest:    adminHandler.ProcessRequest,

		AuthMiddleware:  auth.Middleware(keys, clientSvc),
		AdminMiddleware: auth.AdminMiddleware(testAdminToken),
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	testEnv = &TestEnv{
		Pool:     pool,
		Redis:    redisClient,
		Server:   server,
		Provider: stub,
		Logs:     logRepo,
	}
	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// OnboardClient creates a tenant through the admin API and returns its
// API key.
func OnboardClient(t *testing.T, env *TestEnv, name, username, plan string) string {
	t.Helper()
	body := map[string]any{
		"name":     name,
		"username": username,
		"password": "Sup3r$ecret",
		"plan":     plan,
	}
	resp := DoAdminRequest(t, env, "POST", "/api/v1/admin/clients", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("onboarding failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	return data["api_key"].(string)
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, key string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func DoAdminRequest(t *testing.T, env *TestEnv, method, path string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", testAdminToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
