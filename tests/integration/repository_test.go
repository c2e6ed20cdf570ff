//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate-platform/relaygate/internal/clients"
	"github.com/relaygate-platform/relaygate/internal/dispatch"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
)

func seedTenant(t *testing.T, env *TestEnv) *clients.Client {
	t.Helper()
	repo := clients.NewRepository(env.Pool)
	svc := clients.NewService(repo)

	plan, err := svc.GetPlanByName(context.Background(), "starter")
	require.NoError(t, err)
	require.NotNil(t, plan)

	name := uniqueName("repo-tenant")
	client, err := svc.Onboard(context.Background(), name, name, "x", plan, 30)
	require.NoError(t, err)
	return client
}

func insertEntry(t *testing.T, env *TestEnv, clientID uuid.UUID, recipient, template, status, direction string, at time.Time) {
	t.Helper()
	err := env.Logs.Insert(context.Background(), &messagelog.Entry{
		ID:           uuid.New(),
		ClientID:     clientID,
		Recipient:    recipient,
		TemplateName: template,
		Status:       status,
		SentAt:       at,
		Direction:    direction,
	})
	require.NoError(t, err)
}

func TestWindowQueries(t *testing.T) {
	env := SetupTestEnv(t)
	client := seedTenant(t, env)
	ctx := context.Background()
	now := time.Now().UTC()

	// Inside the window: one template, one text, one inbound.
	insertEntry(t, env, client.ID, "111", "order_update", messagelog.StatusSent, messagelog.DirectionOutbound, now.Add(-time.Hour))
	insertEntry(t, env, client.ID, "222", "text", messagelog.StatusSent, messagelog.DirectionOutbound, now.Add(-time.Hour))
	insertEntry(t, env, client.ID, "333", "text", messagelog.StatusReceived, messagelog.DirectionInbound, now.Add(-time.Hour))
	// Outside the window.
	insertEntry(t, env, client.ID, "444", "order_update", messagelog.StatusSent, messagelog.DirectionOutbound, now.Add(-25*time.Hour))
	insertEntry(t, env, client.ID, "555", "text", messagelog.StatusReceived, messagelog.DirectionInbound, now.Add(-25*time.Hour))
	// Failed sends never count.
	insertEntry(t, env, client.ID, "666", "order_update", messagelog.StatusFailed, messagelog.DirectionOutbound, now.Add(-time.Hour))

	templated, err := env.Logs.TemplatedSince(ctx, client.ID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"111": {}}, templated)

	inbound, err := env.Logs.InboundSince(ctx, client.ID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"333": {}}, inbound)
}

func TestStore_CommitOutcome(t *testing.T) {
	env := SetupTestEnv(t)
	client := seedTenant(t, env)
	ctx := context.Background()
	store := dispatch.NewStore(env.Pool)
	now := time.Now().UTC()

	entries := []*messagelog.Entry{
		{
			ID: uuid.New(), ClientID: client.ID, Recipient: "15550009001",
			TemplateName: "order_update", Status: messagelog.StatusSent,
			SentAt: now, Direction: messagelog.DirectionOutbound,
		},
		{
			ID: uuid.New(), ClientID: client.ID, Recipient: "15550009002",
			TemplateName: "order_update", Status: messagelog.StatusSent,
			SentAt: now, Direction: messagelog.DirectionOutbound,
		},
	}

	require.NoError(t, store.CommitOutcome(ctx, client.ID, entries, 2))

	var usage int
	err := env.Pool.QueryRow(ctx, `SELECT usage_count FROM clients WHERE id = $1`, client.ID).Scan(&usage)
	require.NoError(t, err)
	assert.Equal(t, 2, usage)

	var count int
	err = env.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM message_logs WHERE client_id = $1`, client.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_CommitOutcome_AtomicOnFailure(t *testing.T) {
	env := SetupTestEnv(t)
	client := seedTenant(t, env)
	ctx := context.Background()
	store := dispatch.NewStore(env.Pool)
	now := time.Now().UTC()

	dup := uuid.New()
	entries := []*messagelog.Entry{
		{
			ID: dup, ClientID: client.ID, Recipient: "15550009101",
			TemplateName: "order_update", Status: messagelog.StatusSent,
			SentAt: now, Direction: messagelog.DirectionOutbound,
		},
		{
			// Duplicate primary key forces the transaction to fail.
			ID: dup, ClientID: client.ID, Recipient: "15550009102",
			TemplateName: "order_update", Status: messagelog.StatusSent,
			SentAt: now, Direction: messagelog.DirectionOutbound,
		},
	}

	require.Error(t, store.CommitOutcome(ctx, client.ID, entries, 2))

	// Neither the entries nor the usage bump survive the rollback.
	var usage int
	err := env.Pool.QueryRow(ctx, `SELECT usage_count FROM clients WHERE id = $1`, client.ID).Scan(&usage)
	require.NoError(t, err)
	assert.Equal(t, 0, usage)

	var count int
	err = env.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM message_logs WHERE client_id = $1`, client.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDeliveryReceiptStampsEntry(t *testing.T) {
	env := SetupTestEnv(t)
	client := seedTenant(t, env)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	providerID := "wamid.receipt-" + uuid.NewString()
	entry := &messagelog.Entry{
		ID: uuid.New(), ClientID: client.ID, Recipient: "15550009201",
		TemplateName: "order_update", Status: messagelog.StatusSent,
		SentAt: now, Direction: messagelog.DirectionOutbound,
		ProviderMessageID: &providerID,
	}
	require.NoError(t, env.Logs.Insert(ctx, entry))

	deliveredAt := now.Add(time.Minute)
	matched, err := env.Logs.SetDeliveryTime(ctx, providerID, deliveredAt)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = env.Logs.SetDeliveryTime(ctx, "wamid.unknown", deliveredAt)
	require.NoError(t, err)
	assert.False(t, matched)
}
