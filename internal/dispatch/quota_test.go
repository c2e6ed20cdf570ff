package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate-platform/relaygate/internal/clients"
)

func testEvaluator(tier string, log *fakeLog) *Evaluator {
	tiers := NewTierResolver(&fakeTierSource{tier: tier}, nil, "123", time.Minute)
	return NewEvaluator(tiers, NewWindowTracker(log))
}

func activeClient(monthlyCap *int, usage int) *clients.Client {
	expiry := time.Now().UTC().Add(30 * 24 * time.Hour)
	return &clients.Client{
		ID:         uuid.New(),
		Name:       "acme",
		IsActive:   true,
		UsageCount: usage,
		PlanExpiry: &expiry,
		Plan:       &clients.Plan{Name: "starter", MonthlyCap: monthlyCap},
	}
}

func TestEvaluate_ExpiredSubscription(t *testing.T) {
	e := testEvaluator("TIER_250", &fakeLog{})
	client := activeClient(intPtr(100), 0)
	past := time.Now().UTC().Add(-time.Hour)
	client.PlanExpiry = &past

	_, err := e.Evaluate(context.Background(), client, []string{"5511999990000"}, KindTemplate, time.Now().UTC())

	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ReasonSubscriptionExpired, qe.Reason)
}

func TestEvaluate_ExpiryGateBlocksTextToo(t *testing.T) {
	e := testEvaluator("TIER_250", &fakeLog{inbound: map[string]struct{}{"5511999990000": {}}})
	client := activeClient(nil, 0)
	past := time.Now().UTC().Add(-time.Minute)
	client.PlanExpiry = &past

	_, err := e.Evaluate(context.Background(), client, []string{"5511999990000"}, KindText, time.Now().UTC())

	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ReasonSubscriptionExpired, qe.Reason)
}

func TestEvaluate_MonthlyCap(t *testing.T) {
	t.Run("batch overflowing the cap is denied whole", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{})
		client := activeClient(intPtr(100), 99)

		_, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001", "5511999990002"}, KindTemplate, time.Now().UTC())

		var qe *QuotaError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, ReasonMonthlyCapExceeded, qe.Reason)
		assert.Equal(t, "Monthly usage cap exceeded.", qe.Message)
	})

	t.Run("batch exactly filling the cap is admitted", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{})
		client := activeClient(intPtr(100), 98)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001", "5511999990002"}, KindTemplate, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 2)
	})

	t.Run("zero cap means unlimited", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{})
		client := activeClient(intPtr(0), 1000)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001"}, KindTemplate, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 1)
	})

	t.Run("unlimited plan never monthly-gated", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{})
		client := activeClient(nil, 1000000)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001"}, KindTemplate, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 1)
	})

	t.Run("text sends never consume monthly quota", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{inbound: map[string]struct{}{"5511999990001": {}}})
		client := activeClient(intPtr(100), 100)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001"}, KindText, time.Now().UTC())

		require.NoError(t, err)
		assert.Equal(t, []string{"5511999990001"}, eval.Admitted)
	})
}

func TestEvaluate_TierCap(t *testing.T) {
	used := func(n int) map[string]struct{} {
		m := make(map[string]struct{}, n)
		for i := 0; i < n; i++ {
			m[uuid.NewString()] = struct{}{}
		}
		return m
	}

	t.Run("new recipients overflowing the tier are denied", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{templated: used(248)})
		client := activeClient(nil, 0)

		_, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001", "5511999990002", "5511999990003"}, KindTemplate, time.Now().UTC())

		var qe *QuotaError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, ReasonTierLimitExceeded, qe.Reason)
		assert.Contains(t, qe.Message, "Tier: TIER_250")
		assert.Contains(t, qe.Message, "Used: 248")
	})

	t.Run("batch fitting exactly under the tier is admitted", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{templated: used(248)})
		client := activeClient(nil, 0)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001", "5511999990002"}, KindTemplate, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 2)
	})

	t.Run("already-messaged recipients do not count twice", func(t *testing.T) {
		already := used(249)
		var known string
		for r := range already {
			known = r
			break
		}
		e := testEvaluator("TIER_250", &fakeLog{templated: already})
		client := activeClient(nil, 0)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{known, "5511999990009"}, KindTemplate, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 2)
	})

	t.Run("duplicate recipients in one batch count once", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{templated: used(249)})
		client := activeClient(nil, 0)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001", "5511999990001"}, KindTemplate, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 2)
	})

	t.Run("unlimited tier admits any batch", func(t *testing.T) {
		e := testEvaluator("TIER_UNLIMITED", &fakeLog{templated: used(100000)})
		client := activeClient(nil, 0)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001"}, KindTemplate, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 1)
	})

	t.Run("text sends skip the tier gate", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{
			templated: used(250),
			inbound:   map[string]struct{}{"5511999990001": {}},
		})
		client := activeClient(nil, 0)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001"}, KindText, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 1)
	})
}

func TestEvaluate_ConversationWindow(t *testing.T) {
	t.Run("text requires an open window per recipient", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{
			inbound: map[string]struct{}{"5511999990001": {}},
		})
		client := activeClient(nil, 0)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990001", "5511999990002"}, KindText, time.Now().UTC())

		require.NoError(t, err)
		assert.Equal(t, []string{"5511999990001"}, eval.Admitted)
		require.Len(t, eval.Denied, 1)
		assert.Equal(t, "5511999990002", eval.Denied[0].Recipient)
		assert.Equal(t, ReasonNoActiveWindow, eval.Denied[0].Reason)
		assert.Equal(t,
			"Cannot send freeform text. No inbound message from recipient in the last 24 hours.",
			eval.Denied[0].Message)
	})

	t.Run("templates ignore the window gate", func(t *testing.T) {
		e := testEvaluator("TIER_250", &fakeLog{})
		client := activeClient(nil, 0)

		eval, err := e.Evaluate(context.Background(), client,
			[]string{"5511999990002"}, KindTemplate, time.Now().UTC())

		require.NoError(t, err)
		assert.Len(t, eval.Admitted, 1)
		assert.Empty(t, eval.Denied)
	})
}
