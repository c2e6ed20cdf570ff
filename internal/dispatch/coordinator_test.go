package dispatch

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate-platform/relaygate/internal/events"
	"github.com/relaygate-platform/relaygate/internal/messagelog"
	"github.com/relaygate-platform/relaygate/internal/provider"
)

func testCoordinator(log *fakeLog, sender *fakeSender, store *fakeStore) *Coordinator {
	evaluator := testEvaluator("TIER_250", log)
	return NewCoordinator(evaluator, sender, store, events.NewPublisher(nil))
}

func templateRequest(to ...string) *SendRequest {
	return &SendRequest{
		To:       Recipients(to),
		Type:     KindTemplate,
		Name:     "order_update",
		Language: "pt_BR",
	}
}

func TestDispatch_AllSucceed(t *testing.T) {
	store := &fakeStore{}
	c := testCoordinator(&fakeLog{}, &fakeSender{}, store)

	outcome, err := c.Dispatch(context.Background(), activeClient(intPtr(100), 0),
		templateRequest("5511999990001", "5511999990002"))

	require.NoError(t, err)
	assert.Len(t, outcome.Results, 2)
	assert.Empty(t, outcome.Errors)
	assert.Equal(t, http.StatusOK, outcome.HTTPStatus())

	assert.Equal(t, 1, store.commits)
	assert.Len(t, store.entries, 2)
	assert.Equal(t, 2, store.usageDelta)
	for _, e := range store.entries {
		assert.Equal(t, messagelog.StatusSent, e.Status)
		assert.Equal(t, messagelog.DirectionOutbound, e.Direction)
		assert.Equal(t, "order_update", e.TemplateName)
		require.NotNil(t, e.ProviderMessageID)
	}
}

func TestDispatch_MixedOutcome(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{fail: map[string]error{
		"5511999990002": &provider.StatusError{Code: http.StatusBadRequest, Body: "invalid number"},
	}}
	c := testCoordinator(&fakeLog{}, sender, store)

	outcome, err := c.Dispatch(context.Background(), activeClient(intPtr(100), 0),
		templateRequest("5511999990001", "5511999990002", "5511999990003"))

	require.NoError(t, err)
	assert.Len(t, outcome.Results, 2)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, "5511999990002", outcome.Errors[0].Recipient)
	assert.Equal(t, http.StatusBadRequest, outcome.Errors[0].Status)
	assert.Equal(t, http.StatusMultiStatus, outcome.HTTPStatus())

	// Only the two successes are committed and counted.
	assert.Equal(t, 1, store.commits)
	assert.Len(t, store.entries, 2)
	assert.Equal(t, 2, store.usageDelta)
}

func TestDispatch_AllFail_NothingCommitted(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{fail: map[string]error{
		"5511999990001": &provider.StatusError{Code: http.StatusTooManyRequests, Body: "rate limited"},
	}}
	c := testCoordinator(&fakeLog{}, sender, store)

	outcome, err := c.Dispatch(context.Background(), activeClient(intPtr(100), 0),
		templateRequest("5511999990001"))

	require.NoError(t, err)
	assert.Empty(t, outcome.Results)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, http.StatusTooManyRequests, outcome.Errors[0].Status)
	assert.Equal(t, 0, store.commits)
}

func TestDispatch_EmbeddedProviderError(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{fail: map[string]error{
		"5511999990001": &provider.APIError{Message: "Template name does not exist"},
	}}
	c := testCoordinator(&fakeLog{}, sender, store)

	outcome, err := c.Dispatch(context.Background(), activeClient(nil, 0),
		templateRequest("5511999990001"))

	require.NoError(t, err)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, http.StatusBadRequest, outcome.Errors[0].Status)
	assert.Equal(t, "Template name does not exist", outcome.Errors[0].Response)
}

func TestDispatch_UnexpectedErrorIs500(t *testing.T) {
	store := &fakeStore{}
	sender := &fakeSender{fail: map[string]error{
		"5511999990001": errors.New("dial tcp: i/o timeout"),
	}}
	c := testCoordinator(&fakeLog{}, sender, store)

	outcome, err := c.Dispatch(context.Background(), activeClient(nil, 0),
		templateRequest("5511999990001"))

	require.NoError(t, err)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, http.StatusInternalServerError, outcome.Errors[0].Status)
	assert.Equal(t, "Internal server error", outcome.Errors[0].Response)
}

func TestDispatch_TextUsesWindowAndSkipsUsage(t *testing.T) {
	store := &fakeStore{}
	log := &fakeLog{inbound: map[string]struct{}{"5511999990001": {}}}
	c := testCoordinator(log, &fakeSender{}, store)

	req := &SendRequest{
		To:   Recipients{"5511999990001", "5511999990002"},
		Type: KindText,
		Text: "thanks, shipping today",
	}
	outcome, err := c.Dispatch(context.Background(), activeClient(intPtr(100), 100), req)

	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, "5511999990001", outcome.Results[0].Recipient)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, http.StatusForbidden, outcome.Errors[0].Status)
	assert.Equal(t, http.StatusMultiStatus, outcome.HTTPStatus())

	// Text deliveries are logged but never advance the monthly counter.
	assert.Equal(t, 1, store.commits)
	require.Len(t, store.entries, 1)
	assert.Equal(t, messagelog.FreeFormName, store.entries[0].TemplateName)
	require.NotNil(t, store.entries[0].Content)
	assert.Equal(t, "thanks, shipping today", *store.entries[0].Content)
	assert.Equal(t, 0, store.usageDelta)
}

func TestDispatch_QuotaErrorPropagates(t *testing.T) {
	store := &fakeStore{}
	c := testCoordinator(&fakeLog{}, &fakeSender{}, store)

	_, err := c.Dispatch(context.Background(), activeClient(intPtr(10), 10),
		templateRequest("5511999990001"))

	var qe *QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ReasonMonthlyCapExceeded, qe.Reason)
	assert.Equal(t, 0, store.commits)
}

func TestDispatch_CommitFailureSurfaces(t *testing.T) {
	store := &fakeStore{err: errors.New("connection reset")}
	c := testCoordinator(&fakeLog{}, &fakeSender{}, store)

	_, err := c.Dispatch(context.Background(), activeClient(nil, 0),
		templateRequest("5511999990001"))

	require.Error(t, err)
	var qe *QuotaError
	assert.False(t, errors.As(err, &qe))
}

func TestDispatch_PreservesBatchOrder(t *testing.T) {
	store := &fakeStore{}
	c := testCoordinator(&fakeLog{}, &fakeSender{}, store)

	to := []string{
		"5511999990001", "5511999990002", "5511999990003", "5511999990004",
		"5511999990005", "5511999990006", "5511999990007", "5511999990008",
		"5511999990009", "5511999990010", "5511999990011", "5511999990012",
	}
	outcome, err := c.Dispatch(context.Background(), activeClient(nil, 0), templateRequest(to...))

	require.NoError(t, err)
	require.Len(t, outcome.Results, len(to))
	for i, r := range outcome.Results {
		assert.Equal(t, to[i], r.Recipient)
	}
}
