package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/relaygate-platform/relaygate/internal/messagelog"
	"github.com/relaygate-platform/relaygate/internal/provider"
)

// fakeLog serves canned window sets; only the queries the dispatch
// engine uses are implemented.
type fakeLog struct {
	messagelog.Repository

	templated map[string]struct{}
	inbound   map[string]struct{}
	err       error
}

func (f *fakeLog) TemplatedSince(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.templated == nil {
		return map[string]struct{}{}, nil
	}
	return f.templated, nil
}

func (f *fakeLog) InboundSince(ctx context.Context, clientID uuid.UUID, since time.Time) (map[string]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.inbound == nil {
		return map[string]struct{}{}, nil
	}
	return f.inbound, nil
}

type fakeTierSource struct {
	tier string
	err  error
}

func (f *fakeTierSource) MessagingTier(ctx context.Context) (string, error) {
	return f.tier, f.err
}

// fakeSender fails recipients listed in fail with the mapped error.
type fakeSender struct {
	fail map[string]error
	ids  map[string]string
}

func (f *fakeSender) send(to string) (*provider.SendResponse, error) {
	if err, ok := f.fail[to]; ok {
		return nil, err
	}
	resp := &provider.SendResponse{}
	id := f.ids[to]
	if id == "" {
		id = "wamid." + to
	}
	resp.Messages = []struct {
		ID string `json:"id"`
	}{{ID: id}}
	return resp, nil
}

func (f *fakeSender) SendText(ctx context.Context, to, body string) (*provider.SendResponse, error) {
	return f.send(to)
}

func (f *fakeSender) SendTemplate(ctx context.Context, to, name, languageCode string, components []json.RawMessage) (*provider.SendResponse, error) {
	return f.send(to)
}

type fakeStore struct {
	commits    int
	entries    []*messagelog.Entry
	usageDelta int
	err        error
}

func (f *fakeStore) CommitOutcome(ctx context.Context, clientID uuid.UUID, entries []*messagelog.Entry, usageDelta int) error {
	if f.err != nil {
		return f.err
	}
	f.commits++
	f.entries = entries
	f.usageDelta = usageDelta
	return nil
}

func intPtr(n int) *int { return &n }
