package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/pkg/types"
)

var stamp = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func testMessage(t *testing.T) Message {
	t.Helper()
	msg, err := NewMessage(KindNarration, "w1", map[string]string{"text": "The door creaks."}, stamp)
	require.NoError(t, err)
	return msg
}

func TestNewMessage(t *testing.T) {
	msg := testMessage(t)
	assert.Equal(t, KindNarration, msg.Kind)
	assert.JSONEq(t, `{"text":"The door creaks."}`, string(msg.Payload))

	_, err := NewMessage(KindNarration, "w1", make(chan int), stamp)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	r.Connect("w2", RolePlayer)
	r.Connect("w1", RoleDirector)
	r.Connect("w1", RolePlayer)

	ids, err := r.ListActiveWorldIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, ids)

	ok, _ := r.HasDirectorConnected(ctx, "w1")
	assert.True(t, ok)
	ok, _ = r.HasDirectorConnected(ctx, "w2")
	assert.False(t, ok)

	r.Disconnect("w1", RoleDirector)
	ok, _ = r.HasDirectorConnected(ctx, "w1")
	assert.False(t, ok)

	r.Disconnect("w2", RolePlayer)
	r.Disconnect("w2", RolePlayer)
	r.Disconnect("w9", RoleDirector)
	ids, _ = r.ListActiveWorldIDs(ctx)
	assert.Equal(t, []string{"w1"}, ids)
}

type fakePublisher struct {
	name string
	err  error

	mu    sync.Mutex
	calls []string
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) SendToDirector(_ context.Context, worldID string, _ Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "director:"+worldID)
	return f.err
}

func (f *fakePublisher) BroadcastToPlayers(_ context.Context, worldID string, _ Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "players:"+worldID)
	return f.err
}

func TestDispatcher_FansOutPastFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	bad := &fakePublisher{name: "bad", err: boom}
	good := &fakePublisher{name: "good"}
	reg := NewRegistry()
	reg.Connect("w1", RoleDirector)
	d := NewDispatcher(reg, []Publisher{bad, good})

	err := d.SendToDirector(ctx, "w1", testMessage(t))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")

	good.err = nil
	bad.err = nil
	require.NoError(t, d.BroadcastToPlayers(ctx, "w1", testMessage(t)))
	assert.Equal(t, []string{"director:w1", "players:w1"}, good.calls)
	assert.Equal(t, []string{"director:w1", "players:w1"}, bad.calls)

	ok, err := d.HasDirectorConnected(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, ok)
	ids, err := d.ListActiveWorldIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1"}, ids)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	d, err := FromConfig(ctx, NewRegistry(), nil, nil)
	require.NoError(t, err)
	require.Len(t, d.publishers, 1)
	assert.Equal(t, "log", d.publishers[0].Name())

	d, err = FromConfig(ctx, NewRegistry(), []types.SinkConfig{
		{Type: types.SinkLog},
		{Type: types.SinkWebhook, URL: "http://localhost:1"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, d.publishers, 2)

	_, err = FromConfig(ctx, NewRegistry(), []types.SinkConfig{{Type: types.SinkWebhook}}, nil)
	assert.ErrorContains(t, err, "webhook URL required")

	_, err = FromConfig(ctx, NewRegistry(), []types.SinkConfig{{Type: "pigeon"}}, nil)
	assert.ErrorContains(t, err, "unknown sink type")
}

func TestWebhookSink_Send(t *testing.T) {
	var got webhookEnvelope
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	require.NoError(t, sink.SendToDirector(context.Background(), "w1", testMessage(t)))

	assert.Equal(t, AudienceDirector, got.Audience)
	assert.Equal(t, "w1", got.WorldID)
	assert.Equal(t, KindNarration, got.Message.Kind)
}

func TestWebhookSink_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	sink := NewWebhookSink(ts.URL)
	ctx := context.Background()
	for range webhookTripAfter {
		err := sink.BroadcastToPlayers(ctx, "w1", testMessage(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	}
	assert.Equal(t, gobreaker.StateOpen, sink.State())

	err := sink.BroadcastToPlayers(ctx, "w1", testMessage(t))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(webhookTripAfter), hits.Load())
}

type fakeEventBridge struct {
	inputs []*eventbridge.PutEventsInput
	out    *eventbridge.PutEventsOutput
	err    error
}

func (f *fakeEventBridge) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestEventBridgeSink(t *testing.T) {
	ctx := context.Background()
	fake := &fakeEventBridge{}
	sink, err := NewEventBridgeSink(ctx, "game-bus", "", WithEventBridgeClient(fake))
	require.NoError(t, err)

	require.NoError(t, sink.BroadcastToPlayers(ctx, "w1", testMessage(t)))
	require.Len(t, fake.inputs, 1)
	entry := fake.inputs[0].Entries[0]
	assert.Equal(t, DefaultEventSource, aws.ToString(entry.Source))
	assert.Equal(t, "game-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, string(KindNarration), aws.ToString(entry.DetailType))
	assert.Equal(t, stamp, aws.ToTime(entry.Time))

	var detail webhookEnvelope
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, AudiencePlayers, detail.Audience)

	fake.out = &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []ebtypes.PutEventsResultEntry{{ErrorCode: aws.String("Throttled"), ErrorMessage: aws.String("slow down")}},
	}
	err = sink.SendToDirector(ctx, "w1", testMessage(t))
	assert.ErrorContains(t, err, "Throttled slow down")

	fake.err = errors.New("network")
	err = sink.SendToDirector(ctx, "w1", testMessage(t))
	assert.ErrorContains(t, err, "putting event")
}

func TestLogSink(t *testing.T) {
	s := NewLogSink(nil)
	assert.NoError(t, s.SendToDirector(context.Background(), "w1", testMessage(t)))
	assert.NoError(t, s.BroadcastToPlayers(context.Background(), "w1", testMessage(t)))
}
