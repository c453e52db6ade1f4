package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/narrator/internal/catalog"
	"github.com/dwsmith1983/narrator/internal/condition"
	"github.com/dwsmith1983/narrator/internal/notify"
	"github.com/dwsmith1983/narrator/internal/queue"
	"github.com/dwsmith1983/narrator/internal/staging"
	"github.com/dwsmith1983/narrator/internal/testutil"
	"github.com/dwsmith1983/narrator/pkg/types"
)

const harbor = "w-harbor"

var evening = time.Date(1492, 6, 1, 20, 0, 0, 0, time.UTC)

type env struct {
	store  *testutil.MockProvider
	cat    *catalog.Catalog
	qs     *Queues
	llm    *testutil.MockLLM
	sink   *testutil.RecordingSink
	engine *staging.Engine
	clock  *testutil.FakeClock

	playerAction   *PlayerActionHandler
	llmRequest     *LlmRequestHandler
	approval       *ApprovalHandler
	directorAction *DirectorActionHandler
	stagingRequest *StagingRequestHandler
	broadcast      *BroadcastHandler
}

func newEnv(t *testing.T, replies ...testutil.MockReply) *env {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.LoadDir("../catalog/testdata"))

	e := &env{
		store: testutil.NewMockProvider(),
		cat:   cat,
		llm:   testutil.NewMockLLM(replies...),
		sink:  testutil.NewRecordingSink(harbor),
		clock: testutil.NewFakeClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)),
	}
	e.qs = NewQueues(e.store)
	e.engine = staging.NewEngine(e.store, cat, cat, staging.Config{}, staging.WithClock(e.clock))

	e.playerAction = &PlayerActionHandler{
		Worlds: cat, Regions: cat, Characters: cat, Events: cat,
		Staging:    e.engine,
		Conditions: condition.NewEvaluator(e.llm),
		Queues:     e.qs,
	}
	e.llmRequest = &LlmRequestHandler{LLM: e.llm, Queues: e.qs}
	e.approval = &ApprovalHandler{Sink: e.sink, Clock: e.clock}
	e.directorAction = &DirectorActionHandler{Queues: e.qs, Staging: e.engine, Worlds: cat, Events: cat}
	e.stagingRequest = &StagingRequestHandler{Staging: e.engine, Sink: e.sink, Queues: e.qs, Clock: e.clock}
	e.broadcast = &BroadcastHandler{Sink: e.sink, Clock: e.clock}
	return e
}

// step processes exactly one item from q.
func step[T any](t *testing.T, q *queue.Queue[T], h Handler[T]) {
	t.Helper()
	worked, err := New("test", q, h).Step(context.Background())
	require.NoError(t, err)
	require.True(t, worked, "expected an item on %s", q.Type())
}

func (e *env) itemsOf(qt types.QueueType) []types.QueueItem {
	var out []types.QueueItem
	for _, it := range e.store.Items() {
		if it.Type == qt {
			out = append(out, it)
		}
	}
	return out
}

func (e *env) only(t *testing.T, qt types.QueueType) types.QueueItem {
	t.Helper()
	items := e.itemsOf(qt)
	require.Len(t, items, 1, "items on %s", qt)
	return items[0]
}

func decodeBody(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func (e *env) act(t *testing.T) string {
	t.Helper()
	id, err := e.qs.PlayerAction.Enqueue(context.Background(), PlayerAction{
		WorldID:       harbor,
		RegionID:      "r-taproom",
		PlayerID:      "p1",
		CharacterName: "Aria",
		ActionType:    "speak",
		Target:        "Tobin",
		Content:       "I raise my hooded lantern and ask about the docks",
		GameTime:      evening,
	})
	require.NoError(t, err)
	return id
}

// runToApproval drives one action through PLAYER_ACTION, LLM_REQUEST and
// DM_APPROVAL and returns the approval item id.
func (e *env) runToApproval(t *testing.T) string {
	t.Helper()
	e.act(t)
	step(t, e.qs.PlayerAction, e.playerAction)
	step(t, e.qs.LlmRequest, e.llmRequest)
	step(t, e.qs.Approval, e.approval)
	return e.only(t, types.QueueDmApproval).ID
}

func (e *env) decide(t *testing.T, d Decision) string {
	t.Helper()
	id, err := e.qs.DirectorAction.Enqueue(context.Background(), DirectorAction{WorldID: harbor, DirectorID: "dm-1", Decision: d})
	require.NoError(t, err)
	step(t, e.qs.DirectorAction, e.directorAction)
	return id
}

var (
	moonless  = testutil.MockReply{Content: `{"result": true, "confidence": 0.9, "reasoning": "No moon tonight"}`}
	narration = testutil.MockReply{
		Content: "Tobin leans closer. \"The docks? Not after dark, friend.\"",
		ToolCalls: []types.ToolCall{{
			ID: "call-1", Name: ToolTriggerEvent, Arguments: json.RawMessage(`{"event_id":"ev-smugglers"}`),
		}},
	}
)

func TestPipeline_ActionToNarration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, moonless, narration)
	actionID := e.act(t)

	step(t, e.qs.PlayerAction, e.playerAction)

	state, err := e.cat.GetWorldState(ctx, harbor)
	require.NoError(t, err)
	assert.Equal(t, 4, state.TurnCount)

	reqItem := e.only(t, types.QueueLlmRequest)
	require.NotNil(t, reqItem.CorrelationID)
	assert.Equal(t, actionID, *reqItem.CorrelationID)
	var req LlmRequest
	decodeBody(t, reqItem.Payload, &req)
	assert.Equal(t, 1, req.Attempt)
	require.Len(t, req.Suggestions, 1)
	assert.Equal(t, "ev-smugglers", req.Suggestions[0].EventID)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, ToolTriggerEvent, req.Tools[0].Name)
	assert.Contains(t, req.Request.SystemPrompt, "Saltmarsh Harbor")
	require.Len(t, req.Request.Messages, 1)
	prompt := req.Request.Messages[0].Content
	assert.Contains(t, prompt, "Location: Taproom")
	assert.Contains(t, prompt, "NPCs present: none")
	assert.Contains(t, prompt, "Aria (speak -> Tobin): I raise my hooded lantern")
	assert.Contains(t, prompt, "Smugglers' Deal [ev-smugglers]")

	step(t, e.qs.LlmRequest, e.llmRequest)
	assert.Equal(t, 2, e.llm.Calls(), "one condition check and one narration")

	step(t, e.qs.Approval, e.approval)
	sent := e.sink.OfKind(notify.KindApprovalRequired)
	require.Len(t, sent, 1)
	assert.Equal(t, notify.AudienceDirector, sent[0].Audience)
	var ar ApprovalRequired
	decodeBody(t, sent[0].Message.Payload, &ar)
	approvalID := e.only(t, types.QueueDmApproval).ID
	assert.Equal(t, approvalID, ar.RequestID)
	assert.Equal(t, "p1", ar.PlayerID)
	assert.Contains(t, ar.ProposedText, "Not after dark")
	require.Len(t, ar.ToolCalls, 1)
	assert.Equal(t, "call-1", ar.ToolCalls[0].ID)

	e.decide(t, &ApprovalDecision{RequestID: approvalID, Decision: types.DecisionAccept})
	step(t, e.qs.Broadcast, e.broadcast)

	out := e.sink.OfKind(notify.KindNarration)
	require.Len(t, out, 1)
	assert.Equal(t, notify.AudiencePlayers, out[0].Audience)
	var n Narration
	decodeBody(t, out[0].Message.Payload, &n)
	assert.Equal(t, "p1", n.PlayerID)
	assert.Equal(t, ar.ProposedText, n.Text)

	for _, it := range e.store.Items() {
		if it.Type == types.QueuePlayerAction || it.Type == types.QueueDirectorAction {
			continue
		}
		require.NotNil(t, it.CorrelationID, "item %s on %s", it.ID, it.Type)
		assert.Equal(t, actionID, *it.CorrelationID, "item on %s", it.Type)
	}
}

func TestPipeline_ModifyUsesDirectorText(t *testing.T) {
	e := newEnv(t, moonless, narration)
	approvalID := e.runToApproval(t)

	e.decide(t, &ApprovalDecision{RequestID: approvalID, Decision: types.DecisionModify, ModifiedText: "  Tobin shrugs.  "})
	step(t, e.qs.Broadcast, e.broadcast)

	var n Narration
	decodeBody(t, e.sink.OfKind(notify.KindNarration)[0].Message.Payload, &n)
	assert.Equal(t, "Tobin shrugs.", n.Text)
}

func TestPipeline_ModifyWithoutTextFails(t *testing.T) {
	e := newEnv(t, moonless, narration)
	approvalID := e.runToApproval(t)

	id := e.decide(t, &ApprovalDecision{RequestID: approvalID, Decision: types.DecisionModify})
	it, err := e.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, it.Status)
	assert.Empty(t, e.itemsOf(types.QueueBroadcast))
}

func TestPipeline_RejectRetriesWithFeedback(t *testing.T) {
	e := newEnv(t, moonless, narration, testutil.MockReply{Content: "Tobin glances at the door."})
	approvalID := e.runToApproval(t)

	e.decide(t, &ApprovalDecision{RequestID: approvalID, Decision: types.DecisionReject, Feedback: "Keep Tobin cagey"})

	var retry *types.QueueItem
	for _, it := range e.itemsOf(types.QueueLlmRequest) {
		if it.Status == types.StatusPending {
			retry = &it
		}
	}
	require.NotNil(t, retry)
	var req LlmRequest
	decodeBody(t, retry.Payload, &req)
	assert.Equal(t, 2, req.Attempt)
	require.Len(t, req.Request.Messages, 3)
	assert.Equal(t, types.RoleAssistant, req.Request.Messages[1].Role)
	assert.Contains(t, req.Request.Messages[1].Content, "Not after dark")
	assert.Equal(t, "The director rejected that response. Feedback: Keep Tobin cagey Write a new response.", req.Request.Messages[2].Content)

	step(t, e.qs.LlmRequest, e.llmRequest)
	step(t, e.qs.Approval, e.approval)
	sent := e.sink.OfKind(notify.KindApprovalRequired)
	require.Len(t, sent, 2)
	var ar ApprovalRequired
	decodeBody(t, sent[1].Message.Payload, &ar)
	assert.Equal(t, 2, ar.Attempt)
	assert.Equal(t, "Tobin glances at the door.", ar.ProposedText)
}

func TestPipeline_SecondDecisionRejected(t *testing.T) {
	e := newEnv(t, moonless, narration)
	approvalID := e.runToApproval(t)

	e.decide(t, &ApprovalDecision{RequestID: approvalID, Decision: types.DecisionAccept})
	second := e.decide(t, &ApprovalDecision{RequestID: approvalID, Decision: types.DecisionReject})

	it, err := e.store.GetItem(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, it.Status)
	assert.Contains(t, *it.Error, ErrAlreadyDecided.Error())
	assert.Len(t, e.itemsOf(types.QueueBroadcast), 1)
}

// gatedStore holds every read of one item until two readers have arrived, so
// both decisions see the approval as undecided.
type gatedStore struct {
	*testutil.MockProvider
	id      string
	readers sync.WaitGroup
}

func (g *gatedStore) GetItem(ctx context.Context, id string) (*types.QueueItem, error) {
	it, err := g.MockProvider.GetItem(ctx, id)
	if id == g.id {
		g.readers.Done()
		g.readers.Wait()
	}
	return it, err
}

func TestPipeline_ConcurrentDecisionsApplyOnce(t *testing.T) {
	e := newEnv(t, moonless, narration)
	approvalID := e.runToApproval(t)

	gated := &gatedStore{MockProvider: e.store, id: approvalID}
	gated.readers.Add(2)
	h := &DirectorActionHandler{Queues: NewQueues(gated), Staging: e.engine, Worlds: e.cat, Events: e.cat}

	decisions := []types.DecisionKind{types.DecisionAccept, types.DecisionReject}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, d := range decisions {
		wg.Add(1)
		go func(i int, d types.DecisionKind) {
			defer wg.Done()
			errs[i] = h.Handle(context.Background(), &queue.Item[DirectorAction]{
				ID:   "da-" + string(d),
				Data: DirectorAction{WorldID: harbor, DirectorID: "dm-1", Decision: &ApprovalDecision{RequestID: approvalID, Decision: d}},
			})
		}(i, d)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyDecided)
	}
	assert.Equal(t, 1, wins)

	retries := 0
	for _, it := range e.itemsOf(types.QueueLlmRequest) {
		if it.Status == types.StatusPending {
			retries++
		}
	}
	assert.Equal(t, 1, len(e.itemsOf(types.QueueBroadcast))+retries, "only the winning decision has a follow-up")

	appr := e.only(t, types.QueueDmApproval)
	var recorded ApprovalDecision
	decodeBody(t, appr.Result, &recorded)
	if errs[0] == nil {
		assert.Equal(t, types.DecisionAccept, recorded.Decision)
	} else {
		assert.Equal(t, types.DecisionReject, recorded.Decision)
	}
}

func TestPipeline_ApprovalNeedsDirector(t *testing.T) {
	e := newEnv(t, moonless, narration)
	e.sink.SetDirector(harbor, false)
	e.act(t)
	step(t, e.qs.PlayerAction, e.playerAction)
	step(t, e.qs.LlmRequest, e.llmRequest)
	step(t, e.qs.Approval, e.approval)

	it := e.only(t, types.QueueDmApproval)
	assert.Equal(t, types.StatusFailed, it.Status)
	assert.Contains(t, *it.Error, ErrNoDirector.Error())
	assert.Empty(t, e.sink.Deliveries())
}

func TestPipeline_ConditionFailureStillNarrates(t *testing.T) {
	e := newEnv(t, testutil.MockReply{Err: errors.New("model overloaded")}, narration)
	e.act(t)
	step(t, e.qs.PlayerAction, e.playerAction)

	var req LlmRequest
	decodeBody(t, e.only(t, types.QueueLlmRequest).Payload, &req)
	assert.Empty(t, req.Suggestions, "an unjudged condition counts as unmet")
	assert.Empty(t, req.Tools)
}

func TestPipeline_UnknownWorldFails(t *testing.T) {
	e := newEnv(t)
	id, err := e.qs.PlayerAction.Enqueue(context.Background(), PlayerAction{WorldID: "w-nowhere", RegionID: "r-taproom"})
	require.NoError(t, err)
	step(t, e.qs.PlayerAction, e.playerAction)

	it, err := e.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, it.Status)
	assert.Empty(t, e.itemsOf(types.QueueLlmRequest))
}

func TestDirector_TriggerEvent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.decide(t, &TriggerEventDecision{EventID: "ev-smugglers", Outcome: "struck a deal"})

	state, err := e.cat.GetWorldState(ctx, harbor)
	require.NoError(t, err)
	assert.True(t, state.Flags["met_smugglers"])
	assert.Equal(t, "struck a deal", state.CompletedEvents["ev-smugglers"])

	step(t, e.qs.Broadcast, e.broadcast)
	out := e.sink.OfKind(notify.KindEventTriggered)
	require.Len(t, out, 1)
	var body EventTriggered
	decodeBody(t, out[0].Message.Payload, &body)
	assert.Equal(t, "Smugglers' Deal", body.Name)
	assert.Equal(t, "struck a deal", body.Outcome)
	assert.NotEmpty(t, body.Changes)
}

func TestDirector_TriggerUnknownEventFails(t *testing.T) {
	e := newEnv(t)
	id := e.decide(t, &TriggerEventDecision{EventID: "ev-missing"})
	it, err := e.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, it.Status)
}

func TestDirector_DirectNpc(t *testing.T) {
	e := newEnv(t)
	e.decide(t, &DirectNpcControl{NpcID: "npc-mira", NpcName: "Mira", Dialogue: "Last call!"})
	step(t, e.qs.Broadcast, e.broadcast)

	var n Narration
	decodeBody(t, e.sink.OfKind(notify.KindNarration)[0].Message.Payload, &n)
	assert.Equal(t, "Mira", n.Speaker)
	assert.Equal(t, "Last call!", n.Text)
}

func TestDirector_StagingDecision(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.decide(t, &StagingDecision{
		RegionID:   "r-taproom",
		LocationID: "loc-anchor",
		GameTime:   evening,
		Source:     types.SourceDmCustomized,
		NPCs: []types.ApprovedNpc{
			{CharacterID: "npc-mira", IsPresent: true},
			{CharacterID: "npc-vell", IsPresent: true, IsHiddenFromPlayers: true},
		},
	})

	current, err := e.engine.GetCurrentStaging(ctx, "r-taproom", evening)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "dm-1", current.ApprovedBy)

	step(t, e.qs.Broadcast, e.broadcast)
	var ready StagingReady
	decodeBody(t, e.sink.OfKind(notify.KindStagingReady)[0].Message.Payload, &ready)
	assert.Equal(t, current.ID, ready.StagingID)
	require.Len(t, ready.NPCs, 1, "hidden NPCs are not broadcast")
	assert.Equal(t, "npc-mira", ready.NPCs[0].CharacterID)
}

func (e *env) requestStaging(t *testing.T) string {
	t.Helper()
	id, err := e.qs.StagingRequest.Enqueue(context.Background(), StagingRequest{
		WorldID: harbor, RegionID: "r-taproom", LocationID: "loc-anchor", PlayerID: "p1", GameTime: evening,
	})
	require.NoError(t, err)
	step(t, e.qs.StagingRequest, e.stagingRequest)
	return id
}

func TestStagingRequest_DirectorGetsProposal(t *testing.T) {
	e := newEnv(t)
	id := e.requestStaging(t)

	sent := e.sink.OfKind(notify.KindStagingRequired)
	require.Len(t, sent, 1)
	var p StagingProposal
	decodeBody(t, sent[0].Message.Payload, &p)
	assert.Equal(t, id, p.RequestID)
	assert.False(t, p.UsedLLM)
	names := map[string]bool{}
	for _, n := range p.RuleBased {
		names[n.Name] = n.IsPresent
	}
	assert.Equal(t, map[string]bool{"Mira": false, "Tobin": true}, names)
	assert.Empty(t, e.itemsOf(types.QueueBroadcast))
	assert.Zero(t, e.stagingRequest.Pending())
}

func TestStagingRequest_NoDirector(t *testing.T) {
	e := newEnv(t)
	e.sink.SetDirector(harbor, false)
	id := e.requestStaging(t)

	it, err := e.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, it.Status)
	assert.Contains(t, *it.Error, ErrNoDirector.Error())
}

func TestStagingRequest_AutoApproveWithoutDirector(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.sink.SetDirector(harbor, false)
	e.stagingRequest.AutoApprove = true
	e.requestStaging(t)

	current, err := e.engine.GetCurrentStaging(ctx, "r-taproom", evening)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, types.SourceAutoApproved, current.Source)
	assert.Equal(t, staging.SystemApprover, current.ApprovedBy)

	step(t, e.qs.Broadcast, e.broadcast)
	var ready StagingReady
	decodeBody(t, e.sink.OfKind(notify.KindStagingReady)[0].Message.Payload, &ready)
	require.Len(t, ready.NPCs, 1)
	assert.Equal(t, "Tobin", ready.NPCs[0].Name)
}

func TestStagingRequest_ValidStagingSkipsDirector(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.engine.PreStage(ctx, staging.ApproveRequest{
		WorldID: harbor, RegionID: "r-taproom", LocationID: "loc-anchor", GameTime: evening,
		NPCs: []types.ApprovedNpc{{CharacterID: "npc-tobin", IsPresent: true}}, ApprovedBy: "dm-1",
	})
	require.NoError(t, err)

	e.requestStaging(t)
	assert.Empty(t, e.sink.OfKind(notify.KindStagingRequired))
	step(t, e.qs.Broadcast, e.broadcast)
	assert.Len(t, e.sink.OfKind(notify.KindStagingReady), 1)
}

func TestStagingRequest_SweepAutoApprovesAfterTimeout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.stagingRequest.AutoApprove = true
	e.stagingRequest.AutoApproveAfter = 10 * time.Minute
	e.requestStaging(t)
	require.Equal(t, 1, e.stagingRequest.Pending())

	e.stagingRequest.Sweep(ctx)
	assert.Equal(t, 1, e.stagingRequest.Pending(), "not due yet")

	e.clock.Advance(11 * time.Minute)
	e.stagingRequest.Sweep(ctx)
	assert.Zero(t, e.stagingRequest.Pending())

	current, err := e.engine.GetCurrentStaging(ctx, "r-taproom", evening)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, types.SourceAutoApproved, current.Source)
	assert.Len(t, e.itemsOf(types.QueueBroadcast), 1)
}

func TestStagingRequest_SweepSkipsDecidedRegions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.stagingRequest.AutoApprove = true
	e.stagingRequest.AutoApproveAfter = time.Minute
	e.requestStaging(t)

	e.decide(t, &StagingDecision{
		RegionID: "r-taproom", LocationID: "loc-anchor", GameTime: evening, Source: types.SourceDmCustomized,
		NPCs: []types.ApprovedNpc{{CharacterID: "npc-mira", IsPresent: true}},
	})
	e.clock.Advance(2 * time.Minute)
	e.stagingRequest.Sweep(ctx)

	current, err := e.engine.GetCurrentStaging(ctx, "r-taproom", evening)
	require.NoError(t, err)
	assert.Equal(t, types.SourceDmCustomized, current.Source)
}

func TestStatusReporter_Report(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMockProvider()
	sink := testutil.NewRecordingSink(harbor, "w-other")
	sink.SetDirector("w-other", false)
	now := time.Now()
	msg := "generating response: model overloaded"
	for _, it := range []types.QueueItem{
		{ID: "f1", Type: types.QueueLlmRequest, Payload: json.RawMessage(`{"worldId":"w-harbor"}`), Status: types.StatusFailed, Error: &msg},
		{ID: "f2", Type: types.QueueLlmRequest, Payload: json.RawMessage(`{"worldId":"w-other"}`), Status: types.StatusFailed, Error: &msg},
		{ID: "p1", Type: types.QueuePlayerAction, Payload: json.RawMessage(`{"worldId":"w-harbor"}`), Status: types.StatusPending},
	} {
		it.CreatedAt, it.UpdatedAt = now, now
		require.NoError(t, store.Enqueue(ctx, it))
	}

	NewStatusReporter(store, sink, time.Minute, nil).Report(ctx)

	sent := sink.OfKind(notify.KindStatusReport)
	require.Len(t, sent, 1, "only worlds with a director get a report")
	assert.Equal(t, harbor, sent[0].WorldID)
	var report StatusReport
	decodeBody(t, sent[0].Message.Payload, &report)
	assert.Equal(t, 1, report.Pending[types.QueuePlayerAction])
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "f1", report.Failed[0].ID)
	assert.Equal(t, msg, report.Failed[0].Error)
}

func TestDirectorAction_JSON(t *testing.T) {
	in := DirectorAction{WorldID: harbor, DirectorID: "dm-1", Decision: &ApprovalDecision{RequestID: "a1", Decision: types.DecisionReject, Feedback: "shorter"}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"APPROVAL"`)

	var out DirectorAction
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in, out)

	err = json.Unmarshal([]byte(`{"worldId":"w","decision":{"type":"DANCE"}}`), &out)
	assert.ErrorContains(t, err, "unknown decision type")
	err = json.Unmarshal([]byte(`{"worldId":"w"}`), &out)
	assert.ErrorContains(t, err, "missing decision")
	_, err = json.Marshal(DirectorAction{WorldID: "w"})
	assert.Error(t, err)
}
