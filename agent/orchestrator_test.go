package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/explain"
	"github.com/shelfwise/shelfwise/internal/testutil"
	"github.com/shelfwise/shelfwise/session"
	"github.com/shelfwise/shelfwise/state"
	"github.com/shelfwise/shelfwise/tool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticProvider struct {
	snap *core.Snapshot
	err  error
}

func (p *staticProvider) Snapshot(context.Context) (*core.Snapshot, error) {
	return p.snap, p.err
}

type failingExplainer struct{}

func (failingExplainer) Explain(context.Context, explain.Bundle, string) (string, error) {
	return "", errors.New("model offline")
}

type echoExplainer struct{}

func (echoExplainer) Explain(_ context.Context, _ explain.Bundle, composed string) (string, error) {
	return "Rephrased: " + composed, nil
}

func newOrchestrator(t *testing.T, optFns ...func(o *Options)) (*Orchestrator, *state.InMemoryStore) {
	t.Helper()
	store := state.NewInMemoryStore()
	opts := append([]func(o *Options){
		WithClock(func() time.Time { return testutil.FixedNow }),
	}, optFns...)
	o := New(&staticProvider{snap: testutil.Snapshot()}, store, session.NewInMemoryStore(), opts...)
	return o, store
}

func eventCount(t *testing.T, store *state.InMemoryStore) int {
	t.Helper()
	var n int
	require.NoError(t, store.View(func(doc *state.Document) error {
		n = len(doc.Observability)
		return nil
	}))
	return n
}

func lastEvent(t *testing.T, store *state.InMemoryStore) core.ObservabilityEvent {
	t.Helper()
	var ev core.ObservabilityEvent
	require.NoError(t, store.View(func(doc *state.Document) error {
		require.NotEmpty(t, doc.Observability)
		ev = doc.Observability[len(doc.Observability)-1]
		return nil
	}))
	return ev
}

func TestHandleMintsSessionID(t *testing.T) {
	o, store := newOrchestrator(t)
	resp, err := o.Handle(context.Background(), Request{Message: "recommend a book for S0001"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, 1, eventCount(t, store))
	assert.Equal(t, resp.SessionID, lastEvent(t, store).SessionID)
}

func TestHandleEmptyMessageRejected(t *testing.T) {
	o, store := newOrchestrator(t)
	_, err := o.Handle(context.Background(), Request{Message: "   "})
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, 0, eventCount(t, store))
}

func TestHandleRecommendFlow(t *testing.T) {
	o, store := newOrchestrator(t)
	resp, err := o.Handle(context.Background(), Request{
		StudentID: "S0001",
		Message:   "what should I read next?",
	})
	require.NoError(t, err)

	assert.Equal(t, "recommend", resp.Intent)
	assert.Equal(t, "S0001", resp.StudentID)
	assert.Equal(t, core.OutcomeSuccess, resp.Outcome)
	assert.NotEmpty(t, resp.Recommendations)
	assert.NotEmpty(t, resp.Reply)

	ev := lastEvent(t, store)
	assert.Equal(t, "recommend", ev.Intent)
	assert.Equal(t, len(resp.Recommendations), ev.ResultSummary["recommendations"])
	assert.Equal(t, core.OutcomeSuccess, ev.Outcome)
}

func TestHandleRecommendationsExcludeBorrowed(t *testing.T) {
	o, _ := newOrchestrator(t)
	resp, err := o.Handle(context.Background(), Request{
		StudentID: "S0001",
		Message:   "recommend something new",
	})
	require.NoError(t, err)

	borrowed := map[string]bool{"B0001": true, "B0003": true}
	for _, rec := range resp.Recommendations {
		assert.False(t, borrowed[rec.Book.ID], "recommended already-borrowed %s", rec.Book.ID)
	}
}

func TestHandleHoldFlowWritesState(t *testing.T) {
	o, store := newOrchestrator(t)
	resp, err := o.Handle(context.Background(), Request{
		Message: "place a hold on B0004 for S0001",
	})
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeSuccess, resp.Outcome)
	require.Len(t, resp.ToolResults, 2)
	assert.Equal(t, tool.NameAvailability, resp.ToolResults[0].Tool)
	hold := resp.ToolResults[1].Data.(core.Hold)
	assert.Equal(t, core.HoldPending, hold.Status)
	assert.Contains(t, resp.Reply, hold.ID)

	require.NoError(t, store.View(func(doc *state.Document) error {
		_, exists := doc.ActiveHold("S0001", "B0004")
		assert.True(t, exists)
		return nil
	}))
}

func TestHandleDuplicateHoldIsPartialWithEvent(t *testing.T) {
	o, store := newOrchestrator(t)
	_, err := o.Handle(context.Background(), Request{Message: "place a hold on B0004 for S0001"})
	require.NoError(t, err)

	resp, err := o.Handle(context.Background(), Request{Message: "place a hold on B0004 for S0001"})
	require.NoError(t, err)

	assert.Equal(t, core.OutcomePartial, resp.Outcome)
	require.Len(t, resp.ToolResults, 2)
	assert.Empty(t, resp.ToolResults[0].Error)
	assert.Contains(t, resp.ToolResults[1].Error, "CONFLICT")

	assert.Equal(t, 2, eventCount(t, store))
	ev := lastEvent(t, store)
	assert.Equal(t, core.OutcomePartial, ev.Outcome)
	assert.Equal(t, 1, ev.ResultSummary["tool_errors"])
	require.Len(t, ev.Tools, 2)
	assert.NotEmpty(t, ev.Tools[1].Err)
}

func TestHandleClarificationPlansNoTools(t *testing.T) {
	o, store := newOrchestrator(t)
	resp, err := o.Handle(context.Background(), Request{Message: "cancel my hold"})
	require.NoError(t, err)

	assert.True(t, resp.Clarification)
	assert.Empty(t, resp.ToolResults)
	assert.NotEmpty(t, resp.Reply)
	assert.Equal(t, 1, eventCount(t, store))
	assert.Empty(t, lastEvent(t, store).Tools)
}

func TestHandleSnapshotProviderDown(t *testing.T) {
	store := state.NewInMemoryStore()
	o := New(&staticProvider{err: core.ErrDependencyUnavailable}, store, session.NewInMemoryStore())

	resp, err := o.Handle(context.Background(), Request{Message: "recommend a book for S0001"})
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeError, resp.Outcome)
	assert.Contains(t, resp.Reply, "unavailable")
	assert.Equal(t, 1, eventCount(t, store))
	assert.Equal(t, core.OutcomeError, lastEvent(t, store).Outcome)
}

func TestHandleExplainerFailSoft(t *testing.T) {
	o, _ := newOrchestrator(t, WithExplainer("test", failingExplainer{}))
	resp, err := o.Handle(context.Background(), Request{
		StudentID: "S0001",
		Message:   "recommend a book",
	})
	require.NoError(t, err)
	// Deterministic reply survives the model being down.
	assert.Equal(t, core.OutcomeSuccess, resp.Outcome)
	assert.NotEmpty(t, resp.Reply)
	assert.NotContains(t, resp.Reply, "model offline")
}

func TestHandleExplainerRewrites(t *testing.T) {
	o, _ := newOrchestrator(t, WithExplainer("test", echoExplainer{}))
	resp, err := o.Handle(context.Background(), Request{
		StudentID: "S0001",
		Message:   "recommend a book",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Reply, "Rephrased: ")
}

func TestHandleSessionHistoryAppended(t *testing.T) {
	store := state.NewInMemoryStore()
	sessions := session.NewInMemoryStore()
	o := New(&staticProvider{snap: testutil.Snapshot()}, store, sessions)

	resp, err := o.Handle(context.Background(), Request{
		StudentID: "S0001",
		Message:   "recommend a book",
	})
	require.NoError(t, err)

	sess, err := sessions.Get(resp.SessionID)
	require.NoError(t, err)
	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, resp.Reply, history[1].Text)
}

func TestHandleReusesProvidedSession(t *testing.T) {
	o, _ := newOrchestrator(t)

	first, err := o.Handle(context.Background(), Request{StudentID: "S0001", Message: "recommend a book"})
	require.NoError(t, err)

	second, err := o.Handle(context.Background(), Request{
		SessionID: first.SessionID,
		StudentID: "S0001",
		Message:   "recommend another",
	})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
}

func TestHandleLimitAndAvailabilityOnly(t *testing.T) {
	o, _ := newOrchestrator(t)
	resp, err := o.Handle(context.Background(), Request{
		StudentID:        "S0001",
		Message:          "recommend a book",
		Limit:            2,
		AvailabilityOnly: true,
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Recommendations)
	assert.LessOrEqual(t, len(resp.Recommendations), 2)
	for _, rec := range resp.Recommendations {
		assert.Equal(t, core.Available, rec.Book.Availability)
	}
}

func TestHandleLimitOutOfRangeRejected(t *testing.T) {
	o, store := newOrchestrator(t)
	_, err := o.Handle(context.Background(), Request{
		StudentID: "S0001",
		Message:   "recommend a book",
		Limit:     11,
	})
	assert.True(t, core.IsValidation(err))
	assert.Equal(t, 0, eventCount(t, store))
}

func TestHandleCarriesStudentFromEarlierTurn(t *testing.T) {
	o, store := newOrchestrator(t)

	first, err := o.Handle(context.Background(), Request{Message: "recommend a book for S0001"})
	require.NoError(t, err)

	resp, err := o.Handle(context.Background(), Request{
		SessionID: first.SessionID,
		Message:   "place a hold on B0004",
	})
	require.NoError(t, err)

	assert.Equal(t, "S0001", resp.StudentID)
	assert.Equal(t, core.OutcomeSuccess, resp.Outcome)
	require.NoError(t, store.View(func(doc *state.Document) error {
		_, exists := doc.ActiveHold("S0001", "B0004")
		assert.True(t, exists)
		return nil
	}))
}

// brokenLookup stands in for the availability tool and always fails.
type brokenLookup struct {
	tool.Availability
}

func (*brokenLookup) Invoke(context.Context, *tool.Invocation) (*tool.Result, error) {
	return nil, errors.New("search index offline")
}

func TestHandleLookupFailureStillPlacesHold(t *testing.T) {
	o, store := newOrchestrator(t, func(o *Options) {
		o.Registry = tool.NewRegistry(nil, &brokenLookup{}, &tool.PlaceHold{})
	})

	resp, err := o.Handle(context.Background(), Request{Message: "place a hold on B0004 for S0001"})
	require.NoError(t, err)

	assert.Equal(t, core.OutcomePartial, resp.Outcome)
	require.Len(t, resp.ToolResults, 2)
	assert.Contains(t, resp.ToolResults[0].Error, "search index offline")
	hold, ok := resp.ToolResults[1].Data.(core.Hold)
	require.True(t, ok)
	assert.Equal(t, core.HoldPending, hold.Status)

	require.NoError(t, store.View(func(doc *state.Document) error {
		_, exists := doc.ActiveHold("S0001", "B0004")
		assert.True(t, exists)
		return nil
	}))

	assert.Equal(t, 1, eventCount(t, store))
	ev := lastEvent(t, store)
	require.Len(t, ev.Tools, 2)
	assert.NotEmpty(t, ev.Tools[0].Err)
	assert.Empty(t, ev.Tools[1].Err)
}

func TestHandleFeedbackThenBoostedRecommendations(t *testing.T) {
	o, _ := newOrchestrator(t)

	_, err := o.Handle(context.Background(), Request{Message: "S0002 rated Embermark 5 stars"})
	require.NoError(t, err)

	resp, err := o.Handle(context.Background(), Request{StudentID: "S0002", Message: "recommend a book"})
	require.NoError(t, err)

	var found bool
	for _, rec := range resp.Recommendations {
		if rec.Book.ID == "B0003" {
			found = true
			require.NotNil(t, rec.AvgRating)
			assert.InDelta(t, 5.0, *rec.AvgRating, 1e-9)
			assert.Greater(t, rec.FeedbackBonus, 0.0)
		}
	}
	assert.True(t, found, "rated book missing from recommendations")
}
