// Package agent contains the concierge orchestrator: one request in, one
// reply out, with routing, tool execution, recommendation and audit handled
// as a fixed pipeline. The orchestrator owns sequencing and outcome
// classification; domain behavior lives in the tools and the recommender.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/explain"
	"github.com/shelfwise/shelfwise/intent"
	"github.com/shelfwise/shelfwise/logging"
	"github.com/shelfwise/shelfwise/recommend"
	"github.com/shelfwise/shelfwise/state"
	"github.com/shelfwise/shelfwise/tool"
)

// Request is one concierge turn. SessionID and StudentID are optional; a
// missing session id is minted and returned in the response. Limit caps the
// recommendation list (1 to 10, zero means the default of 5) and
// AvailabilityOnly keeps checked-out and held copies out of it.
type Request struct {
	SessionID        string `json:"session_id,omitempty"`
	StudentID        string `json:"student_id,omitempty"`
	Message          string `json:"message"`
	Limit            int    `json:"limit,omitempty"`
	AvailabilityOnly bool   `json:"availability_only,omitempty"`
}

// ToolResult is the outcome of one planned tool call, successful or not.
type ToolResult struct {
	Tool     string   `json:"tool"`
	Data     any      `json:"data,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Response is the orchestrator's reply envelope. StudentID is the student
// the turn resolved to, whether it came from the request or the message.
type Response struct {
	SessionID       string              `json:"session_id"`
	StudentID       string              `json:"student_id,omitempty"`
	EventID         string              `json:"event_id"`
	Intent          string              `json:"intent"`
	Reply           string              `json:"reply"`
	Outcome         core.Outcome        `json:"outcome"`
	Clarification   bool                `json:"clarification,omitempty"`
	ToolResults     []ToolResult        `json:"tool_results,omitempty"`
	Recommendations []recommend.Boosted `json:"recommendations,omitempty"`
}

// Options configure an Orchestrator.
type Options struct {
	Logger            logging.Logger
	Registry          *tool.Registry
	Router            *intent.Router
	Explainer         explain.Explainer
	ExplainerProvider string
	Clock             func() time.Time
	HoldRetention     time.Duration
	FeedbackWeight    float64
}

// Orchestrator coordinates one concierge invocation end to end:
// session resolution, routing, tool execution, recommendation, guardrailed
// composition and exactly one observability event.
type Orchestrator struct {
	snapshots core.SnapshotProvider
	store     state.Store
	sessions  core.SessionStore
	opts      Options
}

// New creates an orchestrator over a snapshot provider, document store and
// session store.
func New(snapshots core.SnapshotProvider, store state.Store, sessions core.SessionStore, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Logger:         logging.NoOpLogger{},
		Clock:          func() time.Time { return time.Now().UTC() },
		HoldRetention:  tool.DefaultHoldRetention,
		FeedbackWeight: recommend.DefaultFeedbackWeight,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = tool.DefaultRegistry(opts.Logger)
	}
	if opts.Router == nil {
		opts.Router = intent.NewRouter()
	}
	return &Orchestrator{snapshots: snapshots, store: store, sessions: sessions, opts: opts}
}

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithExplainer sets an optional model-backed reply rewriter. The provider
// name only labels log lines. Explainer failures never fail the request.
func WithExplainer(provider string, e explain.Explainer) func(o *Options) {
	return func(o *Options) {
		o.Explainer = e
		o.ExplainerProvider = provider
	}
}

// WithClock overrides the request clock.
func WithClock(now func() time.Time) func(o *Options) {
	return func(o *Options) { o.Clock = now }
}

// WithHoldRetention sets the hold expiry window.
func WithHoldRetention(d time.Duration) func(o *Options) {
	return func(o *Options) { o.HoldRetention = d }
}

// WithFeedbackWeight sets the rating blend weight for boosted
// recommendations.
func WithFeedbackWeight(w float64) func(o *Options) {
	return func(o *Options) { o.FeedbackWeight = w }
}

// Handle runs one concierge turn. Every call, including failed ones, appends
// exactly one observability event before returning.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, core.NewValidationError("message", req.Message, "must not be empty")
	}
	if req.Limit < 0 || req.Limit > 10 {
		return nil, core.NewValidationError("limit", req.Limit, "must be between 1 and 10")
	}
	now := o.opts.Clock()

	sessionID, err := o.resolveSession(req, now)
	if err != nil {
		return nil, err
	}

	resp := &Response{SessionID: sessionID, StudentID: req.StudentID, Outcome: core.OutcomeSuccess}
	ev := core.ObservabilityEvent{
		ID:            core.NewEventID(),
		Timestamp:     now,
		SessionID:     sessionID,
		StudentID:     req.StudentID,
		ResultSummary: map[string]int{},
		Outcome:       core.OutcomeSuccess,
	}
	resp.EventID = ev.ID

	bundle := explain.Bundle{StudentID: req.StudentID}
	defer func() {
		o.finishTurn(sessionID, resp, &ev, now)
	}()

	snap, err := o.snapshots.Snapshot(ctx)
	if err != nil {
		ev.Intent = "unroutable"
		ev.Outcome = core.OutcomeError
		resp.Intent = ev.Intent
		resp.Outcome = core.OutcomeError
		resp.Reply = explain.Compose(explain.Bundle{
			Errors: []string{"the catalog is unavailable right now, please try again shortly"},
		})
		return resp, nil
	}

	plan := o.opts.Router.Route(intent.Request{
		Message:          req.Message,
		StudentID:        req.StudentID,
		Snapshot:         snap,
		Profile:          o.profileFor(req.StudentID),
		History:          o.recentTexts(sessionID),
		Limit:            req.Limit,
		AvailabilityOnly: req.AvailabilityOnly,
	})
	resp.Intent = string(plan.Intent)
	ev.Intent = string(plan.Intent)
	bundle.Intent = string(plan.Intent)
	if plan.StudentID != "" {
		resp.StudentID = plan.StudentID
		bundle.StudentID = plan.StudentID
		ev.StudentID = plan.StudentID
	}

	if plan.Clarification != "" {
		resp.Clarification = true
		bundle.Clarification = plan.Clarification
		resp.Reply = explain.Compose(bundle)
		ev.ResultSummary["clarifications"] = 1
		return resp, nil
	}

	inv := &tool.Invocation{
		Snapshot:      snap,
		Store:         o.store,
		Now:           now,
		HoldRetention: o.opts.HoldRetention,
	}
	resp.ToolResults = o.executeTools(ctx, plan, inv, &ev)

	if plan.RunRecommender {
		resp.Recommendations = o.recommendFor(snap, plan)
		ev.ResultSummary["recommendations"] = len(resp.Recommendations)
	}

	o.aggregate(resp, &bundle, snap)

	if failed, total := countFailures(resp.ToolResults), len(resp.ToolResults); failed > 0 {
		ev.ResultSummary["tool_errors"] = failed
		if failed == total && !plan.RunRecommender {
			resp.Outcome = core.OutcomeError
		} else {
			resp.Outcome = core.OutcomePartial
		}
	}
	ev.Outcome = resp.Outcome

	resp.Reply = o.composeReply(ctx, bundle)
	return resp, nil
}

// resolveSession returns the session id to use, minting and creating one
// when the request carries none or an unknown one.
func (o *Orchestrator) resolveSession(req Request, now time.Time) (string, error) {
	id := req.SessionID
	if id == "" {
		id = core.NewID()
		if _, err := o.sessions.Create(id); err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
	} else if _, err := o.sessions.Get(id); err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return "", fmt.Errorf("resolve session: %w", err)
		}
		if _, err := o.sessions.Create(id); err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
	}
	if err := o.sessions.Append(id, core.Message{Role: "user", Text: req.Message, Timestamp: now}); err != nil {
		o.opts.Logger.Warn("session.append_failed", "session_id", id, "error", err.Error())
	}
	return id, nil
}

// recentTexts returns the session's latest message texts so the router can
// pick identifiers out of earlier turns.
func (o *Orchestrator) recentTexts(sessionID string) []string {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil
	}
	return sess.RecentTexts(8)
}

// profileFor loads the student's onboarding profile for routing defaults.
// Missing profiles and read failures both yield nil.
func (o *Orchestrator) profileFor(studentID string) *core.OnboardingProfile {
	if studentID == "" {
		return nil
	}
	var profile *core.OnboardingProfile
	_ = o.store.View(func(doc *state.Document) error {
		if p, err := doc.Profile(studentID); err == nil {
			profile = &p
		}
		return nil
	})
	return profile
}

// executeTools runs the plan: read-only tools concurrently, mutating tools
// serially in plan order with a short-circuit on the first failure. Results
// from completed calls survive a later failure.
func (o *Orchestrator) executeTools(ctx context.Context, plan intent.Plan, inv *tool.Invocation, ev *core.ObservabilityEvent) []ToolResult {
	var readOnly, mutating []int
	for i, call := range plan.Tools {
		t, ok := o.opts.Registry.Get(call.Tool)
		if ok && t.Mutating() {
			mutating = append(mutating, i)
		} else {
			readOnly = append(readOnly, i)
		}
	}

	results := make(map[int]*ToolResult, len(plan.Tools))
	var mu sync.Mutex
	record := func(i int, res *tool.Result, err error) {
		tr := &ToolResult{Tool: plan.Tools[i].Tool}
		if err != nil {
			tr.Error = err.Error()
		} else {
			tr.Data = res.Data
			tr.Warnings = res.Warnings
		}
		mu.Lock()
		results[i] = tr
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range readOnly {
		g.Go(func() error {
			callInv := *inv
			callInv.Args = plan.Tools[i].Args
			res, err := o.opts.Registry.Invoke(gctx, plan.Tools[i].Tool, &callInv)
			record(i, res, err)
			// Failures are recorded, not propagated: one bad read must not
			// cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	for _, i := range mutating {
		callInv := *inv
		callInv.Args = plan.Tools[i].Args
		res, err := o.opts.Registry.Invoke(ctx, plan.Tools[i].Tool, &callInv)
		record(i, res, err)
		if err != nil {
			break
		}
	}

	ordered := make([]ToolResult, 0, len(results))
	for i, call := range plan.Tools {
		tr, ok := results[i]
		if !ok {
			continue
		}
		ordered = append(ordered, *tr)
		ev.Tools = append(ev.Tools, core.ToolRecord{
			Name:      call.Tool,
			Arguments: call.Args,
			Err:       tr.Error,
		})
	}
	return ordered
}

// recommendFor runs the co-occurrence recommender and blends in feedback
// ratings.
func (o *Orchestrator) recommendFor(snap *core.Snapshot, plan intent.Plan) []recommend.Boosted {
	base := recommend.New(snap).Recommend(plan.StudentID, plan.TopK, plan.Filters)
	var feedback []core.FeedbackEntry
	_ = o.store.View(func(doc *state.Document) error {
		feedback = append(feedback, doc.Feedback...)
		return nil
	})
	return recommend.Boost(base, feedback, o.opts.FeedbackWeight)
}

// aggregate renders tool results and recommendations into bundle facts. The
// composer states nothing that is not produced here.
func (o *Orchestrator) aggregate(resp *Response, bundle *explain.Bundle, snap *core.Snapshot) {
	for _, tr := range resp.ToolResults {
		if tr.Error != "" {
			bundle.Errors = append(bundle.Errors, friendlyError(tr))
			continue
		}
		bundle.Facts = append(bundle.Facts, factsFor(tr, snap)...)
		bundle.Warnings = append(bundle.Warnings, tr.Warnings...)
	}
	for i, rec := range resp.Recommendations {
		line := fmt.Sprintf("%d. %q by %s (%s)", i+1, rec.Book.Title, rec.Book.Author, rec.Reason)
		if rec.AvgRating != nil {
			line += fmt.Sprintf(", rated %.1f by readers", *rec.AvgRating)
		}
		bundle.Facts = append(bundle.Facts, line)
	}
}

// factsFor translates one successful tool result into reply facts.
func factsFor(tr ToolResult, snap *core.Snapshot) []string {
	switch data := tr.Data.(type) {
	case core.Hold:
		if data.Status == core.HoldCancelled {
			return []string{fmt.Sprintf("Cancelled hold %s on %s.", data.ID, bookTitle(snap, data.BookID))}
		}
		return []string{fmt.Sprintf("Placed hold %s on %s for %s; it expires %s.",
			data.ID, bookTitle(snap, data.BookID), data.StudentID, data.ExpiresAt.Format("January 2"))}

	case core.FeedbackEntry:
		return []string{fmt.Sprintf("Recorded a %d-star rating of %s for %s.",
			data.Rating, bookTitle(snap, data.BookID), data.StudentID)}

	case []tool.HistoryItem:
		facts := []string{fmt.Sprintf("Reading history, most recent first (%d titles):", len(data))}
		for _, item := range data {
			facts = append(facts, fmt.Sprintf("- %q by %s, checked out %s",
				item.Book.Title, item.Book.Author, item.CheckoutDate.Format("January 2")))
		}
		return facts

	case []tool.AvailabilityMatch:
		facts := []string{fmt.Sprintf("Found %d matching titles:", len(data))}
		for _, m := range data {
			facts = append(facts, fmt.Sprintf("- %q by %s (%s)", m.Book.Title, m.Book.Author, m.Book.Availability))
		}
		return facts

	case tool.Continuation:
		var facts []string
		if data.Mode == tool.ContinuationSeries {
			facts = append(facts, fmt.Sprintf("In the %s series after %q:", data.Series, data.Anchor.Title))
		} else {
			facts = append(facts, fmt.Sprintf("More by %s:", data.Anchor.Author))
		}
		for _, b := range data.Results {
			facts = append(facts, fmt.Sprintf("- %q (%d, %s)", b.Title, b.PublicationYear, b.Availability))
		}
		return facts

	case tool.OnboardingDraft:
		return []string{data.Summary}

	case tool.StudentOverview:
		facts := []string{fmt.Sprintf("%s: grade %d, %d loans (%d active), %d distinct books.",
			data.Student.ID, data.Student.Grade, data.TotalLoans, data.ActiveLoans, data.DistinctBooks)}
		if len(data.TopGenres) > 0 {
			facts = append(facts, "Favorite genres: "+strings.Join(data.TopGenres, ", ")+".")
		}
		if len(data.ActiveHolds) > 0 {
			facts = append(facts, fmt.Sprintf("%d active holds.", len(data.ActiveHolds)))
		}
		if data.AvgRating != nil {
			facts = append(facts, fmt.Sprintf("Average rating given: %.1f over %d reviews.",
				*data.AvgRating, data.FeedbackCount))
		}
		return facts

	default:
		return []string{fmt.Sprintf("%s completed.", tr.Tool)}
	}
}

func countFailures(results []ToolResult) int {
	var n int
	for _, tr := range results {
		if tr.Error != "" {
			n++
		}
	}
	return n
}

func friendlyError(tr ToolResult) string {
	return fmt.Sprintf("%s failed: %s", tr.Tool, tr.Error)
}

func bookTitle(snap *core.Snapshot, bookID string) string {
	if b, ok := snap.Books[bookID]; ok {
		return fmt.Sprintf("%q", b.Title)
	}
	return bookID
}

// composeReply renders the deterministic reply and optionally lets the
// explainer rephrase it. Explainer failure falls back silently to the
// composed text.
func (o *Orchestrator) composeReply(ctx context.Context, bundle explain.Bundle) string {
	composed := explain.Compose(bundle)
	if o.opts.Explainer == nil {
		return composed
	}
	start := time.Now()
	text, err := o.opts.Explainer.Explain(ctx, bundle, composed)
	logging.LogExplainerCall(o.opts.Logger, o.opts.ExplainerProvider, time.Since(start), err)
	if err != nil {
		return composed
	}
	return text
}

// finishTurn appends the assistant reply to the session and writes the
// single observability event for this invocation.
func (o *Orchestrator) finishTurn(sessionID string, resp *Response, ev *core.ObservabilityEvent, now time.Time) {
	if err := o.sessions.Append(sessionID, core.Message{Role: "assistant", Text: resp.Reply, Timestamp: now}); err != nil {
		o.opts.Logger.Warn("session.append_failed", "session_id", sessionID, "error", err.Error())
	}
	err := o.store.Transact(func(doc *state.Document) error {
		doc.AppendEvent(*ev)
		return nil
	})
	if err != nil {
		o.opts.Logger.Error("observability.append_failed", "event_id", ev.ID, "error", err.Error())
	}
	o.opts.Logger.Info("agent.turn",
		"event_id", ev.ID,
		"session_id", sessionID,
		"intent", ev.Intent,
		"outcome", string(resp.Outcome),
		"tools", len(ev.Tools),
	)
}
