package core

import "time"

// HoldStatus is the lifecycle state of a hold.
type HoldStatus string

// Hold lifecycle states. Pending and Ready count as active for the
// one-active-hold-per-(student,book) invariant. Cancelled, Fulfilled and
// Expired are terminal.
const (
	HoldPending   HoldStatus = "Pending"
	HoldReady     HoldStatus = "Ready"
	HoldFulfilled HoldStatus = "Fulfilled"
	HoldCancelled HoldStatus = "Cancelled"
	HoldExpired   HoldStatus = "Expired"
)

// Active reports whether the status still claims the book.
func (s HoldStatus) Active() bool { return s == HoldPending || s == HoldReady }

// Terminal reports whether the status can no longer change.
func (s HoldStatus) Terminal() bool {
	return s == HoldFulfilled || s == HoldCancelled || s == HoldExpired
}

// Hold is a reservation claim by a student on a book. Created Pending by the
// place_hold tool; Cancelled via cancel_hold; Fulfilled and Expired are set by
// the external circulation system through HoldLifecycle.
type Hold struct {
	ID          string     `json:"hold_id"`
	StudentID   string     `json:"student_id"`
	BookID      string     `json:"book_id"`
	Status      HoldStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// HoldLifecycle is the interface the engine accepts from the external
// circulation/inventory system for the transitions it does not own
// (Ready, Fulfilled, Expired). Shelfwise never implements this itself.
type HoldLifecycle interface {
	Transition(holdID string, to HoldStatus) (Hold, error)
}

// FeedbackEntry is one rating a student gave a book. Append-only: entries are
// never mutated or deleted, and a student may rate the same book repeatedly.
type FeedbackEntry struct {
	ID        string    `json:"feedback_id"`
	StudentID string    `json:"student_id"`
	BookID    string    `json:"book_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RatingBounds for feedback entries, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// OnboardingProfile captures a student's stated or derived reading
// preferences. Persisted with last-write-wins per field set.
type OnboardingProfile struct {
	StudentID       string    `json:"student_id"`
	Interests       []string  `json:"interests,omitempty"`
	PreferredGenres []string  `json:"preferred_genres,omitempty"`
	ReadingLevel    float64   `json:"reading_level,omitempty"`
	Goals           string    `json:"goals,omitempty"`
	AvoidTopics     []string  `json:"avoid_topics,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	Source          string    `json:"source,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ProfileUpdate is a partial profile change: nil fields leave the prior value
// untouched.
type ProfileUpdate struct {
	Interests       []string `json:"interests,omitempty"`
	PreferredGenres []string `json:"preferred_genres,omitempty"`
	ReadingLevel    *float64 `json:"reading_level,omitempty"`
	Goals           *string  `json:"goals,omitempty"`
	AvoidTopics     []string `json:"avoid_topics,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
}

// Apply merges the update into the profile, returning the merged copy.
func (u ProfileUpdate) Apply(p OnboardingProfile, now time.Time) OnboardingProfile {
	if u.Interests != nil {
		p.Interests = u.Interests
	}
	if u.PreferredGenres != nil {
		p.PreferredGenres = u.PreferredGenres
	}
	if u.ReadingLevel != nil {
		p.ReadingLevel = *u.ReadingLevel
	}
	if u.Goals != nil {
		p.Goals = *u.Goals
	}
	if u.AvoidTopics != nil {
		p.AvoidTopics = u.AvoidTopics
	}
	if u.Notes != nil {
		p.Notes = *u.Notes
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return p
}

// Outcome classifies a whole orchestrator invocation.
type Outcome string

// Invocation outcomes.
const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeError   Outcome = "error"
)

// ToolRecord is the audit entry for one tool invocation inside a plan.
type ToolRecord struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Err       string         `json:"error,omitempty"`
}

// ObservabilityEvent is the append-only audit record written once per
// orchestrator invocation, success or not.
type ObservabilityEvent struct {
	ID            string       `json:"event_id"`
	Timestamp     time.Time    `json:"timestamp"`
	SessionID     string       `json:"session_id,omitempty"`
	StudentID     string       `json:"student_id,omitempty"`
	Intent        string       `json:"intent"`
	Tools         []ToolRecord `json:"tools_invoked,omitempty"`
	ResultSummary map[string]int `json:"result_summary,omitempty"`
	Outcome       Outcome      `json:"outcome"`
}
