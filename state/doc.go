// Package state implements the persisted state store: a single keyed JSON
// document holding onboarding profiles, holds (with an active-hold index),
// the append-only feedback list and the append-only observability log.
//
// Two implementations share the Document model: FileStore persists with a
// write-to-temporary-then-rename discipline so a crash mid-write never leaves
// a structurally invalid store, and InMemoryStore backs tests and ephemeral
// runs. All mutations flow through Transact, which makes the check-and-set
// and the durable write atomic relative to other mutations.
package state

import (
	"sort"

	"github.com/shelfwise/shelfwise/core"
)

// SchemaVersion of the persisted document layout.
const SchemaVersion = 1

// ObservabilityCap bounds the retained audit log; older entries roll off.
const ObservabilityCap = 200

// Document is the whole durable store. It is only ever read or mutated inside
// Store.View / Store.Transact callbacks.
type Document struct {
	SchemaVersion int                               `json:"schema_version"`
	Profiles      map[string]core.OnboardingProfile `json:"profiles"`
	Holds         map[string]core.Hold              `json:"holds"`
	ActiveHolds   map[string]string                 `json:"active_holds"` // studentID|bookID -> holdID
	Feedback      []core.FeedbackEntry              `json:"feedback"`
	Observability []core.ObservabilityEvent         `json:"observability"`
}

// NewDocument returns an empty document at the current schema version.
func NewDocument() *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		Profiles:      map[string]core.OnboardingProfile{},
		Holds:         map[string]core.Hold{},
		ActiveHolds:   map[string]string{},
	}
}

func holdKey(studentID, bookID string) string { return studentID + "|" + bookID }

// normalize repairs nil maps after JSON decoding and pins the schema version.
func (d *Document) normalize() {
	if d.Profiles == nil {
		d.Profiles = map[string]core.OnboardingProfile{}
	}
	if d.Holds == nil {
		d.Holds = map[string]core.Hold{}
	}
	if d.ActiveHolds == nil {
		d.ActiveHolds = map[string]string{}
	}
	d.SchemaVersion = SchemaVersion
}

// Profile returns the onboarding profile for a student, or ErrNotFound.
func (d *Document) Profile(studentID string) (core.OnboardingProfile, error) {
	p, ok := d.Profiles[studentID]
	if !ok {
		return core.OnboardingProfile{}, core.ErrNotFound
	}
	return p, nil
}

// UpsertProfile stores the profile keyed by student id, last write wins.
func (d *Document) UpsertProfile(p core.OnboardingProfile) {
	d.Profiles[p.StudentID] = p
}

// Hold returns a hold by id, or ErrNotFound.
func (d *Document) Hold(holdID string) (core.Hold, error) {
	h, ok := d.Holds[holdID]
	if !ok {
		return core.Hold{}, core.ErrNotFound
	}
	return h, nil
}

// ActiveHold returns the Pending/Ready hold for a (student, book) pair.
func (d *Document) ActiveHold(studentID, bookID string) (core.Hold, bool) {
	id, ok := d.ActiveHolds[holdKey(studentID, bookID)]
	if !ok {
		return core.Hold{}, false
	}
	h, ok := d.Holds[id]
	if !ok || !h.Status.Active() {
		return core.Hold{}, false
	}
	return h, true
}

// PutHold stores a hold and maintains the active-hold index. Storing a hold
// in a terminal state clears the pair's index entry if it points at it.
func (d *Document) PutHold(h core.Hold) {
	d.Holds[h.ID] = h
	key := holdKey(h.StudentID, h.BookID)
	if h.Status.Active() {
		d.ActiveHolds[key] = h.ID
		return
	}
	if d.ActiveHolds[key] == h.ID {
		delete(d.ActiveHolds, key)
	}
}

// HoldsFor returns the holds belonging to a student, newest first by
// creation time with id as the final tie-break for determinism.
func (d *Document) HoldsFor(studentID string) []core.Hold {
	var out []core.Hold
	for _, h := range d.Holds {
		if h.StudentID == studentID {
			out = append(out, h)
		}
	}
	sortHolds(out)
	return out
}

// AllHolds returns every hold, newest first.
func (d *Document) AllHolds() []core.Hold {
	out := make([]core.Hold, 0, len(d.Holds))
	for _, h := range d.Holds {
		out = append(out, h)
	}
	sortHolds(out)
	return out
}

// NextHoldID allocates the next sequential hold display id.
func (d *Document) NextHoldID() string {
	ids := make([]string, 0, len(d.Holds))
	for id := range d.Holds {
		ids = append(ids, id)
	}
	return core.NextSequentialID("H", ids)
}

// AppendFeedback allocates an id and appends the entry. Entries are never
// mutated or removed afterwards.
func (d *Document) AppendFeedback(e core.FeedbackEntry) core.FeedbackEntry {
	ids := make([]string, 0, len(d.Feedback))
	for _, f := range d.Feedback {
		ids = append(ids, f.ID)
	}
	e.ID = core.NextSequentialID("F", ids)
	d.Feedback = append(d.Feedback, e)
	return e
}

// FeedbackFor returns the entries for a student in append order.
func (d *Document) FeedbackFor(studentID string) []core.FeedbackEntry {
	var out []core.FeedbackEntry
	for _, e := range d.Feedback {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out
}

// AppendEvent appends an observability event, trimming to ObservabilityCap.
func (d *Document) AppendEvent(ev core.ObservabilityEvent) {
	d.Observability = append(d.Observability, ev)
	if n := len(d.Observability); n > ObservabilityCap {
		d.Observability = append([]core.ObservabilityEvent(nil), d.Observability[n-ObservabilityCap:]...)
	}
}

// Clone deep-copies the document so Transact can work on a scratch copy and
// discard it on failure.
func (d *Document) Clone() *Document {
	clone := &Document{
		SchemaVersion: d.SchemaVersion,
		Profiles:      make(map[string]core.OnboardingProfile, len(d.Profiles)),
		Holds:         make(map[string]core.Hold, len(d.Holds)),
		ActiveHolds:   make(map[string]string, len(d.ActiveHolds)),
		Feedback:      append([]core.FeedbackEntry(nil), d.Feedback...),
		Observability: append([]core.ObservabilityEvent(nil), d.Observability...),
	}
	for k, v := range d.Profiles {
		clone.Profiles[k] = v
	}
	for k, v := range d.Holds {
		clone.Holds[k] = v
	}
	for k, v := range d.ActiveHolds {
		clone.ActiveHolds[k] = v
	}
	return clone
}

func sortHolds(holds []core.Hold) {
	// newest first, id as deterministic tie-break
	sort.Slice(holds, func(i, j int) bool {
		if !holds[i].CreatedAt.Equal(holds[j].CreatedAt) {
			return holds[i].CreatedAt.After(holds[j].CreatedAt)
		}
		return holds[i].ID > holds[j].ID
	})
}
