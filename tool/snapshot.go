package tool

import (
	"context"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/state"
)

// StudentSnapshot assembles everything known about one student: roster data,
// onboarding profile, loan statistics, active holds and feedback summary. It
// reads durable state through a View; it never writes.
type StudentSnapshot struct{}

// StudentOverview is the combined per-student view.
type StudentOverview struct {
	Student       core.Student            `json:"student"`
	Profile       *core.OnboardingProfile `json:"profile,omitempty"`
	TotalLoans    int                     `json:"total_loans"`
	ActiveLoans   int                     `json:"active_loans"`
	DistinctBooks int                     `json:"distinct_books"`
	TopGenres     []string                `json:"top_genres,omitempty"`
	ActiveHolds   []core.Hold             `json:"active_holds,omitempty"`
	FeedbackCount int                     `json:"feedback_count"`
	AvgRating     *float64                `json:"avg_rating,omitempty"`
}

func (t *StudentSnapshot) Name() string { return NameStudentSnapshot }

func (t *StudentSnapshot) Description() string {
	return "Summarize a student's roster record, profile, loans, holds and feedback."
}

func (t *StudentSnapshot) Mutating() bool { return false }

func (t *StudentSnapshot) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"student_id": map[string]any{
				"type":        "string",
				"description": "Student identifier, e.g. S0042.",
			},
		},
		"required": []string{"student_id"},
	}
}

func (t *StudentSnapshot) Invoke(_ context.Context, inv *Invocation) (*Result, error) {
	studentID := argString(inv.Args, "student_id")
	student, ok := inv.Snapshot.Students[studentID]
	if !ok {
		return nil, wrapError(NameStudentSnapshot,
			core.NewValidationError("student_id", studentID, "unknown student"))
	}

	overview := StudentOverview{Student: student}

	genreCounts := map[string]int{}
	distinct := map[string]struct{}{}
	for _, l := range inv.Snapshot.LoansFor(studentID) {
		overview.TotalLoans++
		if l.Active() {
			overview.ActiveLoans++
		}
		distinct[l.BookID] = struct{}{}
		if b, ok := inv.Snapshot.Books[l.BookID]; ok {
			genreCounts[b.Genre]++
		}
	}
	overview.DistinctBooks = len(distinct)
	overview.TopGenres = topCounted(genreCounts, 3)

	err := inv.Store.View(func(doc *state.Document) error {
		if p, err := doc.Profile(studentID); err == nil {
			overview.Profile = &p
		}
		for _, h := range doc.HoldsFor(studentID) {
			if h.Status.Active() {
				overview.ActiveHolds = append(overview.ActiveHolds, h)
			}
		}
		feedback := doc.FeedbackFor(studentID)
		overview.FeedbackCount = len(feedback)
		if len(feedback) > 0 {
			var sum int
			for _, f := range feedback {
				sum += f.Rating
			}
			avg := float64(sum) / float64(len(feedback))
			overview.AvgRating = &avg
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(NameStudentSnapshot, err)
	}

	var warnings []string
	if overview.Profile == nil {
		warnings = append(warnings, "student has no onboarding profile yet")
	}
	return &Result{Data: overview, Warnings: warnings}, nil
}
