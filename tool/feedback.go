package tool

import (
	"context"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/state"
)

// RecordFeedback appends one rating to the feedback log. Ratings are 1 to 5
// inclusive; the log is append-only so re-rating a book adds a new entry.
type RecordFeedback struct{}

func (t *RecordFeedback) Name() string { return NameRecordFeedback }

func (t *RecordFeedback) Description() string {
	return "Record a student's 1-5 rating of a book, with an optional comment."
}

func (t *RecordFeedback) Mutating() bool { return true }

func (t *RecordFeedback) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"student_id": map[string]any{
				"type":        "string",
				"description": "Student identifier, e.g. S0042.",
			},
			"book_id": map[string]any{
				"type":        "string",
				"description": "Book identifier, e.g. B0101.",
			},
			"rating": map[string]any{
				"type":        "integer",
				"description": "Rating from 1 (disliked) to 5 (loved).",
			},
			"comment": map[string]any{
				"type":        "string",
				"description": "Optional free-text comment.",
			},
		},
		"required": []string{"student_id", "book_id", "rating"},
	}
}

func (t *RecordFeedback) Invoke(_ context.Context, inv *Invocation) (*Result, error) {
	studentID := argString(inv.Args, "student_id")
	bookID := argString(inv.Args, "book_id")
	rating := argInt(inv.Args, "rating", 0)

	if _, ok := inv.Snapshot.Students[studentID]; !ok {
		return nil, wrapError(NameRecordFeedback,
			core.NewValidationError("student_id", studentID, "unknown student"))
	}
	if _, ok := inv.Snapshot.Books[bookID]; !ok {
		return nil, wrapError(NameRecordFeedback,
			core.NewValidationError("book_id", bookID, "unknown book"))
	}
	if rating < core.MinRating || rating > core.MaxRating {
		return nil, wrapError(NameRecordFeedback,
			core.NewValidationError("rating", rating, "must be between 1 and 5"))
	}

	var entry core.FeedbackEntry
	err := inv.Store.Transact(func(doc *state.Document) error {
		entry = doc.AppendFeedback(core.FeedbackEntry{
			StudentID: studentID,
			BookID:    bookID,
			Rating:    rating,
			Comment:   argString(inv.Args, "comment"),
			CreatedAt: inv.Now,
		})
		return nil
	})
	if err != nil {
		return nil, wrapError(NameRecordFeedback, err)
	}
	return &Result{Data: entry}, nil
}
