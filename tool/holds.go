package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/state"
)

// DefaultHoldRetention is the window before a pending hold expires when no
// retention is configured.
const DefaultHoldRetention = 7 * 24 * time.Hour

// PlaceHold creates a Pending hold for a (student, book) pair inside one
// store transaction. At most one active hold may exist per pair; a second
// attempt is a conflict. Holds start Pending regardless of current copy
// availability; readiness is the circulation system's call.
type PlaceHold struct{}

func (t *PlaceHold) Name() string { return NamePlaceHold }

func (t *PlaceHold) Description() string {
	return "Place a hold on a book for a student."
}

func (t *PlaceHold) Mutating() bool { return true }

func (t *PlaceHold) Parameters() map[string]any {
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
		},
		"required": []string{"student_id", "book_id"},
	}
}

func (t *PlaceHold) Invoke(_ context.Context, inv *Invocation) (*Result, error) {
	studentID := argString(inv.Args, "student_id")
	bookID := argString(inv.Args, "book_id")
	if _, ok := inv.Snapshot.Students[studentID]; !ok {
		return nil, wrapError(NamePlaceHold,
			core.NewValidationError("student_id", studentID, "unknown student"))
	}
	book, ok := inv.Snapshot.Books[bookID]
	if !ok {
		return nil, wrapError(NamePlaceHold,
			core.NewValidationError("book_id", bookID, "unknown book"))
	}

	retention := inv.HoldRetention
	if retention <= 0 {
		retention = DefaultHoldRetention
	}

	var hold core.Hold
	err := inv.Store.Transact(func(doc *state.Document) error {
		if existing, exists := doc.ActiveHold(studentID, bookID); exists {
			return fmt.Errorf("hold %s already active for %s on %s: %w",
				existing.ID, studentID, bookID, core.ErrConflict)
		}
		hold = core.Hold{
			ID:        doc.NextHoldID(),
			StudentID: studentID,
			BookID:    bookID,
			Status:    core.HoldPending,
			CreatedAt: inv.Now,
			ExpiresAt: inv.Now.Add(retention),
		}
		doc.PutHold(hold)
		return nil
	})
	if err != nil {
		return nil, wrapError(NamePlaceHold, err)
	}

	var warnings []string
	if book.Availability != core.Available {
		warnings = append(warnings,
			fmt.Sprintf("%q is not currently on the shelf; the hold queues until a copy returns", book.Title))
	}
	return &Result{Data: hold, Warnings: warnings}, nil
}

// CancelHold moves a hold to Cancelled. Cancelling a terminal hold is not
// idempotent: the hold no longer exists as a claim, so it reports not found.
type CancelHold struct{}

func (t *CancelHold) Name() string { return NameCancelHold }

func (t *CancelHold) Description() string {
	return "Cancel an active hold by its hold id."
}

func (t *CancelHold) Mutating() bool { return true }

func (t *CancelHold) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hold_id": map[string]any{
				"type":        "string",
				"description": "Hold identifier, e.g. H0007.",
			},
		},
		"required": []string{"hold_id"},
	}
}

func (t *CancelHold) Invoke(_ context.Context, inv *Invocation) (*Result, error) {
	holdID := argString(inv.Args, "hold_id")

	var hold core.Hold
	err := inv.Store.Transact(func(doc *state.Document) error {
		h, err := doc.Hold(holdID)
		if err != nil {
			return fmt.Errorf("hold %s: %w", holdID, err)
		}
		if h.Status.Terminal() {
			return fmt.Errorf("hold %s is already %s: %w", holdID, h.Status, core.ErrNotFound)
		}
		now := inv.Now
		h.Status = core.HoldCancelled
		h.CancelledAt = &now
		doc.PutHold(h)
		hold = h
		return nil
	})
	if err != nil {
		return nil, wrapError(NameCancelHold, err)
	}
	return &Result{Data: hold}, nil
}
