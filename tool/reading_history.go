package tool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shelfwise/shelfwise/core"
)

// ReadingHistory lists a student's past and current loans, newest first,
// deduplicated so each book appears once with its most recent checkout.
type ReadingHistory struct{}

// HistoryItem is one entry in a student's reading history.
type HistoryItem struct {
	Book         core.Book  `json:"book"`
	CheckoutDate time.Time  `json:"checkout_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Renewals     int        `json:"renewals"`
	TimesRead    int        `json:"times_read"`
}

func (t *ReadingHistory) Name() string { return NameReadingHistory }

func (t *ReadingHistory) Description() string {
	return "List a student's reading history, most recent checkout first."
}

func (t *ReadingHistory) Mutating() bool { return false }

func (t *ReadingHistory) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"student_id": map[string]any{
				"type":        "string",
				"description": "Student identifier, e.g. S0042.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of entries. Defaults to 20.",
			},
		},
		"required": []string{"student_id"},
	}
}

func (t *ReadingHistory) Invoke(_ context.Context, inv *Invocation) (*Result, error) {
	studentID := argString(inv.Args, "student_id")
	limit := argInt(inv.Args, "limit", 20)
	if limit <= 0 {
		limit = 20
	}
	if _, ok := inv.Snapshot.Students[studentID]; !ok {
		return nil, wrapError(NameReadingHistory,
			core.NewValidationError("student_id", studentID, "unknown student"))
	}

	items := historyFor(inv.Snapshot, studentID)
	var warnings []string
	if len(items) == 0 {
		warnings = append(warnings, fmt.Sprintf("student %s has no recorded loans", studentID))
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return &Result{Data: items, Warnings: warnings}, nil
}

// historyFor builds the deduplicated newest-first history. Shared with the
// onboarding draft tool.
func historyFor(snap *core.Snapshot, studentID string) []HistoryItem {
	latest := map[string]HistoryItem{}
	reads := map[string]int{}
	for _, l := range snap.LoansFor(studentID) {
		book, ok := snap.Books[l.BookID]
		if !ok {
			continue
		}
		reads[l.BookID]++
		prev, seen := latest[l.BookID]
		if !seen || l.CheckoutDate.After(prev.CheckoutDate) {
			latest[l.BookID] = HistoryItem{
				Book:         book,
				CheckoutDate: l.CheckoutDate,
				ReturnDate:   l.ReturnDate,
				Renewals:     l.Renewals,
			}
		}
	}

	items := make([]HistoryItem, 0, len(latest))
	for id, item := range latest {
		item.TimesRead = reads[id]
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CheckoutDate.Equal(items[j].CheckoutDate) {
			return items[i].CheckoutDate.After(items[j].CheckoutDate)
		}
		return items[i].Book.ID < items[j].Book.ID
	})
	return items
}
