package tool

import (
	"context"
	"fmt"
	"sort"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/internal/textutil"
)

// SeriesContinuation answers "what comes next": given a book the student
// liked, list the rest of its series in publication order, rotated so the
// entries after the anchor come first. Books with no series fall back to
// same-author suggestions.
type SeriesContinuation struct{}

// Continuation is the series lookup result.
type Continuation struct {
	Anchor  core.Book   `json:"anchor"`
	Series  string      `json:"series,omitempty"`
	Mode    string      `json:"mode"`
	Results []core.Book `json:"results"`
}

// Continuation modes.
const (
	ContinuationSeries = "series"
	ContinuationAuthor = "author"
)

func (t *SeriesContinuation) Name() string { return NameSeriesContinuation }

func (t *SeriesContinuation) Description() string {
	return "Find the next books in a series, or more by the same author."
}

func (t *SeriesContinuation) Mutating() bool { return false }

func (t *SeriesContinuation) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"book_id": map[string]any{
				"type":        "string",
				"description": "Anchor book identifier, e.g. B0101.",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Anchor book title; exact match tried before fuzzy.",
			},
			"student_id": map[string]any{
				"type":        "string",
				"description": "When set, books this student already borrowed are excluded.",
			},
		},
	}
}

func (t *SeriesContinuation) Invoke(_ context.Context, inv *Invocation) (*Result, error) {
	anchor, err := resolveAnchor(inv.Snapshot, argString(inv.Args, "book_id"), argString(inv.Args, "title"))
	if err != nil {
		return nil, wrapError(NameSeriesContinuation, err)
	}

	exclude := map[string]struct{}{anchor.ID: {}}
	studentID := argString(inv.Args, "student_id")
	if studentID != "" {
		if _, ok := inv.Snapshot.Students[studentID]; !ok {
			return nil, wrapError(NameSeriesContinuation,
				core.NewValidationError("student_id", studentID, "unknown student"))
		}
		for id := range inv.Snapshot.BorrowedSet(studentID) {
			exclude[id] = struct{}{}
		}
	}

	cont := Continuation{Anchor: anchor, Series: anchor.Series}
	var warnings []string
	if anchor.Series != "" {
		cont.Mode = ContinuationSeries
		cont.Results = seriesAfter(inv.Snapshot, anchor, exclude)
		if len(cont.Results) == 0 {
			warnings = append(warnings,
				fmt.Sprintf("no unread books left in the %s series", anchor.Series))
		}
	}
	if anchor.Series == "" || len(cont.Results) == 0 {
		cont.Mode = ContinuationAuthor
		cont.Results = byAuthor(inv.Snapshot, anchor, exclude)
		if len(cont.Results) == 0 {
			warnings = append(warnings,
				fmt.Sprintf("nothing else by %s in the collection", anchor.Author))
		}
	}
	return &Result{Data: cont, Warnings: warnings}, nil
}

// resolveAnchor finds the anchor book by id, then exact title, then fuzzy
// token match.
func resolveAnchor(snap *core.Snapshot, bookID, title string) (core.Book, error) {
	if bookID != "" {
		b, ok := snap.Books[bookID]
		if !ok {
			return core.Book{}, core.NewValidationError("book_id", bookID, "unknown book")
		}
		return b, nil
	}
	if title == "" {
		return core.Book{}, core.NewValidationError("title", "", "book_id or title is required")
	}

	want := textutil.Normalize(title)
	ids := make([]string, 0, len(snap.Books))
	for id := range snap.Books {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if textutil.Normalize(snap.Books[id].Title) == want {
			return snap.Books[id], nil
		}
	}
	wantTokens := textutil.Tokenize(title)
	for _, id := range ids {
		got := textutil.Tokenize(snap.Books[id].Title)
		hit := true
		for _, tok := range wantTokens {
			if !textutil.TokenMatch(got, tok) {
				hit = false
				break
			}
		}
		if hit && len(wantTokens) > 0 {
			return snap.Books[id], nil
		}
	}
	return core.Book{}, core.NewValidationError("title", title, "no catalog entry matches that title")
}

// seriesAfter returns the anchor's series in publication order, rotated so
// entries published after the anchor come first.
func seriesAfter(snap *core.Snapshot, anchor core.Book, exclude map[string]struct{}) []core.Book {
	var series []core.Book
	for _, id := range sortedBookIDs(snap) {
		b := snap.Books[id]
		if b.Series != anchor.Series {
			continue
		}
		if _, skip := exclude[b.ID]; skip {
			continue
		}
		series = append(series, b)
	}
	sort.SliceStable(series, func(i, j int) bool {
		if series[i].PublicationYear != series[j].PublicationYear {
			return series[i].PublicationYear < series[j].PublicationYear
		}
		return series[i].ID < series[j].ID
	})

	var later, earlier []core.Book
	for _, b := range series {
		if b.PublicationYear > anchor.PublicationYear {
			later = append(later, b)
		} else {
			earlier = append(earlier, b)
		}
	}
	return append(later, earlier...)
}

// byAuthor returns other books by the anchor's author, newest first.
func byAuthor(snap *core.Snapshot, anchor core.Book, exclude map[string]struct{}) []core.Book {
	want := textutil.Normalize(anchor.Author)
	var out []core.Book
	for _, id := range sortedBookIDs(snap) {
		b := snap.Books[id]
		if textutil.Normalize(b.Author) != want {
			continue
		}
		if _, skip := exclude[b.ID]; skip {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PublicationYear != out[j].PublicationYear {
			return out[i].PublicationYear > out[j].PublicationYear
		}
		return out[i].ID < out[j].ID
	})
	return out
}
