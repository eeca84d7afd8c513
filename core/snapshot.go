package core

import (
	"context"
	"sort"
	"time"
)

// Availability is the circulation state of a catalog book.
type Availability string

// Availability states a book can be in within a snapshot window.
const (
	Available  Availability = "Available"
	CheckedOut Availability = "CheckedOut"
	OnHold     Availability = "OnHold"
)

// Book is a catalog item. Immutable within a snapshot window.
type Book struct {
	ID              string       `json:"book_id"`
	Title           string       `json:"title"`
	Author          string       `json:"author"`
	Genre           string       `json:"genre"`
	ReadingLevel    float64      `json:"reading_level"`
	Audience        string       `json:"audience"`
	Format          string       `json:"format"`
	Series          string       `json:"series,omitempty"`
	Keywords        []string     `json:"keywords,omitempty"`
	SubjectTags     []string     `json:"subject_tags,omitempty"`
	PublicationYear int          `json:"publication_year,omitempty"`
	Availability    Availability `json:"availability"`
}

// Student is a library patron. Read-only to the engine.
type Student struct {
	ID              string   `json:"student_id"`
	Grade           int      `json:"grade"`
	ReadingLevel    float64  `json:"reading_level"`
	Interests       []string `json:"interests,omitempty"`
	PreferredGenres []string `json:"preferred_genres,omitempty"`
	AccountStatus   string   `json:"account_status,omitempty"`
	ItemsCheckedOut int      `json:"items_checkedout"`
}

// Loan records one checkout. A nil ReturnDate means the loan is active.
type Loan struct {
	ID           string     `json:"loan_id"`
	StudentID    string     `json:"student_id"`
	BookID       string     `json:"book_id"`
	CheckoutDate time.Time  `json:"checkout_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty"`
	Renewals     int        `json:"renewals"`
	Grade        int        `json:"grade,omitempty"`
}

// Active reports whether the loan has not been returned.
func (l Loan) Active() bool { return l.ReturnDate == nil }

// Snapshot is a consistent point-in-time read of the catalog. The engine
// treats it as immutable input: nothing in this module mutates a snapshot
// after construction.
type Snapshot struct {
	Books    map[string]Book    `json:"books"`
	Students map[string]Student `json:"students"`
	Loans    []Loan             `json:"loans"`
	TakenAt  time.Time          `json:"taken_at"`
}

// Genres returns the distinct book genres in the snapshot, sorted.
func (s *Snapshot) Genres() []string {
	seen := map[string]struct{}{}
	for _, b := range s.Books {
		if b.Genre != "" {
			seen[b.Genre] = struct{}{}
		}
	}
	genres := make([]string, 0, len(seen))
	for g := range seen {
		genres = append(genres, g)
	}
	sort.Strings(genres)
	return genres
}

// LoansFor returns the student's loans in snapshot order.
func (s *Snapshot) LoansFor(studentID string) []Loan {
	var out []Loan
	for _, l := range s.Loans {
		if l.StudentID == studentID {
			out = append(out, l)
		}
	}
	return out
}

// BorrowedSet returns the distinct book ids the student has ever borrowed.
func (s *Snapshot) BorrowedSet(studentID string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, l := range s.Loans {
		if l.StudentID == studentID {
			if _, ok := s.Books[l.BookID]; ok {
				set[l.BookID] = struct{}{}
			}
		}
	}
	return set
}

// SnapshotProvider exposes point-in-time catalog reads. Implementations must
// honor ctx cancellation; the engine treats a failed fetch as
// ErrDependencyUnavailable and degrades per its fallback rules.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}
