// Package recommend implements the deterministic, explainable ranking engine.
// Scores come from pairwise co-occurrence over loan history with a
// cosine-style normalization; every recommendation carries a human-readable
// reason naming the borrowed title that drove it. There is no statistical
// model anywhere in this package: identical inputs always produce identical
// output, byte for byte.
package recommend

import (
	"fmt"
	"math"
	"sort"

	"github.com/shelfwise/shelfwise/core"
)

// FallbackReason is attached to popularity-ranked results when a student has
// no loan history (or too few co-occurrence candidates to fill k).
const FallbackReason = "popular in the collection"

// Filters restrict the candidate set before ranking, so k returns the
// requested count whenever enough candidates exist.
type Filters struct {
	Genre           string
	Availability    core.Availability
	ExcludeBorrowed bool
}

// Recommendation is one ranked candidate with its score and explanation.
type Recommendation struct {
	Book      core.Book  `json:"book"`
	Score     float64    `json:"score"`
	Reason    string     `json:"reason"`
	SimilarTo *core.Book `json:"similar_to,omitempty"`
}

// Recommender ranks catalog books for a student against one snapshot. It is
// a pure function of the snapshot: construction builds the co-occurrence
// indexes once and Recommend never mutates them, so a Recommender is safe
// for concurrent use.
type Recommender struct {
	snap *core.Snapshot

	studentBooks  map[string]map[string]struct{} // student -> borrowed book ids
	bookBorrowers map[string]map[string]struct{} // book -> borrower student ids
	loanCounts    map[string]int                 // book -> total loans
}

// New builds a Recommender over the snapshot.
func New(snap *core.Snapshot) *Recommender {
	r := &Recommender{
		snap:          snap,
		studentBooks:  map[string]map[string]struct{}{},
		bookBorrowers: map[string]map[string]struct{}{},
		loanCounts:    map[string]int{},
	}
	for _, loan := range snap.Loans {
		if _, ok := snap.Books[loan.BookID]; !ok {
			continue
		}
		if r.studentBooks[loan.StudentID] == nil {
			r.studentBooks[loan.StudentID] = map[string]struct{}{}
		}
		r.studentBooks[loan.StudentID][loan.BookID] = struct{}{}
		if r.bookBorrowers[loan.BookID] == nil {
			r.bookBorrowers[loan.BookID] = map[string]struct{}{}
		}
		r.bookBorrowers[loan.BookID][loan.StudentID] = struct{}{}
		r.loanCounts[loan.BookID]++
	}
	return r
}

// Recommend returns the top k candidates for the student, highest score
// first. Equal scores break by reading-level proximity to the student, then
// preferred-genre match, then lexicographic book id. A student with no loan
// history gets the popularity fallback instead of an error; when fewer than k
// candidates score, popularity fills the remainder.
func (r *Recommender) Recommend(studentID string, k int, f Filters) []Recommendation {
	if k <= 0 {
		return nil
	}
	student := r.snap.Students[studentID]
	borrowed := r.studentBooks[studentID]

	if len(borrowed) == 0 {
		return r.popular(studentID, k, f, nil)
	}

	// Students with any overlap with the borrowed set, minus the target.
	cohort := map[string]struct{}{}
	for bookID := range borrowed {
		for sid := range r.bookBorrowers[bookID] {
			if sid != studentID {
				cohort[sid] = struct{}{}
			}
		}
	}

	var recs []Recommendation
	for _, candidate := range r.candidates(studentID, f, borrowed) {
		coBorrowers := 0
		for sid := range r.bookBorrowers[candidate.ID] {
			if sid == studentID {
				continue
			}
			if _, ok := cohort[sid]; ok {
				coBorrowers++
			}
		}
		if coBorrowers == 0 {
			continue
		}
		denom := math.Sqrt(float64(len(cohort))) * math.Sqrt(float64(len(r.bookBorrowers[candidate.ID])))
		score := float64(coBorrowers) / denom
		driver := r.driver(studentID, borrowed, candidate.ID)
		rec := Recommendation{Book: candidate, Score: score}
		if driver != nil {
			rec.SimilarTo = driver
			rec.Reason = fmt.Sprintf("Borrowed by students who also liked %s", driver.Title)
		} else {
			rec.Reason = FallbackReason
		}
		recs = append(recs, rec)
	}

	r.sortRanked(recs, student)
	if len(recs) > k {
		recs = recs[:k]
	}

	if len(recs) < k {
		exclude := map[string]struct{}{}
		for id := range borrowed {
			exclude[id] = struct{}{}
		}
		for _, rec := range recs {
			exclude[rec.Book.ID] = struct{}{}
		}
		recs = append(recs, r.popular(studentID, k-len(recs), f, exclude)...)
	}
	return recs
}

// candidates returns the filtered candidate books, excluding the student's
// borrowed set, in lexicographic id order for deterministic iteration.
func (r *Recommender) candidates(studentID string, f Filters, borrowed map[string]struct{}) []core.Book {
	var out []core.Book
	for id, book := range r.snap.Books {
		if _, ok := borrowed[id]; ok {
			continue
		}
		if !matches(book, f) {
			continue
		}
		out = append(out, book)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matches(book core.Book, f Filters) bool {
	if f.Genre != "" && book.Genre != f.Genre {
		return false
	}
	if f.Availability != "" && book.Availability != f.Availability {
		return false
	}
	return true
}

// driver finds the borrowed book sharing the most co-borrowers with the
// candidate; ties break on lexicographic book id.
func (r *Recommender) driver(studentID string, borrowed map[string]struct{}, candidateID string) *core.Book {
	ids := make([]string, 0, len(borrowed))
	for id := range borrowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bestShared := 0
	var best *core.Book
	for _, id := range ids {
		shared := 0
		for sid := range r.bookBorrowers[id] {
			if sid == studentID {
				continue
			}
			if _, ok := r.bookBorrowers[candidateID][sid]; ok {
				shared++
			}
		}
		if shared > bestShared {
			bestShared = shared
			book := r.snap.Books[id]
			best = &book
		}
	}
	return best
}

// popular ranks the filtered catalog by total loans, most-borrowed first,
// lexicographic id on equal counts. Used as the no-history fallback and to
// top up short co-occurrence results. Scores are the book's share of all
// loans so they stay on the same scale as co-occurrence scores and never
// outrank them after feedback boosting.
func (r *Recommender) popular(studentID string, k int, f Filters, exclude map[string]struct{}) []Recommendation {
	if k <= 0 {
		return nil
	}
	borrowed := map[string]struct{}{}
	if f.ExcludeBorrowed {
		borrowed = r.studentBooks[studentID]
	}

	var books []core.Book
	for id, book := range r.snap.Books {
		if _, ok := exclude[id]; ok {
			continue
		}
		if _, ok := borrowed[id]; ok {
			continue
		}
		if !matches(book, f) {
			continue
		}
		books = append(books, book)
	}
	sort.Slice(books, func(i, j int) bool {
		ci, cj := r.loanCounts[books[i].ID], r.loanCounts[books[j].ID]
		if ci != cj {
			return ci > cj
		}
		return books[i].ID < books[j].ID
	})

	if len(books) > k {
		books = books[:k]
	}
	total := len(r.snap.Loans)
	recs := make([]Recommendation, 0, len(books))
	for _, book := range books {
		var score float64
		if total > 0 {
			score = float64(r.loanCounts[book.ID]) / float64(total)
		}
		recs = append(recs, Recommendation{
			Book:   book,
			Score:  score,
			Reason: FallbackReason,
		})
	}
	return recs
}

// sortRanked orders scored recommendations by the full deterministic
// tie-break chain.
func (r *Recommender) sortRanked(recs []Recommendation, student core.Student) {
	preferred := map[string]struct{}{}
	for _, g := range student.PreferredGenres {
		preferred[g] = struct{}{}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		da := math.Abs(a.Book.ReadingLevel - student.ReadingLevel)
		db := math.Abs(b.Book.ReadingLevel - student.ReadingLevel)
		if da != db {
			return da < db
		}
		_, pa := preferred[a.Book.Genre]
		_, pb := preferred[b.Book.Genre]
		if pa != pb {
			return pa
		}
		return a.Book.ID < b.Book.ID
	})
}
