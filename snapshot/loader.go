// Package snapshot loads the read-only library view (catalog, roster, loan
// ledger) from CSV exports and serves it behind core.SnapshotProvider. The
// circulation system owns these files; shelfwise only ever reads them.
package snapshot

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/internal/textutil"
	"github.com/shelfwise/shelfwise/logging"
)

// Export file names inside the data directory.
const (
	CatalogFile  = "catalog.csv"
	StudentsFile = "students.csv"
	LoansFile    = "loans.csv"
)

const dateLayout = "2006-01-02"

// Loader reads the three CSV exports from a directory and caches the
// resulting snapshot. Reload swaps the cache; Snapshot never blocks on IO
// after the first load.
type Loader struct {
	dir    string
	logger logging.Logger

	mu   sync.RWMutex
	snap *core.Snapshot
}

// NewLoader creates a loader for the given data directory and performs the
// initial load.
func NewLoader(dir string, logger logging.Logger) (*Loader, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	l := &Loader{dir: dir, logger: logger}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Snapshot returns the cached snapshot.
func (l *Loader) Snapshot(_ context.Context) (*core.Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snap == nil {
		return nil, fmt.Errorf("snapshot not loaded: %w", core.ErrDependencyUnavailable)
	}
	return l.snap, nil
}

// Reload re-reads the exports and swaps the cached snapshot on success. A
// failed reload leaves the previous snapshot in place.
func (l *Loader) Reload() error {
	books, err := l.loadCatalog()
	if err != nil {
		return err
	}
	students, err := l.loadStudents()
	if err != nil {
		return err
	}
	loans, err := l.loadLoans()
	if err != nil {
		return err
	}

	snap := &core.Snapshot{
		Books:    books,
		Students: students,
		Loans:    loans,
		TakenAt:  time.Now().UTC(),
	}
	l.mu.Lock()
	l.snap = snap
	l.mu.Unlock()
	l.logger.Info("snapshot.loaded",
		"books", len(books), "students", len(students), "loans", len(loans))
	return nil
}

// readRows decodes a headered CSV into per-row field maps. Short rows are
// tolerated; missing columns read as empty strings.
func (l *Loader) readRows(name string) ([]map[string]string, error) {
	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []map[string]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (l *Loader) loadCatalog() (map[string]core.Book, error) {
	rows, err := l.readRows(CatalogFile)
	if err != nil {
		return nil, err
	}
	books := make(map[string]core.Book, len(rows))
	for _, row := range rows {
		id := row["book_id"]
		if id == "" {
			continue
		}
		books[id] = core.Book{
			ID:              id,
			Title:           row["title"],
			Author:          row["author"],
			Genre:           row["genre"],
			ReadingLevel:    parseLevel(row["reading_level"]),
			Audience:        row["audience"],
			Format:          row["format"],
			Series:          row["series"],
			Keywords:        textutil.SplitTags(row["keywords"]),
			SubjectTags:     textutil.SplitTags(row["subject_tags"]),
			PublicationYear: parseInt(row["publication_year"]),
			Availability:    parseAvailability(row["availability"]),
		}
	}
	return books, nil
}

func (l *Loader) loadStudents() (map[string]core.Student, error) {
	rows, err := l.readRows(StudentsFile)
	if err != nil {
		return nil, err
	}
	students := make(map[string]core.Student, len(rows))
	for _, row := range rows {
		id := row["student_id"]
		if id == "" {
			continue
		}
		students[id] = core.Student{
			ID:              id,
			Grade:           parseInt(row["grade"]),
			ReadingLevel:    parseLevel(row["reading_level"]),
			Interests:       textutil.SplitTags(row["interests"]),
			PreferredGenres: textutil.SplitTags(row["preferred_genres"]),
			AccountStatus:   row["account_status"],
			ItemsCheckedOut: parseInt(row["items_checkedout"]),
		}
	}
	return students, nil
}

func (l *Loader) loadLoans() ([]core.Loan, error) {
	rows, err := l.readRows(LoansFile)
	if err != nil {
		return nil, err
	}
	loans := make([]core.Loan, 0, len(rows))
	for _, row := range rows {
		if row["student_id"] == "" || row["book_id"] == "" {
			continue
		}
		loan := core.Loan{
			ID:           row["transaction_id"],
			StudentID:    row["student_id"],
			BookID:       row["book_id"],
			CheckoutDate: parseDate(row["checkout_date"]),
			Renewals:     parseInt(row["renewals"]),
			Grade:        parseInt(row["grade"]),
		}
		if rd := parseDate(row["return_date"]); !rd.IsZero() {
			loan.ReturnDate = &rd
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

// parseLevel reads a reading level that may be a single number or a range
// like "3-4"; ranges collapse to their midpoint. Unparsable values are zero.
func parseLevel(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.SplitN(s, "-", 2)
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return lo
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return lo
	}
	return (lo + hi) / 2
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseAvailability maps export phrasing to the snapshot enum. Unknown
// statuses count as checked out so the engine never over-promises a copy.
func parseAvailability(s string) core.Availability {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "available":
		return core.Available
	case "onhold", "hold":
		return core.OnHold
	default:
		return core.CheckedOut
	}
}

// Static wraps a fixed snapshot as a provider.
type Static struct {
	Snap *core.Snapshot
}

// Snapshot returns the wrapped snapshot.
func (s Static) Snapshot(context.Context) (*core.Snapshot, error) {
	if s.Snap == nil {
		return nil, fmt.Errorf("no snapshot configured: %w", core.ErrDependencyUnavailable)
	}
	return s.Snap, nil
}
