package server

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shelfwise/shelfwise/agent"
	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/insights"
	"github.com/shelfwise/shelfwise/recommend"
	"github.com/shelfwise/shelfwise/state"
	"github.com/shelfwise/shelfwise/tool"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	genre := r.URL.Query().Get("genre")
	availability := r.URL.Query().Get("availability")

	books := make([]core.Book, 0, len(snap.Books))
	for _, b := range snap.Books {
		if genre != "" && b.Genre != genre {
			continue
		}
		if availability != "" && string(b.Availability) != availability {
			continue
		}
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"items": books, "total": len(books)})
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	students := make([]core.Student, 0, len(snap.Students))
	for _, st := range snap.Students {
		students = append(students, st)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].ID < students[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"items": students, "total": len(students)})
}

// recommendQuery parses student_id, k and shared filters from the query
// string.
func (s *Server) recommendQuery(r *http.Request) (studentID string, k int, f recommend.Filters, err error) {
	q := r.URL.Query()
	studentID = q.Get("student_id")
	if studentID == "" {
		return "", 0, f, core.NewValidationError("student_id", "", "is required")
	}
	k = s.defaultTopK
	if raw := q.Get("k"); raw != "" {
		k, err = strconv.Atoi(raw)
		if err != nil || k <= 0 {
			return "", 0, f, core.NewValidationError("k", raw, "must be a positive integer")
		}
	}
	f = recommend.Filters{
		Genre:           q.Get("genre"),
		ExcludeBorrowed: q.Get("include_borrowed") != "true",
	}
	if q.Get("availability_only") == "true" {
		f.Availability = core.Available
	}
	return studentID, k, f, nil
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	studentID, k, filters, err := s.recommendQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, ok := snap.Students[studentID]; !ok {
		s.writeError(w, core.NewValidationError("student_id", studentID, "unknown student"))
		return
	}
	recs := recommend.New(snap).Recommend(studentID, k, filters)
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id":      studentID,
		"recommendations": recs,
	})
}

func (s *Server) handleBoostedRecommendations(w http.ResponseWriter, r *http.Request) {
	studentID, k, filters, err := s.recommendQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, ok := snap.Students[studentID]; !ok {
		s.writeError(w, core.NewValidationError("student_id", studentID, "unknown student"))
		return
	}

	base := recommend.New(snap).Recommend(studentID, k, filters)
	var feedback []core.FeedbackEntry
	if err := s.store.View(func(doc *state.Document) error {
		feedback = append(feedback, doc.Feedback...)
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id":      studentID,
		"feedback_weight": s.feedbackWeight,
		"recommendations": recommend.Boost(base, feedback, s.feedbackWeight),
	})
}

func (s *Server) handleConcierge(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	resp, err := s.orchestrator.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// invokeTool runs a capability tool against a fresh snapshot and writes the
// result, translating tool errors through the shared mapping.
func (s *Server) invokeTool(w http.ResponseWriter, r *http.Request, name string, args map[string]any) {
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	inv := &tool.Invocation{
		Snapshot:      snap,
		Store:         s.store,
		Now:           time.Now().UTC(),
		Args:          args,
		HoldRetention: s.holdRetention,
	}
	res, err := s.registry.Invoke(r.Context(), name, inv)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":     res.Data,
		"warnings": res.Warnings,
	})
}

func (s *Server) handleListHolds(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	var holds []core.Hold
	err := s.store.View(func(doc *state.Document) error {
		if studentID != "" {
			holds = doc.HoldsFor(studentID)
		} else {
			holds = doc.AllHolds()
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": holds, "total": len(holds)})
}

func (s *Server) handlePlaceHold(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StudentID string `json:"student_id"`
		BookID    string `json:"book_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	s.invokeTool(w, r, tool.NamePlaceHold, map[string]any{
		"student_id": body.StudentID,
		"book_id":    body.BookID,
	})
}

func (s *Server) handleCancelHold(w http.ResponseWriter, r *http.Request) {
	s.invokeTool(w, r, tool.NameCancelHold, map[string]any{
		"hold_id": chi.URLParam(r, "holdID"),
	})
}

// handleGetOnboarding returns the student with their stored profile. A
// missing profile is a null field, not an error; only an unknown student is
// a 404.
func (s *Server) handleGetOnboarding(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	student, ok := snap.Students[studentID]
	if !ok {
		s.writeError(w, fmt.Errorf("student %s: %w", studentID, core.ErrNotFound))
		return
	}
	var profile *core.OnboardingProfile
	err = s.store.View(func(doc *state.Document) error {
		if p, perr := doc.Profile(studentID); perr == nil {
			profile = &p
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student": student, "profile": profile})
}

func (s *Server) handleUpdateOnboarding(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StudentID string `json:"student_id"`
		core.ProfileUpdate
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	student, ok := snap.Students[body.StudentID]
	if !ok {
		s.writeError(w, fmt.Errorf("student %s: %w", body.StudentID, core.ErrNotFound))
		return
	}
	if rl := body.ReadingLevel; rl != nil && (*rl < 0 || *rl > 12) {
		s.writeError(w, core.NewValidationError("reading_level", *rl, "must be between 0 and 12"))
		return
	}

	now := time.Now().UTC()
	var profile core.OnboardingProfile
	err = s.store.Transact(func(doc *state.Document) error {
		prior, perr := doc.Profile(body.StudentID)
		if perr != nil {
			prior = core.OnboardingProfile{StudentID: body.StudentID}
		}
		profile = body.ProfileUpdate.Apply(prior, now)
		profile.StudentID = body.StudentID
		profile.Source = "stated"
		doc.UpsertProfile(profile)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student": student, "profile": profile})
}

// handleAgentAvailability exposes the availability tool as a direct query
// endpoint.
func (s *Server) handleAgentAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	args := map[string]any{}
	for _, key := range []string{"query", "genre", "reading_level"} {
		if v := q.Get(key); v != "" {
			args[key] = v
		}
	}
	if v := q.Get("availability"); v != "" {
		args["availability"] = strings.ReplaceAll(strings.ToLower(v), " ", "_")
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, core.NewValidationError("limit", raw, "must be a positive integer"))
			return
		}
		args["limit"] = n
	}
	s.invokeTool(w, r, tool.NameAvailability, args)
}

func (s *Server) handleStudentSnapshot(w http.ResponseWriter, r *http.Request) {
	s.invokeTool(w, r, tool.NameStudentSnapshot, map[string]any{
		"student_id": chi.URLParam(r, "studentID"),
	})
}

func (s *Server) handleRecordFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StudentID string `json:"student_id"`
		BookID    string `json:"book_id"`
		Rating    int    `json:"rating"`
		Comment   string `json:"comment"`
	}
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	s.invokeTool(w, r, tool.NameRecordFeedback, map[string]any{
		"student_id": body.StudentID,
		"book_id":    body.BookID,
		"rating":     body.Rating,
		"comment":    body.Comment,
	})
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	var entries []core.FeedbackEntry
	err := s.store.View(func(doc *state.Document) error {
		if studentID != "" {
			entries = doc.FeedbackFor(studentID)
		} else {
			entries = append(entries, doc.Feedback...)
		}
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries, "total": len(entries)})
}

func (s *Server) handleFeedbackInsights(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	var feedback []core.FeedbackEntry
	if err := s.store.View(func(doc *state.Document) error {
		feedback = append(feedback, doc.Feedback...)
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights.Summarize(snap, feedback, limit))
}

func (s *Server) handleCollectionGaps(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	var holds []core.Hold
	if err := s.store.View(func(doc *state.Document) error {
		holds = doc.AllHolds()
		return nil
	}); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insights.Gaps(snap, holds))
}
