package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfwise/shelfwise/agent"
	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/internal/testutil"
	"github.com/shelfwise/shelfwise/session"
	"github.com/shelfwise/shelfwise/snapshot"
	"github.com/shelfwise/shelfwise/state"
)

func newTestServer(t *testing.T) (*Server, *state.InMemoryStore) {
	t.Helper()
	provider := snapshot.Static{Snap: testutil.Snapshot()}
	store := state.NewInMemoryStore()
	orch := agent.New(provider, store, session.NewInMemoryStore())
	return New(provider, store, orch), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogFilter(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/catalog?genre=Mystery", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Items []core.Book `json:"items"`
		Total int         `json:"total"`
	}](t, rec)
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "B0006", body.Items[0].ID)
}

func TestStudentsSorted(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/students", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Items []core.Student `json:"items"`
	}](t, rec)
	require.Len(t, body.Items, 5)
	for i := 1; i < len(body.Items); i++ {
		assert.Less(t, body.Items[i-1].ID, body.Items[i].ID)
	}
}

func TestRecommendationsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/recommendations?student_id=S0001&k=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		StudentID       string `json:"student_id"`
		Recommendations []struct {
			Book core.Book `json:"book"`
		} `json:"recommendations"`
	}](t, rec)
	assert.Equal(t, "S0001", body.StudentID)
	assert.NotEmpty(t, body.Recommendations)
	assert.LessOrEqual(t, len(body.Recommendations), 3)
}

func TestRecommendationsValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/recommendations", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/recommendations?student_id=S0001&k=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/recommendations?student_id=S9999", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHoldLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/agents/holds", map[string]string{
		"student_id": "S0001", "book_id": "B0004",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	placed := decodeBody[struct {
		Data core.Hold `json:"data"`
	}](t, rec)
	assert.Equal(t, core.HoldPending, placed.Data.Status)

	// Duplicate is a conflict.
	rec = doJSON(t, router, http.MethodPost, "/agents/holds", map[string]string{
		"student_id": "S0001", "book_id": "B0004",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Listing shows it.
	rec = doJSON(t, router, http.MethodGet, "/agents/holds?student_id=S0001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Total int `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, list.Total)

	// Cancel, then cancelling again is 404.
	path := fmt.Sprintf("/agents/holds/%s/cancel", placed.Data.ID)
	rec = doJSON(t, router, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/agents/feedback", map[string]any{
		"student_id": "S0001", "book_id": "B0003", "rating": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/agents/feedback", map[string]any{
		"student_id": "S0002", "book_id": "B0003", "rating": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Out-of-range rating rejected.
	rec = doJSON(t, router, http.MethodPost, "/agents/feedback", map[string]any{
		"student_id": "S0001", "book_id": "B0003", "rating": 6,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/agents/feedback", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Total int `json:"total"`
	}](t, rec)
	assert.Equal(t, 2, list.Total)

	rec = doJSON(t, router, http.MethodGet, "/agents/feedback/insights", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ins := decodeBody[struct {
		TotalEntries int     `json:"total_entries"`
		AvgRating    float64 `json:"avg_rating"`
	}](t, rec)
	assert.Equal(t, 2, ins.TotalEntries)
	assert.InDelta(t, 4.0, ins.AvgRating, 1e-9)
}

func TestBoostedRecommendationsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/agents/feedback", map[string]any{
		"student_id": "S0001", "book_id": "B0003", "rating": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/agents/feedback/recommendations?student_id=S0002", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		FeedbackWeight  float64 `json:"feedback_weight"`
		Recommendations []struct {
			Book          core.Book `json:"book"`
			FeedbackBonus float64   `json:"feedback_bonus"`
		} `json:"recommendations"`
	}](t, rec)
	assert.Equal(t, 1.0, body.FeedbackWeight)

	var bonus float64
	for _, r := range body.Recommendations {
		if r.Book.ID == "B0003" {
			bonus = r.FeedbackBonus
		}
	}
	assert.Greater(t, bonus, 0.0)
}

type onboardingEnvelope struct {
	Student core.Student            `json:"student"`
	Profile *core.OnboardingProfile `json:"profile"`
}

func TestOnboardingEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	// A known student with no stored profile is not an error.
	rec := doJSON(t, router, http.MethodGet, "/agents/onboarding/S0001", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeBody[onboardingEnvelope](t, rec)
	assert.Equal(t, "S0001", env.Student.ID)
	assert.Nil(t, env.Profile)

	rec = doJSON(t, router, http.MethodPost, "/agents/onboarding", map[string]any{
		"student_id":       "S0001",
		"interests":        []string{"dragons", "space"},
		"preferred_genres": []string{"Fantasy"},
		"reading_level":    4.5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env = decodeBody[onboardingEnvelope](t, rec)
	assert.Equal(t, "S0001", env.Student.ID)
	require.NotNil(t, env.Profile)
	assert.Equal(t, "stated", env.Profile.Source)
	assert.Equal(t, 4.5, env.Profile.ReadingLevel)

	// Partial update leaves other fields alone.
	rec = doJSON(t, router, http.MethodPost, "/agents/onboarding", map[string]any{
		"student_id": "S0001",
		"goals":      "read a whole series",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeBody[onboardingEnvelope](t, rec)
	require.NotNil(t, env.Profile)
	assert.Equal(t, "read a whole series", env.Profile.Goals)
	assert.Equal(t, []string{"dragons", "space"}, env.Profile.Interests)

	rec = doJSON(t, router, http.MethodGet, "/agents/onboarding/S0001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeBody[onboardingEnvelope](t, rec)
	require.NotNil(t, env.Profile)
	assert.Equal(t, "read a whole series", env.Profile.Goals)

	// Unknown students 404 on both surfaces; absurd levels are rejected.
	rec = doJSON(t, router, http.MethodGet, "/agents/onboarding/S9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/agents/onboarding", map[string]any{
		"student_id": "S9999",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/agents/onboarding", map[string]any{
		"student_id": "S0001", "reading_level": 99,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentSnapshotEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/agents/snapshot/S0003", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		Data struct {
			TotalLoans int `json:"total_loans"`
		} `json:"data"`
	}](t, rec)
	assert.Equal(t, 3, body.Data.TotalLoans)

	rec = doJSON(t, srv.Router(), http.MethodGet, "/agents/snapshot/S9999", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConciergeEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/agents/concierge", map[string]string{
		"student_id": "S0001",
		"message":    "recommend a book",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[struct {
		SessionID string `json:"session_id"`
		Intent    string `json:"intent"`
		Reply     string `json:"reply"`
	}](t, rec)
	assert.NotEmpty(t, body.SessionID)
	assert.Equal(t, "recommend", body.Intent)
	assert.NotEmpty(t, body.Reply)

	require.NoError(t, store.View(func(doc *state.Document) error {
		assert.Len(t, doc.Observability, 1)
		return nil
	}))

	rec = doJSON(t, srv.Router(), http.MethodPost, "/agents/concierge", map[string]string{
		"message": "",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConciergeLimitAndAvailabilityOnly(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/agents/concierge", map[string]any{
		"student_id":        "S0001",
		"message":           "recommend a book",
		"limit":             2,
		"availability_only": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[struct {
		StudentID       string `json:"student_id"`
		Recommendations []struct {
			Book core.Book `json:"book"`
		} `json:"recommendations"`
	}](t, rec)
	assert.Equal(t, "S0001", body.StudentID)
	require.NotEmpty(t, body.Recommendations)
	assert.LessOrEqual(t, len(body.Recommendations), 2)
	for _, r := range body.Recommendations {
		assert.Equal(t, core.Available, r.Book.Availability)
	}

	rec = doJSON(t, srv.Router(), http.MethodPost, "/agents/concierge", map[string]any{
		"student_id": "S0001", "message": "recommend a book", "limit": 11,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentAvailabilityEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/agents/availability?genre=Fantasy&availability=Available", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[struct {
		Data []struct {
			Book core.Book `json:"book"`
		} `json:"data"`
	}](t, rec)
	require.Len(t, body.Data, 3)
	for _, m := range body.Data {
		assert.Equal(t, "Fantasy", m.Book.Genre)
		assert.Equal(t, core.Available, m.Book.Availability)
	}

	rec = doJSON(t, srv.Router(), http.MethodGet, "/agents/availability?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollectionGapsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/agents/collection-gaps", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[struct {
		GenrePressure []struct {
			Genre string `json:"genre"`
		} `json:"genre_pressure"`
	}](t, rec)
	assert.NotEmpty(t, body.GenrePressure)
}
