// Package intent classifies a concierge message into a tool plan. Routing is
// an ordered rule table of regular expressions; the first matching rule wins
// and anything unmatched falls through to a recommendation plan. There is no
// model in the loop: routing must be cheap, deterministic and auditable.
package intent

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/internal/textutil"
	"github.com/shelfwise/shelfwise/recommend"
	"github.com/shelfwise/shelfwise/tool"
)

// Intent labels. Recorded verbatim in observability events.
type Intent string

const (
	IntentAvailability Intent = "availability"
	IntentPlaceHold    Intent = "place_hold"
	IntentCancelHold   Intent = "cancel_hold"
	IntentFeedback     Intent = "feedback"
	IntentHistory      Intent = "reading_history"
	IntentSnapshot     Intent = "student_snapshot"
	IntentSeries       Intent = "series_continuation"
	IntentOnboarding   Intent = "onboarding"
	IntentSaveProfile  Intent = "save_profile"
	IntentRecommend    Intent = "recommend"
)

// ToolCall is one planned tool invocation.
type ToolCall struct {
	Tool string
	Args map[string]any
}

// Plan is the router's output: either tool calls plus an optional recommender
// pass, or a clarification question when the message cannot be resolved into
// arguments.
type Plan struct {
	Intent         Intent
	Tools          []ToolCall
	RunRecommender bool
	StudentID      string
	TopK           int
	Filters        recommend.Filters
	Clarification  string
}

// Request is the routing input. StudentID, when set, came from the caller
// (session or API field) and outranks ids extracted from the message text.
// History holds earlier session texts, oldest first; identifiers missing
// from the message fall back to the most recent mention there. Limit and
// AvailabilityOnly are caller-side recommendation defaults that message
// phrasing can still override.
type Request struct {
	Message          string
	StudentID        string
	Snapshot         *core.Snapshot
	Profile          *core.OnboardingProfile
	History          []string
	Limit            int
	AvailabilityOnly bool
}

var (
	studentIDPattern = regexp.MustCompile(`\bS\d{4}\b`)
	bookIDPattern    = regexp.MustCompile(`\bB\d{4}\b`)
	holdIDPattern    = regexp.MustCompile(`\bH\d{4}\b`)
	ratingPattern    = regexp.MustCompile(`\b([1-5])\s*(?:stars?|/\s*5)\b|\brated?\s+(?:it\s+)?(?:a\s+)?([1-5])\b`)
	levelPattern     = regexp.MustCompile(`\blevel\s+(\d+(?:\.\d+)?)(?:\s*-\s*(\d+(?:\.\d+)?))?\b`)
	quotedPattern    = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	topKPattern      = regexp.MustCompile(`\b(?:top|first)\s+(\d{1,2})\b`)
	availablePattern = regexp.MustCompile(`(?i)\bavailable\b|\bcan (?:check|take) out\b`)
	numericToken     = regexp.MustCompile(`^[\d.-]+$`)
)

type rule struct {
	intent  Intent
	pattern *regexp.Regexp
}

// Rule order matters: cancel before hold, snapshot before history, series
// before recommend.
var rules = []rule{
	{IntentCancelHold, regexp.MustCompile(`(?i)\bcancel\b.*\bhold\b|\bdrop\b.*\bhold\b`)},
	{IntentPlaceHold, regexp.MustCompile(`(?i)\breserve\b|\b(?:place|put|request)\b.*\bhold\b|\bhold\b.*\bfor me\b`)},
	{IntentSaveProfile, regexp.MustCompile(`(?i)\b(?:save|apply|update)\b.*\bprofile\b`)},
	{IntentOnboarding, regexp.MustCompile(`(?i)\bonboard\b|\bprofile\b.*\b(?:from|based on)\b.*\bhistory\b|\bset up\b.*\bprofile\b`)},
	{IntentFeedback, regexp.MustCompile(`(?i)\bliked it\b|\bloved\b|\bhated\b|\brated?\b|\brating\b|\bstars?\b|\bfeedback\b`)},
	{IntentSnapshot, regexp.MustCompile(`(?i)\bsnapshot\b|\bsummary\b|\boverview\b|\bstats\b`)},
	{IntentHistory, regexp.MustCompile(`(?i)\breading history\b|\bchecked out\b|\bborrowed\b|\bwhat (?:have|has|did)\b.*\bread\b`)},
	{IntentSeries, regexp.MustCompile(`(?i)\bnext\b.*\bseries\b|\bseries\b|\bmore by\b|\bsame author\b|\bsequel\b`)},
	{IntentRecommend, regexp.MustCompile(`(?i)\brecommend\b|\bsuggest\b|\bwhat should\b.*\bread\b|\bsomething (?:new|good)\b`)},
	{IntentAvailability, regexp.MustCompile(`(?i)\bavailable\b|\bavailability\b|\bin stock\b|\bon (?:the )?shel(?:f|ves)\b|\bdo you have\b`)},
}

// Router turns messages into plans against a catalog snapshot.
type Router struct{}

// NewRouter builds a router. The rule table is fixed.
func NewRouter() *Router { return &Router{} }

// Route classifies the message and assembles the plan. Unroutable messages
// become recommendation plans; routable messages with unresolvable arguments
// downgrade to a clarification with no tool calls.
func (r *Router) Route(req Request) Plan {
	intent := IntentRecommend
	for _, rl := range rules {
		if rl.pattern.MatchString(req.Message) {
			intent = rl.intent
			break
		}
	}

	studentID := req.StudentID
	if studentID == "" {
		studentID = studentIDPattern.FindString(req.Message)
	}
	if studentID == "" {
		studentID = lastMatch(studentIDPattern, req.History)
	}
	bookID := bookIDPattern.FindString(req.Message)

	switch intent {
	case IntentCancelHold:
		holdID := holdIDPattern.FindString(req.Message)
		if holdID == "" {
			holdID = lastMatch(holdIDPattern, req.History)
		}
		if holdID == "" {
			return clarify(intent, "Which hold should I cancel? Give me the hold id, like H0012.")
		}
		return Plan{Intent: intent, StudentID: studentID, Tools: []ToolCall{{
			Tool: tool.NameCancelHold,
			Args: map[string]any{"hold_id": holdID},
		}}}

	case IntentPlaceHold:
		return r.planHold(req, studentID, bookID)

	case IntentFeedback:
		return r.planFeedback(req, studentID, bookID)

	case IntentHistory:
		if studentID == "" {
			return clarify(intent, "Whose history? I need a student id, like S0042.")
		}
		return Plan{Intent: intent, StudentID: studentID, Tools: []ToolCall{{
			Tool: tool.NameReadingHistory,
			Args: map[string]any{"student_id": studentID},
		}}}

	case IntentSnapshot:
		if studentID == "" {
			return clarify(intent, "Which student should I summarize? I need an id like S0042.")
		}
		return Plan{Intent: intent, StudentID: studentID, Tools: []ToolCall{{
			Tool: tool.NameStudentSnapshot,
			Args: map[string]any{"student_id": studentID},
		}}}

	case IntentOnboarding, IntentSaveProfile:
		if studentID == "" {
			return clarify(intent, "Which student should I build a profile for? I need an id like S0042.")
		}
		return Plan{Intent: intent, StudentID: studentID, Tools: []ToolCall{{
			Tool: tool.NameOnboardFromHistory,
			Args: map[string]any{"student_id": studentID},
		}}}

	case IntentSeries:
		return r.planSeries(req, studentID, bookID)

	case IntentAvailability:
		return r.planAvailability(req, studentID)

	default:
		return r.planRecommend(req, studentID)
	}
}

// clarify keeps the routed intent for the audit trail but plans no tools.
func clarify(intent Intent, question string) Plan {
	return Plan{Intent: intent, Clarification: question}
}

func (r *Router) planHold(req Request, studentID, bookID string) Plan {
	if studentID == "" {
		return clarify(IntentPlaceHold, "Who is the hold for? I need a student id, like S0042.")
	}
	if bookID == "" {
		title, candidates := resolveTitle(req.Snapshot, req.Message)
		switch {
		case title != "":
			bookID = title
		case len(candidates) > 1:
			return clarify(IntentPlaceHold,
				fmt.Sprintf("A few titles match; which did you mean: %s?", strings.Join(candidates, ", ")))
		default:
			bookID = lastMatch(bookIDPattern, req.History)
		}
		if bookID == "" {
			return clarify(IntentPlaceHold, "Which book should I put on hold? A book id like B0101 or an exact title works.")
		}
	}
	// Look the copy up first so the reply can say whether it is on the shelf
	// before the hold is queued.
	lookup := map[string]any{"query": bookID, "limit": 1}
	if req.Snapshot != nil {
		if b, ok := req.Snapshot.Books[bookID]; ok {
			lookup["query"] = b.Title
		}
	}
	return Plan{Intent: IntentPlaceHold, StudentID: studentID, Tools: []ToolCall{
		{Tool: tool.NameAvailability, Args: lookup},
		{Tool: tool.NamePlaceHold, Args: map[string]any{"student_id": studentID, "book_id": bookID}},
	}}
}

func (r *Router) planFeedback(req Request, studentID, bookID string) Plan {
	if studentID == "" {
		return clarify(IntentFeedback, "Whose rating is this? I need a student id, like S0042.")
	}
	if bookID == "" {
		title, _ := resolveTitle(req.Snapshot, req.Message)
		bookID = title
	}
	if bookID == "" {
		bookID = lastMatch(bookIDPattern, req.History)
	}
	if bookID == "" {
		return clarify(IntentFeedback, "Which book is the rating for? A book id like B0101 or an exact title works.")
	}
	rating, ok := extractRating(req.Message)
	if !ok {
		return clarify(IntentFeedback, "What rating, 1 to 5?")
	}
	return Plan{Intent: IntentFeedback, StudentID: studentID, Tools: []ToolCall{{
		Tool: tool.NameRecordFeedback,
		Args: map[string]any{"student_id": studentID, "book_id": bookID, "rating": rating},
	}}}
}

func (r *Router) planSeries(req Request, studentID, bookID string) Plan {
	args := map[string]any{}
	if bookID != "" {
		args["book_id"] = bookID
	} else if title, _ := resolveTitle(req.Snapshot, req.Message); title != "" {
		args["book_id"] = title
	} else {
		return clarify(IntentSeries, "Which book is the starting point? A book id like B0101 or an exact title works.")
	}
	if studentID != "" {
		args["student_id"] = studentID
	}
	return Plan{Intent: IntentSeries, StudentID: studentID, Tools: []ToolCall{{
		Tool: tool.NameSeriesContinuation, Args: args,
	}}}
}

func (r *Router) planAvailability(req Request, studentID string) Plan {
	args := map[string]any{}
	if genre := extractGenre(req.Snapshot, req.Message); genre != "" {
		args["genre"] = genre
	} else if req.Profile != nil {
		if g := profileGenre(req.Snapshot, req.Profile.PreferredGenres); g != "" {
			args["genre"] = g
		}
	}
	if lvl := levelPattern.FindStringSubmatch(req.Message); lvl != nil {
		rng := lvl[1]
		if lvl[2] != "" {
			rng += "-" + lvl[2]
		}
		args["reading_level"] = rng
	} else if req.Profile != nil && req.Profile.ReadingLevel > 0 {
		args["reading_level"] = strconv.FormatFloat(req.Profile.ReadingLevel, 'f', -1, 64)
	}
	if q := queryTerms(req.Snapshot, req.Message); q != "" {
		args["query"] = q
	}
	args["availability"] = "available"
	return Plan{Intent: IntentAvailability, StudentID: studentID, Tools: []ToolCall{{
		Tool: tool.NameAvailability, Args: args,
	}}}
}

func (r *Router) planRecommend(req Request, studentID string) Plan {
	// No student id is not a dead end: the recommender answers with its
	// popularity fallback for an unknown or empty student.
	f := recommend.Filters{ExcludeBorrowed: true}
	if genre := extractGenre(req.Snapshot, req.Message); genre != "" {
		f.Genre = genre
	} else if req.Profile != nil {
		f.Genre = profileGenre(req.Snapshot, req.Profile.PreferredGenres)
	}
	if req.AvailabilityOnly || availablePattern.MatchString(req.Message) {
		f.Availability = core.Available
	}
	k := req.Limit
	if k <= 0 {
		k = 5
	}
	if m := topKPattern.FindStringSubmatch(req.Message); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			k = n
		}
	}
	return Plan{
		Intent:         IntentRecommend,
		RunRecommender: true,
		StudentID:      studentID,
		TopK:           k,
		Filters:        f,
	}
}

// lastMatch scans the session texts newest first for the pattern, so an id
// mentioned in an earlier turn keeps working in follow-up messages.
func lastMatch(pattern *regexp.Regexp, history []string) string {
	for i := len(history) - 1; i >= 0; i-- {
		if m := pattern.FindString(history[i]); m != "" {
			return m
		}
	}
	return ""
}

// profileGenre maps the first stored preferred genre onto the catalog's
// canonical casing. Genres the catalog does not carry are skipped.
func profileGenre(snap *core.Snapshot, preferred []string) string {
	if snap == nil {
		return ""
	}
	for _, p := range preferred {
		want := textutil.Normalize(p)
		for _, g := range snap.Genres() {
			if textutil.Normalize(g) == want {
				return g
			}
		}
	}
	return ""
}

// extractRating pulls a 1-5 rating from phrasings like "4 stars", "3/5" or
// "rated it 5".
func extractRating(msg string) (int, bool) {
	m := ratingPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	for _, g := range m[1:] {
		if g != "" {
			n, err := strconv.Atoi(g)
			return n, err == nil
		}
	}
	return 0, false
}

// extractGenre returns the catalog's canonical casing for the first genre
// named in the message.
func extractGenre(snap *core.Snapshot, msg string) string {
	if snap == nil {
		return ""
	}
	tokens := textutil.Tokenize(msg)
	for _, g := range snap.Genres() {
		if textutil.TokenMatch(tokens, textutil.Normalize(g)) {
			return g
		}
	}
	return ""
}

// resolveTitle matches quoted text, then the whole message, against catalog
// titles: exact normalized match first, then unique fuzzy token match. The
// second return lists titles when the fuzzy match is ambiguous.
func resolveTitle(snap *core.Snapshot, msg string) (bookID string, candidates []string) {
	if snap == nil {
		return "", nil
	}
	var needles []string
	for _, m := range quotedPattern.FindAllStringSubmatch(msg, -1) {
		if m[1] != "" {
			needles = append(needles, m[1])
		} else {
			needles = append(needles, m[2])
		}
	}
	needles = append(needles, msg)

	ids := make([]string, 0, len(snap.Books))
	for id := range snap.Books {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, needle := range needles {
		want := textutil.Normalize(needle)
		for _, id := range ids {
			if textutil.Normalize(snap.Books[id].Title) == want {
				return id, nil
			}
		}
	}

	// Fuzzy: a title counts as mentioned when all of its tokens appear in
	// the message.
	msgTokens := textutil.Tokenize(msg)
	var hits []string
	for _, id := range ids {
		titleTokens := textutil.Tokenize(snap.Books[id].Title)
		if len(titleTokens) == 0 {
			continue
		}
		all := true
		for _, tok := range titleTokens {
			if isStopword(tok) {
				continue
			}
			if !textutil.TokenMatch(msgTokens, tok) {
				all = false
				break
			}
		}
		if all {
			hits = append(hits, id)
		}
	}
	if len(hits) == 1 {
		return hits[0], nil
	}
	for _, id := range hits {
		candidates = append(candidates, snap.Books[id].Title)
	}
	return "", candidates
}

// queryTerms strips routing phrases and ids, leaving search terms for the
// availability tool.
func queryTerms(snap *core.Snapshot, msg string) string {
	msg = studentIDPattern.ReplaceAllString(msg, " ")
	msg = bookIDPattern.ReplaceAllString(msg, " ")
	var kept []string
	for _, tok := range textutil.Tokenize(msg) {
		if isStopword(tok) || isRoutingWord(tok) || numericToken.MatchString(tok) {
			continue
		}
		if extractGenre(snap, tok) != "" {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "for": {}, "to": {}, "is": {},
	"are": {}, "in": {}, "on": {}, "at": {}, "and": {}, "or": {}, "it": {},
	"me": {}, "my": {}, "you": {}, "we": {}, "i": {}, "s": {}, "please": {},
}

var routingWords = map[string]struct{}{
	"available": {}, "availability": {}, "stock": {}, "shelf": {}, "shelves": {},
	"have": {}, "do": {}, "any": {}, "books": {}, "book": {}, "level": {},
	"what": {}, "which": {}, "with": {}, "about": {}, "something": {},
}

func isStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

func isRoutingWord(tok string) bool {
	_, ok := routingWords[tok]
	return ok
}
