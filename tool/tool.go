// Package tool implements the closed set of capability tools the orchestrator
// can invoke: read-only catalog lookups and the three state-mutating
// operations (holds, feedback, profile drafts). Every tool sits behind one
// interface with schema-validated arguments and a normalized error taxonomy,
// selected by explicit name, never reflection.
package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shelfwise/shelfwise/core"
	"github.com/shelfwise/shelfwise/internal/util"
	"github.com/shelfwise/shelfwise/logging"
	"github.com/shelfwise/shelfwise/state"
)

// Tool names. The intent router and orchestrator refer to tools only through
// these constants.
const (
	NameAvailability       = "availability"
	NameReadingHistory     = "reading_history"
	NameOnboardFromHistory = "onboard_from_history"
	NameStudentSnapshot    = "student_snapshot"
	NameSeriesContinuation = "series_continuation"
	NamePlaceHold          = "place_hold"
	NameCancelHold         = "cancel_hold"
	NameRecordFeedback     = "record_feedback"
)

// Error codes carried by ToolError for uniform downstream branching.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeConflict    = "CONFLICT"
	CodeNotFound    = "NOT_FOUND"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnavailable = "DEPENDENCY_UNAVAILABLE"
)

// Invocation carries the per-request inputs a tool operates on: the immutable
// snapshot, the transactional store (the only write path for durable state)
// and the request clock.
type Invocation struct {
	Snapshot *core.Snapshot
	Store    state.Store
	Now      time.Time
	Args     map[string]any

	// HoldRetention is the window before a new hold expires.
	HoldRetention time.Duration
}

// Result is a successful tool outcome: structured data plus advisory
// warnings that never abort the plan.
type Result struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
}

// Tool is the single capability interface. Implementations must be safe for
// concurrent use: read-only tools share nothing mutable, mutating tools go
// through Store.Transact.
type Tool interface {
	// Name returns the unique tool identifier (snake_case).
	Name() string

	// Description returns a short human-readable summary used in traces and
	// registry listings.
	Description() string

	// Parameters returns the JSON-schema subset describing accepted
	// arguments; the registry validates against it before Invoke.
	Parameters() map[string]any

	// Mutating reports whether the tool writes durable state. The
	// orchestrator runs mutating tools serially in plan order and everything
	// else concurrently.
	Mutating() bool

	// Invoke executes the tool with already-validated arguments.
	Invoke(ctx context.Context, inv *Invocation) (*Result, error)
}

// ToolError is the normalized failure wrapper for tool execution.
//
// Error semantics:
//
//	core.ErrConflict             -> Code CONFLICT
//	core.ErrNotFound             -> Code NOT_FOUND
//	*core.ValidationError        -> Code VALIDATION_ERROR
//	core.ErrDependencyUnavailable-> Code DEPENDENCY_UNAVAILABLE
//	anything else                -> Code EXECUTION_ERROR
type ToolError struct {
	Tool    string `json:"tool"`
	Code    string `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
}

// Unwrap exposes the underlying error so errors.Is/As keep working through
// the wrapper.
func (e *ToolError) Unwrap() error { return e.err }

func wrapError(tool string, err error) *ToolError {
	te := &ToolError{Tool: tool, Message: err.Error(), err: err}
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		te.Code = CodeValidation
	case errors.Is(err, core.ErrConflict):
		te.Code = CodeConflict
	case errors.Is(err, core.ErrNotFound):
		te.Code = CodeNotFound
	case errors.Is(err, core.ErrDependencyUnavailable):
		te.Code = CodeUnavailable
	default:
		te.Code = CodeExecution
	}
	return te
}

// Registry holds the closed tool set. Lookup is by name; there is no dynamic
// registration after construction.
type Registry struct {
	tools  map[string]Tool
	names  []string
	logger logging.Logger
}

// NewRegistry builds a registry from the given tools.
func NewRegistry(logger logging.Logger, tools ...Tool) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	r := &Registry{tools: map[string]Tool{}, logger: logger}
	for _, t := range tools {
		r.tools[t.Name()] = t
		r.names = append(r.names, t.Name())
	}
	return r
}

// DefaultRegistry builds a registry with all eight capability tools.
func DefaultRegistry(logger logging.Logger) *Registry {
	return NewRegistry(logger,
		&Availability{},
		&ReadingHistory{},
		&OnboardFromHistory{},
		&StudentSnapshot{},
		&SeriesContinuation{},
		&PlaceHold{},
		&CancelHold{},
		&RecordFeedback{},
	)
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Invoke validates args against the tool's schema, runs it, and normalizes
// any failure to *ToolError.
func (r *Registry) Invoke(ctx context.Context, name string, inv *Invocation) (*Result, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &ToolError{Tool: name, Code: CodeNotFound, Message: "unknown tool", err: core.ErrNotFound}
	}
	if err := util.ValidateParameters(inv.Args, t.Parameters()); err != nil {
		r.logger.Warn("tool.call.validation_failed", "tool", name, "error", err.Error())
		return nil, wrapError(name, err)
	}

	start := time.Now()
	result, err := t.Invoke(ctx, inv)
	logging.LogToolCall(r.logger, name, time.Since(start), err)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, wrapError(name, err)
	}
	return result, nil
}

// argString fetches an optional string argument.
func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// argInt fetches an optional integer argument (JSON numbers arrive as
// float64), falling back to def.
func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
