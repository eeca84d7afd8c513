// Package core defines the shared domain contracts for Shelfwise: the
// immutable catalog snapshot (books, students, loans), the durable entities
// mutated by capability tools (holds, feedback, onboarding profiles), the
// per-invocation observability record, conversational sessions, and the
// error taxonomy used across the engine.
//
// Everything here is plain data plus small invariant helpers. Components that
// operate on these types (the recommender, tools, orchestrator, stores) live
// in their own packages and depend on core, never the other way around.
package core
