package state

// Store is the transactional interface over the persisted document. It is
// the only write authority for durable engine state: tools and the
// orchestrator never bypass it.
//
// Contract:
//   - View runs fn with a read-only copy of the document; mutations to the
//     copy are invisible to the store.
//   - Transact runs fn with a scratch copy under exclusive lock. If fn
//     returns nil the copy becomes the new document and, for durable
//     implementations, is flushed before Transact returns; the store must
//     never report a mutation as committed if the durable write did not
//     complete. If fn returns an error the prior state is untouched and the
//     error is returned verbatim (core.ErrConflict, core.ErrNotFound and
//     ValidationError pass through for callers to branch on).
//
// The exclusive lock serializes all mutations, which subsumes the required
// per-(student,book) serialization for holds: two concurrent place-hold
// transactions for the same pair resolve to exactly one commit and one
// conflict.
type Store interface {
	View(fn func(doc *Document) error) error
	Transact(fn func(doc *Document) error) error
}
