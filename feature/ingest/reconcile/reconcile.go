// Package reconcile decides, per natural key, what a staged record means for
// the persistent store: insert it, update the stored row, skip it, or flag a
// conflict.
//
// The policy deliberately avoids "later wins": the synced feed and the bulk
// archive are equally trusted, and a thinner record from one source must
// never overwrite a richer record from the other. A record wins on populated
// field count; ties fall back to the later subject timestamp. Anything still
// ambiguous is a Conflict: the stored value is retained and the conflict is
// surfaced in the batch outcome, never silently dropped.
package reconcile

import (
	"encoding/json"
	"time"

	"vitals-manager/feature/ingest/record"
)

// Kind enumerates reconciliation decisions.
type Kind string

const (
	// KindInsert stores a record with no prior version.
	KindInsert Kind = "insert"
	// KindUpdate replaces the stored version with the staged one.
	KindUpdate Kind = "update"
	// KindSkip leaves an identical stored version untouched.
	KindSkip Kind = "skip"
	// KindConflict retains the stored version and reports the collision.
	KindConflict Kind = "conflict"
)

// Stored is the reconciler's view of a persisted record: just enough to
// compare content without loading the typed payload.
type Stored struct {
	ContentHash string
	Payload     []byte
	SubjectTime time.Time
}

// Decision pairs a staged record with the action the store writer should take.
type Decision struct {
	Kind   Kind
	Record record.Canonical
}

// Mutates reports whether the decision results in a write.
func (d Decision) Mutates() bool {
	return d.Kind == KindInsert || d.Kind == KindUpdate
}

// Decide reconciles one staged record against the stored version of the same
// natural key, or against absence when existing is nil.
func Decide(staged record.Canonical, existing *Stored) Decision {
	if existing == nil {
		return Decision{Kind: KindInsert, Record: staged}
	}
	if existing.ContentHash == staged.ContentHash {
		// Identical content: no write, no re-timestamp.
		return Decision{Kind: KindSkip, Record: staged}
	}

	stagedFields := record.Completeness(staged.Payload)
	storedFields := completenessJSON(existing.Payload)
	switch {
	case stagedFields > storedFields:
		return Decision{Kind: KindUpdate, Record: staged}
	case stagedFields == storedFields && staged.Payload.SubjectTime().After(existing.SubjectTime):
		return Decision{Kind: KindUpdate, Record: staged}
	default:
		return Decision{Kind: KindConflict, Record: staged}
	}
}

// DecideAll reconciles a batch of staged records against a lookup of stored
// versions keyed by record identity.
func DecideAll(staged []record.Canonical, existing map[record.Key]Stored) []Decision {
	decisions := make([]Decision, 0, len(staged))
	for _, rec := range staged {
		var prior *Stored
		if s, ok := existing[rec.Key()]; ok {
			stored := s
			prior = &stored
		}
		decisions = append(decisions, Decide(rec, prior))
	}
	return decisions
}

// completenessJSON counts populated top-level fields in a stored payload.
// Mirrors record.Completeness for payloads that only exist as JSON.
func completenessJSON(payload []byte) int {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return 0
	}
	n := 0
	for _, v := range m {
		if string(v) != "null" {
			n++
		}
	}
	return n
}
