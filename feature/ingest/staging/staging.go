// Package staging holds the normalized records of one import batch in memory,
// grouped by natural key, before reconciliation.
//
// The buffer is where intra-batch duplicates die: overlapping archive files
// and re-fetched feed pages routinely describe the same fact twice within a
// single batch. Identical content collapses silently; differing content is
// resolved with the same completeness ordering the reconciler uses, so the
// record that survives staging is the one that would have won reconciliation
// anyway.
//
// The buffer never touches the persistent store.
package staging

import (
	"sort"

	"vitals-manager/feature/ingest/record"
)

// Buffer accumulates normalized records for one import batch.
// Not safe for concurrent use; a batch is staged by a single goroutine.
type Buffer struct {
	groups     map[record.Key]record.Canonical
	duplicates int
}

// NewBuffer returns an empty staging buffer.
func NewBuffer() *Buffer {
	return &Buffer{groups: make(map[record.Key]record.Canonical)}
}

// Add stages a record, resolving any intra-batch collision on its key.
// Identical content keeps the already-staged record; differing content keeps
// the more complete payload, falling back to the later subject timestamp.
func (b *Buffer) Add(rec record.Canonical) {
	key := rec.Key()
	existing, ok := b.groups[key]
	if !ok {
		b.groups[key] = rec
		return
	}

	b.duplicates++
	if existing.ContentHash == rec.ContentHash {
		// Equivalent records; either one will do.
		return
	}
	if prefer(rec, existing) {
		b.groups[key] = rec
	}
}

// AddAll stages a slice of records.
func (b *Buffer) AddAll(recs []record.Canonical) {
	for _, rec := range recs {
		b.Add(rec)
	}
}

// Records returns the staged records sorted by key for deterministic
// reconciliation order.
func (b *Buffer) Records() []record.Canonical {
	out := make([]record.Canonical, 0, len(b.groups))
	for _, rec := range b.groups {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].NaturalKey < out[j].NaturalKey
	})
	return out
}

// Keys returns the distinct keys staged so far.
func (b *Buffer) Keys() []record.Key {
	keys := make([]record.Key, 0, len(b.groups))
	for key := range b.groups {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of distinct staged records.
func (b *Buffer) Len() int { return len(b.groups) }

// Duplicates returns how many intra-batch collisions were resolved.
func (b *Buffer) Duplicates() int { return b.duplicates }

// prefer reports whether candidate should replace current.
func prefer(candidate, current record.Canonical) bool {
	cc := record.Completeness(candidate.Payload)
	cu := record.Completeness(current.Payload)
	if cc != cu {
		return cc > cu
	}
	return candidate.Payload.SubjectTime().After(current.Payload.SubjectTime())
}
