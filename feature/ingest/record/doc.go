// Package record defines the canonical record model and the normalizer that
// maps raw vendor items into it.
//
// Every metric fact handled by the ingestion engine, whether it arrived
// through the synced vendor feed or a bulk export archive, is
// represented as a Canonical value: a closed set of typed payload variants
// identified by a deterministic natural key and a content hash.
//
// # Natural Keys
//
// Natural keys are derived from payload content, never from vendor-assigned
// row ids, because the feed and the archive assign different ids to the same
// real-world event. A daily summary keys on its subject day; high-frequency
// samples key on their timestamp bucket.
//
// # Content Hash
//
// The content hash is a SHA-256 digest over the canonical JSON encoding of
// (type, natural key, payload). Provenance and import timestamps are excluded,
// so two imports of the same underlying fact hash identically regardless of
// which source supplied them.
//
// Normalization is a pure mapping step: it validates required fields, parses
// loosely-typed values tolerantly (the vendor export is famously sloppy about
// quoting and numeric formats), and rejects anything outside the known set of
// record types with a NormalizationError rather than passing blobs through
// untyped.
package record
