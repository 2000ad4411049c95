// Package store owns all durable state of the ingestion engine: canonical
// records, per-source import checkpoints and import-run provenance.
//
// The write path goes exclusively through Writer.Commit, which applies a
// batch's reconciliation decisions in chunked transactions. Each chunk is
// atomic; the checkpoint advances inside the same transaction as the final
// chunk, so an interruption can only ever leave fully-committed chunks behind
// and a re-run converges through the reconciler's content-hash Skip path.
//
// Readers (dashboard, advisor) see committed data only; no component other
// than the Writer mutates the record tables.
package store
