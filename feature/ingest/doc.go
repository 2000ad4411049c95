// Package ingest is the import engine: it pulls raw items from a source,
// normalizes them into canonical records, reconciles them against the store
// and commits the surviving mutations in chunked transactions.
//
// The package root holds the orchestration layer (runner, service, HTTP
// handler, metrics); the pipeline stages live in the subpackages record,
// staging, reconcile, store and source.
package ingest
