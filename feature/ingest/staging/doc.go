// Package staging accumulates normalized records for a run and collapses
// intra-batch duplicates before reconciliation.
package staging
