// Package reconcile decides, per staged record, whether the stored copy is
// inserted, updated, skipped or flagged as a conflict.
package reconcile
