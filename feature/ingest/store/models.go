package store

import (
	"time"
)

// Record is the persisted form of a canonical record. The unique index on
// (record_type, natural_key) enforces the one-row-per-fact invariant: the
// store holds the latest reconciled version, not an import history.
type Record struct {
	ID            uint      `gorm:"column:id;primaryKey"`
	RecordType    string    `gorm:"column:record_type;size:32;uniqueIndex:idx_records_identity"`
	NaturalKey    string    `gorm:"column:natural_key;size:128;uniqueIndex:idx_records_identity"`
	Payload       string    `gorm:"column:payload"`
	Source        string    `gorm:"column:source;size:32"`
	SourceVersion string    `gorm:"column:source_version;size:64"`
	ContentHash   string    `gorm:"column:content_hash;size:64"`
	SubjectTime   time.Time `gorm:"column:subject_time;index"`
	ImportedAt    time.Time `gorm:"column:imported_at"`
}

// TableName overrides the default pluralization.
func (Record) TableName() string {
	return "records"
}

// Checkpoint is the persisted reconciliation marker for one source: the last
// synced day for the feed, the fingerprint of the last fully applied archive.
// Only the Writer creates or advances checkpoints, and only on commit.
type Checkpoint struct {
	Source    string    `gorm:"column:source;primaryKey;size:32"`
	Value     string    `gorm:"column:value;size:128"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default pluralization.
func (Checkpoint) TableName() string {
	return "checkpoints"
}

// ImportRun is the provenance row for one orchestrator run.
type ImportRun struct {
	RunID      string     `gorm:"column:run_id;primaryKey;size:36"`
	Source     string     `gorm:"column:source;size:32;index"`
	State      string     `gorm:"column:state;size:16"`
	Outcome    string     `gorm:"column:outcome;size:24"`
	Inserted   int        `gorm:"column:inserted"`
	Updated    int        `gorm:"column:updated"`
	Skipped    int        `gorm:"column:skipped"`
	Conflicts  int        `gorm:"column:conflicts"`
	Errors     int        `gorm:"column:errors"`
	Duplicates int        `gorm:"column:duplicates"`
	StartedAt  time.Time  `gorm:"column:started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at"`
	Error      string     `gorm:"column:error"`
}

// TableName overrides the default pluralization.
func (ImportRun) TableName() string {
	return "import_runs"
}

