package audit

import (
	"time"
)

// Record is one persisted masking finding: a single sensitive rule that
// matched during one masking operation.
type Record struct {
	ID        int64     `db:"id" json:"id"`
	RequestID string    `db:"request_id" json:"request_id"`
	Source    string    `db:"source" json:"source"`
	Rule      string    `db:"rule" json:"rule"`
	Hits      int       `db:"hits" json:"hits"`
	Fallback  bool      `db:"fallback" json:"fallback"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ListOptions bounds a findings query. Finer shaping (per-rule filters,
// ordering, paging) happens in memory through the pipeline combinators.
type ListOptions struct {
	Since time.Time
	Limit int
}

// BatchResult reports the outcome of a batch insert
type BatchResult struct {
	Inserted int64         `json:"inserted"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Stats summarizes the findings table
type Stats struct {
	TotalFindings int64     `json:"total_findings"`
	TotalHits     int64     `json:"total_hits"`
	DistinctRules int64     `json:"distinct_rules"`
	OldestRecord  time.Time `json:"oldest_record"`
	NewestRecord  time.Time `json:"newest_record"`
}
