package export

import (
	"time"

	"github.com/veilhq/veil/internal/audit"
)

// Record is one exported audit finding row
type Record struct {
	ID        int64  `csv:"id" parquet:"id" json:"id"`
	RequestID string `csv:"request_id" parquet:"request_id" json:"request_id"`
	Source    string `csv:"source" parquet:"source" json:"source"`
	Rule      string `csv:"rule" parquet:"rule" json:"rule"`
	Hits      int32  `csv:"hits" parquet:"hits" json:"hits"`
	Fallback  bool   `csv:"fallback" parquet:"fallback" json:"fallback"`
	CreatedAt string `csv:"created_at" parquet:"created_at" json:"created_at"`
}

// FileFormat represents supported output formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
	FormatUnknown FileFormat = "unknown"
)

// Options controls filtering, ordering and shaping of exported records
type Options struct {
	Rule       string // keep only findings for this rule (case-insensitive)
	Source     string // keep only findings from this source
	SortBy     string // time, rule or hits; empty keeps store order
	Descending bool
	Offset     int
	Limit      int
	Anonymize  bool // replace request IDs with a stable digest
}

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case len(filename) >= 4 && filename[len(filename)-4:] == ".csv":
		return FormatCSV
	case len(filename) >= 8 && filename[len(filename)-8:] == ".parquet":
		return FormatParquet
	case len(filename) >= 5 && filename[len(filename)-5:] == ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

func fromAudit(rec audit.Record) Record {
	return Record{
		ID:        rec.ID,
		RequestID: rec.RequestID,
		Source:    rec.Source,
		Rule:      rec.Rule,
		Hits:      int32(rec.Hits),
		Fallback:  rec.Fallback,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}
