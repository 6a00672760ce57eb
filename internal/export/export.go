package export

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/pipeline"
)

// Shape applies the export options to a set of audit records. Every
// option is applied only when set; an empty Options passes records
// through in store order.
func Shape(records []audit.Record, opts Options) []Record {
	shaped := pipeline.From(records).
		WhereIf(opts.Rule != "", func(rec audit.Record) bool {
			return strings.EqualFold(rec.Rule, opts.Rule)
		}).
		WhereIf(opts.Source != "", func(rec audit.Record) bool {
			return strings.EqualFold(rec.Source, opts.Source)
		}).
		OrderByIf(opts.SortBy == "time", pipeline.By(func(rec audit.Record) int64 {
			return rec.CreatedAt.UnixNano()
		}), opts.Descending).
		OrderByIf(opts.SortBy == "hits", pipeline.By(func(rec audit.Record) int {
			return rec.Hits
		}), opts.Descending).
		OrderByIf(opts.SortBy == "rule", pipeline.By(func(rec audit.Record) string {
			return rec.Rule
		}), opts.Descending).
		ThenByIf(opts.SortBy == "rule", pipeline.By(func(rec audit.Record) int {
			return rec.Hits
		}), true).
		SkipIf(opts.Offset > 0, opts.Offset).
		TakeIf(opts.Limit > 0, opts.Limit)

	return pipeline.MapIf(shaped, opts.Anonymize,
		func(rec audit.Record) Record {
			out := fromAudit(rec)
			out.RequestID = anonymizeID(rec.RequestID)
			return out
		},
		fromAudit,
	).Items()
}

// anonymizeID replaces a request ID with a short stable digest so
// exports can be joined on request without exposing the original ID.
func anonymizeID(requestID string) string {
	sum := sha256.Sum256([]byte(requestID))
	return "anon_" + hex.EncodeToString(sum[:])[:16]
}

// Write encodes records in the format matching the file extension.
func Write(w io.Writer, filename string, records []Record) error {
	switch DetectFileFormat(filename) {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatParquet:
		return WriteParquet(w, records)
	case FormatJSON:
		return WriteJSON(w, records)
	default:
		return fmt.Errorf("unsupported file format: %s", filename)
	}
}

// WriteCSV writes records as CSV with a header row
func WriteCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)

	header := []string{"id", "request_id", "source", "rule", "hits", "fallback", "created_at"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.RequestID,
			rec.Source,
			rec.Rule,
			strconv.Itoa(int(rec.Hits)),
			strconv.FormatBool(rec.Fallback),
			rec.CreatedAt,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteJSON writes records as newline-delimited JSON
func WriteJSON(w io.Writer, records []Record) error {
	encoder := json.NewEncoder(w)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return fmt.Errorf("failed to write JSON record: %w", err)
		}
	}
	return nil
}

// WriteParquet writes records as a Parquet file
func WriteParquet(w io.Writer, records []Record) error {
	writer := parquet.NewWriter(w)

	for _, rec := range records {
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write Parquet record: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize Parquet file: %w", err)
	}
	return nil
}
