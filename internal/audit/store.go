package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/mask"
)

// Store persists masking findings in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

const schema = `
	CREATE TABLE IF NOT EXISTS mask_findings (
		id         BIGSERIAL PRIMARY KEY,
		request_id TEXT NOT NULL,
		source     TEXT NOT NULL,
		rule       TEXT NOT NULL,
		hits       INTEGER NOT NULL,
		fallback   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// NewStore creates a new findings store instance
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", redactDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the database connection and ensures the schema exists
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure findings table: %w", err)
	}

	return nil
}

// Insert adds a single finding record
func (s *Store) Insert(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO mask_findings (request_id, source, rule, hits, fallback)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		record.RequestID,
		record.Source,
		record.Rule,
		record.Hits,
		record.Fallback,
	).Scan(&record.ID, &record.CreatedAt)

	if err != nil {
		s.logger.Error("Failed to insert finding",
			zap.Error(err),
			zap.String("rule", record.Rule))
		return fmt.Errorf("failed to insert finding: %w", err)
	}

	return nil
}

// RecordFindings persists all findings of one masking operation
func (s *Store) RecordFindings(ctx context.Context, requestID, source string, fallback bool, findings []mask.Finding) (*BatchResult, error) {
	records := make([]*Record, len(findings))
	for i, f := range findings {
		records[i] = &Record{
			RequestID: requestID,
			Source:    source,
			Rule:      f.Rule,
			Hits:      f.Hits,
			Fallback:  fallback,
		}
	}
	return s.BatchInsert(ctx, records)
}

// BatchInsert adds multiple finding records efficiently
func (s *Store) BatchInsert(ctx context.Context, records []*Record) (*BatchResult, error) {
	if len(records) == 0 {
		return &BatchResult{}, nil
	}

	start := time.Now()
	result := &BatchResult{}

	valueStrings := make([]string, 0, len(records))
	valueArgs := make([]interface{}, 0, len(records)*5)

	for i, record := range records {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		valueArgs = append(valueArgs,
			record.RequestID,
			record.Source,
			record.Rule,
			record.Hits,
			record.Fallback,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO mask_findings (request_id, source, rule, hits, fallback)
		VALUES %s`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		result.Failed = int64(len(records))
		s.logger.Error("Batch insert failed", zap.Error(err))
		return result, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(records))
	}

	result.Inserted = inserted
	result.Failed = int64(len(records)) - inserted
	result.Duration = time.Since(start)

	s.logger.Debug("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// List returns finding records, newest first, bounded by the options
func (s *Store) List(ctx context.Context, options *ListOptions) ([]Record, error) {
	if options == nil {
		options = &ListOptions{Limit: 1000}
	}
	if options.Limit <= 0 {
		options.Limit = 1000
	}

	whereClause := ""
	args := []interface{}{}
	argIndex := 1

	if !options.Since.IsZero() {
		whereClause = fmt.Sprintf("WHERE created_at >= $%d", argIndex)
		args = append(args, options.Since)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT id, request_id, source, rule, hits, fallback, created_at
		FROM mask_findings
		%s
		ORDER BY created_at DESC
		LIMIT $%d`, whereClause, argIndex)

	args = append(args, options.Limit)

	start := time.Now()
	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		s.logger.Error("Findings query failed", zap.Error(err))
		return nil, fmt.Errorf("findings query failed: %w", err)
	}

	s.logger.Debug("Findings query completed",
		zap.Int("results", len(records)),
		zap.Duration("duration", time.Since(start)))

	return records, nil
}

// GetStats returns findings table statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(hits), 0) as total_hits,
			COUNT(DISTINCT rule) as distinct_rules
		FROM mask_findings`

	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalFindings,
		&stats.TotalHits,
		&stats.DistinctRules,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get findings stats: %w", err)
	}

	rangeQuery := `SELECT MIN(created_at), MAX(created_at) FROM mask_findings`
	var oldest, newest sql.NullTime
	if err := s.db.QueryRowContext(ctx, rangeQuery).Scan(&oldest, &newest); err != nil && err != sql.ErrNoRows {
		s.logger.Warn("Failed to get findings time range", zap.Error(err))
	}
	if oldest.Valid {
		stats.OldestRecord = oldest.Time
	}
	if newest.Valid {
		stats.NewestRecord = newest.Time
	}

	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// redactDatabaseURL masks credentials in a database URL for logging
func redactDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
