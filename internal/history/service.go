// Package history keeps an append-only log of finished analyses in sqlite
// and serves the top-risk and per-subject listings from it.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/analysis"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/database"
	"github.com/ZanzyTHEbar/trust-signal-analyzer/internal/types"
)

// MaxLimit caps every listing query
const MaxLimit = 100

// Entry is one stored analysis
type Entry struct {
	ID         string                   `json:"id"`
	SubjectKey string                   `json:"subject_key"`
	SubjectID  int64                    `json:"subject_id,omitempty"`
	Username   string                   `json:"username,omitempty"`
	Level      analysis.RiskLevel       `json:"risk_level"`
	Score      int                      `json:"risk_score"`
	Source     types.Source             `json:"source"`
	Degraded   bool                     `json:"degraded"`
	CreatedAt  time.Time                `json:"created_at"`
	Record     *analysis.AnalysisRecord `json:"record,omitempty"`
}

// Service reads and writes analysis history
type Service struct {
	db    *database.DB
	cache *ListingCache
	now   func() time.Time
}

// NewService creates a history service; listings are cached for cacheTTL
func NewService(db *database.DB, cacheTTL time.Duration) *Service {
	return &Service{
		db:    db,
		cache: NewListingCache(cacheTTL),
		now:   time.Now,
	}
}

// Record appends one analysis to the history
func (s *Service) Record(ctx context.Context, record *analysis.AnalysisRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis record: %w", err)
	}

	var subjectID sql.NullInt64
	if record.Subject.ID > 0 {
		subjectID = sql.NullInt64{Int64: record.Subject.ID, Valid: true}
	}

	query := `
		INSERT INTO analysis_history (
			id, subject_key, subject_id, username, risk_level, risk_score,
			source, degraded, record, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.Subject.Key(),
		subjectID,
		record.Subject.Username,
		string(record.RiskAssessment.Level),
		record.RiskAssessment.Score,
		string(record.Source),
		record.Degraded,
		string(payload),
		record.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis history: %w", err)
	}

	s.cache.Invalidate(ctx)

	slog.Debug("Analysis recorded in history",
		"id", record.ID,
		"subject", record.Subject.Key(),
		"level", record.RiskAssessment.Level,
		"score", record.RiskAssessment.Score)

	return nil
}

// TopRisk lists the latest analysis of each subject, highest risk first
func (s *Service) TopRisk(ctx context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit)

	if entries, ok := s.cache.GetTopRisk(ctx, limit); ok {
		return entries, nil
	}

	query := `
		SELECT h.id, h.subject_key, h.subject_id, h.username, h.risk_level, h.risk_score,
			h.source, h.degraded, h.created_at
		FROM analysis_history h
		JOIN (
			SELECT subject_key, MAX(created_at) AS latest
			FROM analysis_history
			GROUP BY subject_key
		) l ON h.subject_key = l.subject_key AND h.created_at = l.latest
		ORDER BY h.risk_score DESC, h.created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top risk subjects: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows, false)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top risk subjects: %w", err)
	}

	s.cache.SetTopRisk(ctx, limit, entries)
	return entries, nil
}

// ForSubject lists a subject's analyses newest first, including the full records
func (s *Service) ForSubject(ctx context.Context, subjectKey string, limit int) ([]Entry, error) {
	limit = clampLimit(limit)

	query := `
		SELECT id, subject_key, subject_id, username, risk_level, risk_score,
			source, degraded, created_at, record
		FROM analysis_history
		WHERE subject_key = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, subjectKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query subject history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows, true)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subject history: %w", err)
	}

	return entries, nil
}

func scanEntry(rows *sql.Rows, withRecord bool) (Entry, error) {
	var (
		entry     Entry
		subjectID sql.NullInt64
		username  sql.NullString
		level     string
		source    string
		payload   string
	)

	dest := []interface{}{
		&entry.ID, &entry.SubjectKey, &subjectID, &username, &level, &entry.Score,
		&source, &entry.Degraded, &entry.CreatedAt,
	}
	if withRecord {
		dest = append(dest, &payload)
	}

	if err := rows.Scan(dest...); err != nil {
		return Entry{}, fmt.Errorf("failed to scan history row: %w", err)
	}

	entry.SubjectID = subjectID.Int64
	entry.Username = username.String
	entry.Level = analysis.RiskLevel(level)
	entry.Source = types.Source(source)
	entry.CreatedAt = entry.CreatedAt.UTC()

	if withRecord {
		var record analysis.AnalysisRecord
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			slog.Warn("Skipping undecodable history record", "id", entry.ID, "error", err)
		} else {
			entry.Record = &record
		}
	}

	return entry, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
