// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// enrich_log.go records enrichment runs in the database for audit and
// debugging purposes. Each entry captures which repository was enriched,
// how the run ended, and how long it took. Failures never surface to
// whoever created the entry, so this log is where they become visible.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Enrichment run outcomes.
const (
	EnrichStatusDone    = "done"
	EnrichStatusFailed  = "failed"
	EnrichStatusMissing = "missing" // entry deleted before the run finished
)

// EnrichLogStore handles enrichment run log operations.
type EnrichLogStore struct {
	db *sql.DB
}

// NewEnrichLogStore creates a new EnrichLogStore.
func NewEnrichLogStore(db *sql.DB) *EnrichLogStore {
	return &EnrichLogStore{db: db}
}

// Log records one finished enrichment run.
func (s *EnrichLogStore) Log(runID uuid.UUID, repositoryID int64, sourceURL, status, detail string, duration time.Duration) {
	_, err := s.db.Exec(`
		INSERT INTO enrich_log (run_id, repository_id, source_url, status, detail, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, runID, repositoryID, sourceURL, status, detail, duration.Milliseconds())
	if err != nil {
		// Log but don't fail — run logging is best-effort.
		slog.Warn("failed to log enrichment run",
			"run_id", runID,
			"repository_id", repositoryID,
			"status", status,
			"error", err,
		)
		return
	}
	slog.Debug("enrichment run logged",
		"run_id", runID,
		"repository_id", repositoryID,
		"status", status,
	)
}

// RecentEntries returns the most recent enrichment runs for debugging.
// Limited to the specified count.
func (s *EnrichLogStore) RecentEntries(limit int) ([]EnrichLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, repository_id, source_url, status, detail, duration_ms, created_at
		FROM enrich_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query enrich log: %w", err)
	}
	defer rows.Close()

	var entries []EnrichLogEntry
	for rows.Next() {
		var e EnrichLogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.RepositoryID, &e.SourceURL, &e.Status, &e.Detail, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan enrich log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EnrichLogEntry represents a single recorded enrichment run.
type EnrichLogEntry struct {
	ID           int64     `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	RepositoryID int64     `json:"repository_id"`
	SourceURL    string    `json:"source_url"`
	Status       string    `json:"status"`
	Detail       string    `json:"detail"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
