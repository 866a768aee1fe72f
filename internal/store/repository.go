// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"

	"repodex/internal/ghurl"
	"repodex/internal/models"
)

const maxRepositoryNameLen = 200

// RepositoryStore handles all catalog entry database operations.
type RepositoryStore struct {
	db *sql.DB
}

// NewRepositoryStore creates a new RepositoryStore with the given database connection.
func NewRepositoryStore(db *sql.DB) *RepositoryStore {
	return &RepositoryStore{db: db}
}

const repositoryColumns = `id, name, source_url, owner, repo_name, description, category_id, repo_updated_at, added_at, processing`

// scanRepository scans a row into a Repository struct.
func scanRepository(scanner interface{ Scan(...any) error }) (*models.Repository, error) {
	var r models.Repository
	err := scanner.Scan(
		&r.ID, &r.Name, &r.SourceURL, &r.Owner, &r.RepoName, &r.Description,
		&r.CategoryID, &r.RepoUpdatedAt, &r.AddedAt, &r.Processing,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RepositoryInput carries the fields for creating a catalog entry.
type RepositoryInput struct {
	Name        string
	SourceURL   string
	Description string
	CategoryID  int64
	AutoSummary bool
}

// RepositoryUpdate carries a partial update; nil fields are left untouched.
type RepositoryUpdate struct {
	Name        *string
	SourceURL   *string
	Description *string
	CategoryID  *int64
}

// RepositoryFilter selects and pages the entry list. CategoryID is an exact
// match on the owning category (never a subtree match); Query is a
// case-insensitive substring over name, owner, repo name, description and
// the owning category's name.
type RepositoryFilter struct {
	CategoryID *int64
	Query      string
	Page       int
	PageSize   int
}

// RepositoryPage is one page of catalog entries.
type RepositoryPage struct {
	Items    []models.Repository `json:"items"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
	HasMore  bool                `json:"has_more"`
}

// Create validates and inserts a new catalog entry. The source URL is
// canonicalized and must be unique. When AutoSummary is requested the entry
// is persisted immediately with the placeholder description (the canonical
// URL) and processing = TRUE; the background run is the caller's job.
// An empty description without AutoSummary also gets the placeholder.
func (s *RepositoryStore) Create(in RepositoryInput) (*models.Repository, error) {
	name, err := normalizeRepositoryName(in.Name)
	if err != nil {
		return nil, err
	}

	ref, err := ghurl.Parse(in.SourceURL)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	sourceURL := ref.Canonical()

	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM repositories WHERE source_url = $1)`, sourceURL).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check duplicate source url: %w", err)
	}
	if exists {
		return nil, &ConflictError{Reason: "a repository with this source URL already exists"}
	}

	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`, in.CategoryID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check category: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("category %d: %w", in.CategoryID, ErrNotFound)
	}

	description := strings.TrimSpace(in.Description)
	processing := false
	var processingSince *time.Time
	if in.AutoSummary {
		description = sourceURL
		processing = true
		now := time.Now()
		processingSince = &now
	} else if description == "" {
		description = sourceURL
	}

	row := s.db.QueryRow(`
		INSERT INTO repositories (name, source_url, owner, repo_name, description, category_id, processing, processing_since)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+repositoryColumns,
		name, sourceURL, ref.Owner, ref.Name, description, in.CategoryID, processing, processingSince,
	)
	result, err := scanRepository(row)
	if err != nil {
		// The unique constraint is the backstop for creates racing the
		// duplicate check above.
		if isUniqueViolation(err) {
			return nil, &ConflictError{Reason: "a repository with this source URL already exists"}
		}
		return nil, fmt.Errorf("create repository: %w", err)
	}
	return result, nil
}

// Update applies a partial update. URL shape, duplicate identity and
// category existence are re-validated only for the fields actually touched.
// Updating is allowed at any time, including while processing.
func (s *RepositoryStore) Update(id int64, upd RepositoryUpdate) (*models.Repository, error) {
	existing, err := s.FindByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}

	name := existing.Name
	if upd.Name != nil {
		name, err = normalizeRepositoryName(*upd.Name)
		if err != nil {
			return nil, err
		}
	}

	sourceURL, owner, repoName := existing.SourceURL, existing.Owner, existing.RepoName
	if upd.SourceURL != nil {
		ref, err := ghurl.Parse(*upd.SourceURL)
		if err != nil {
			return nil, &ValidationError{Reason: err.Error()}
		}
		sourceURL, owner, repoName = ref.Canonical(), ref.Owner, ref.Name

		if sourceURL != existing.SourceURL {
			var exists bool
			if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM repositories WHERE source_url = $1 AND id <> $2)`, sourceURL, id).Scan(&exists); err != nil {
				return nil, fmt.Errorf("check duplicate source url: %w", err)
			}
			if exists {
				return nil, &ConflictError{Reason: "a repository with this source URL already exists"}
			}
		}
	}

	categoryID := existing.CategoryID
	if upd.CategoryID != nil {
		var exists bool
		if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM categories WHERE id = $1)`, *upd.CategoryID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check category: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("category %d: %w", *upd.CategoryID, ErrNotFound)
		}
		categoryID = *upd.CategoryID
	}

	description := existing.Description
	if upd.Description != nil {
		description = *upd.Description
	}

	row := s.db.QueryRow(`
		UPDATE repositories SET
			name = $1, source_url = $2, owner = $3, repo_name = $4,
			description = $5, category_id = $6
		WHERE id = $7
		RETURNING `+repositoryColumns,
		name, sourceURL, owner, repoName, description, categoryID, id,
	)
	result, err := scanRepository(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &ConflictError{Reason: "a repository with this source URL already exists"}
		}
		return nil, fmt.Errorf("update repository: %w", err)
	}
	return result, nil
}

// Delete removes a catalog entry unconditionally. Racing an in-flight
// enrichment run is safe: the run's final write simply hits zero rows.
func (s *RepositoryStore) Delete(id int64) error {
	res, err := s.db.Exec(`DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("repository %d: %w", id, ErrNotFound)
	}
	return nil
}

// FindByID retrieves an entry by ID. Returns nil if not found.
func (s *RepositoryStore) FindByID(id int64) (*models.Repository, error) {
	row := s.db.QueryRow(`SELECT `+repositoryColumns+` FROM repositories WHERE id = $1`, id)
	r, err := scanRepository(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find repository by id: %w", err)
	}
	return r, nil
}

// List returns one page of entries, most recently added first, with the
// total count and a has-more indicator. Lists are always served straight
// from the database: the admin view polls this while entries are
// processing, so the flag must never lag behind a cache.
func (s *RepositoryStore) List(filter RepositoryFilter) (*RepositoryPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	var conds []string
	var args []any
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		conds = append(conds, fmt.Sprintf("r.category_id = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(r.name ILIKE $%d OR r.owner ILIKE $%d OR r.repo_name ILIKE $%d OR r.description ILIKE $%d OR c.name ILIKE $%d)",
			n, n, n, n, n))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM repositories r JOIN categories c ON c.id = r.category_id` + where
	if err := s.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count repositories: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`
		SELECT r.id, r.name, r.source_url, r.owner, r.repo_name, r.description,
		       r.category_id, r.repo_updated_at, r.added_at, r.processing,
		       c.name AS category_name
		FROM repositories r
		JOIN categories c ON c.id = r.category_id
		%s
		ORDER BY r.added_at DESC, r.id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	defer rows.Close()

	var items []models.Repository
	for rows.Next() {
		var r models.Repository
		if err := rows.Scan(
			&r.ID, &r.Name, &r.SourceURL, &r.Owner, &r.RepoName, &r.Description,
			&r.CategoryID, &r.RepoUpdatedAt, &r.AddedAt, &r.Processing,
			&r.CategoryName,
		); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &RepositoryPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		HasMore:  page*pageSize < total,
	}, nil
}

// Search returns every entry matching the query, unranked beyond the usual
// recency ordering.
func (s *RepositoryStore) Search(query string) ([]models.Repository, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT r.id, r.name, r.source_url, r.owner, r.repo_name, r.description,
		       r.category_id, r.repo_updated_at, r.added_at, r.processing,
		       c.name AS category_name
		FROM repositories r
		JOIN categories c ON c.id = r.category_id
		WHERE r.name ILIKE $1 OR r.owner ILIKE $1 OR r.repo_name ILIKE $1
		   OR r.description ILIKE $1 OR c.name ILIKE $1
		ORDER BY r.added_at DESC, r.id DESC
	`, "%"+q+"%")
	if err != nil {
		return nil, fmt.Errorf("search repositories: %w", err)
	}
	defer rows.Close()

	var items []models.Repository
	for rows.Next() {
		var r models.Repository
		if err := rows.Scan(
			&r.ID, &r.Name, &r.SourceURL, &r.Owner, &r.RepoName, &r.Description,
			&r.CategoryID, &r.RepoUpdatedAt, &r.AddedAt, &r.Processing,
			&r.CategoryName,
		); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// BeginEnrichment atomically sets the processing flag for a re-triggered
// run. It reports false when the entry is already processing (a run is in
// flight) so no two runs for the same id can start from the trigger path.
func (s *RepositoryStore) BeginEnrichment(id int64) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE repositories SET processing = TRUE, processing_since = NOW()
		WHERE id = $1 AND processing = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("begin enrichment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("begin enrichment: %w", err)
	}
	return n == 1, nil
}

// CompleteEnrichment writes the generated description, the external update
// timestamp when known, and clears the processing flag in one statement.
// A zero-row result means the entry was deleted mid-run; that is reported
// as found=false, never as an error.
func (s *RepositoryStore) CompleteEnrichment(id int64, description string, repoUpdatedAt *time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE repositories SET
			description = $1,
			repo_updated_at = COALESCE($2, repo_updated_at),
			processing = FALSE,
			processing_since = NULL
		WHERE id = $3
	`, description, repoUpdatedAt, id)
	if err != nil {
		return false, fmt.Errorf("complete enrichment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete enrichment: %w", err)
	}
	return n == 1, nil
}

// FailEnrichment clears the processing flag and leaves the placeholder
// description untouched. Same deleted-entry tolerance as CompleteEnrichment.
func (s *RepositoryStore) FailEnrichment(id int64) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE repositories SET processing = FALSE, processing_since = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return false, fmt.Errorf("fail enrichment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail enrichment: %w", err)
	}
	return n == 1, nil
}

// ClearStaleProcessing clears processing flags whose run started before the
// cutoff. Flags can strand when the process dies mid-run; the janitor calls
// this on a schedule, and with a zero cutoff at boot (the queue is empty
// then, so every set flag is stale).
func (s *RepositoryStore) ClearStaleProcessing(olderThan time.Duration) (int64, error) {
	var res sql.Result
	var err error
	if olderThan <= 0 {
		res, err = s.db.Exec(`
			UPDATE repositories SET processing = FALSE, processing_since = NULL
			WHERE processing = TRUE
		`)
	} else {
		res, err = s.db.Exec(`
			UPDATE repositories SET processing = FALSE, processing_since = NULL
			WHERE processing = TRUE AND processing_since < $1
		`, time.Now().Add(-olderThan))
	}
	if err != nil {
		return 0, fmt.Errorf("clear stale processing: %w", err)
	}
	return res.RowsAffected()
}

// normalizeRepositoryName trims and validates an entry display name.
func normalizeRepositoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Reason: "repository name must not be empty"}
	}
	if utf8.RuneCountInString(name) > maxRepositoryNameLen {
		return "", &ValidationError{Reason: fmt.Sprintf("repository name exceeds %d characters", maxRepositoryNameLen)}
	}
	return name, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
