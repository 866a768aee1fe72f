// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers for the Repodex API.
// Handlers are grouped by concern (admin, public, auth) and receive their
// dependencies through the handler struct.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"repodex/internal/catalog"
	"repodex/internal/models"
	"repodex/internal/store"
)

// Enrichment log listing bounds.
const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// EnrichService is the slice of the enrichment pipeline the admin
// handlers drive.
type EnrichService interface {
	Enqueue(id int64, sourceURL string)
	Trigger(id int64, sourceURL string) error
	Preview(ctx context.Context, sourceURL string) (string, error)
}

// Admin groups the authenticated management handlers and their
// dependencies.
type Admin struct {
	catalog    *catalog.Catalog
	categories *store.CategoryStore
	repos      *store.RepositoryStore
	settings   *store.SettingStore
	enrichLog  *store.EnrichLogStore
	enricher   EnrichService
}

// NewAdmin creates the Admin handler group.
func NewAdmin(cat *catalog.Catalog, categories *store.CategoryStore, repos *store.RepositoryStore, settings *store.SettingStore, enrichLog *store.EnrichLogStore, enricher EnrichService) *Admin {
	return &Admin{
		catalog:    cat,
		categories: categories,
		repos:      repos,
		settings:   settings,
		enrichLog:  enrichLog,
		enricher:   enricher,
	}
}

// --- Categories ---

// CategoriesTree serves the full forest, unlimited depth, every node
// carrying its own entry count and direct-child count.
func (a *Admin) CategoriesTree(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.catalog.AdminTree()
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nodes)
}

// CategoriesFlat serves every category as a flat list.
func (a *Admin) CategoriesFlat(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.catalog.Flat()
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, nodes)
}

// CategoryPath serves the ancestor id chain of a category, root first.
func (a *Admin) CategoryPath(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	path, err := a.catalog.Path(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]int64{"path": path})
}

type categoryCreateRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// CategoryCreate adds a category, optionally under a parent.
func (a *Admin) CategoryCreate(w http.ResponseWriter, r *http.Request) {
	var req categoryCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	cat, err := a.categories.Create(req.Name, req.ParentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.catalog.InvalidateTree(r.Context())
	respondJSON(w, http.StatusCreated, cat)
}

// categoryUpdateRequest distinguishes an absent parent_id (leave the
// parent alone) from an explicit null (move to the root level).
type categoryUpdateRequest struct {
	Name     *string         `json:"name"`
	ParentID json.RawMessage `json:"parent_id"`
}

// CategoryUpdate renames and/or re-parents a category. Re-parenting
// recomputes the levels of the whole moved subtree; moving a node under
// its own descendant is rejected.
func (a *Admin) CategoryUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req categoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	var cat *models.Category
	if req.Name != nil {
		cat, err = a.categories.Rename(id, *req.Name)
		if err != nil {
			respondError(w, r, err)
			return
		}
	}
	if len(req.ParentID) > 0 {
		parentID, perr := parseNullableID(req.ParentID)
		if perr != nil {
			respondError(w, r, perr)
			return
		}
		cat, err = a.categories.Reparent(id, parentID)
		if err != nil {
			respondError(w, r, err)
			return
		}
	}
	if cat == nil {
		respondError(w, r, &store.ValidationError{Reason: "nothing to update"})
		return
	}

	a.catalog.InvalidateTree(r.Context())
	respondJSON(w, http.StatusOK, cat)
}

// parseNullableID handles the three-way parent_id field: JSON null means
// "root", a number is the new parent.
func parseNullableID(raw json.RawMessage) (*int64, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, &store.ValidationError{Reason: "parent_id must be a number or null"}
	}
	return &id, nil
}

// CategoryDelete removes a category. Categories with children or with
// entries of their own are refused.
func (a *Admin) CategoryDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := a.categories.Delete(id); err != nil {
		respondError(w, r, err)
		return
	}
	a.catalog.InvalidateTree(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// --- Repositories ---

// RepositoriesList serves the admin entry list: category and search
// filters combine, page sizes come from the fixed admin set.
func (a *Admin) RepositoriesList(w http.ResponseWriter, r *http.Request) {
	page, err := a.catalog.List(catalog.ListParams{
		CategoryID: queryInt64Ptr(r, "category_id"),
		Query:      r.URL.Query().Get("q"),
		Page:       queryInt(r, "page"),
		PageSize:   queryInt(r, "page_size"),
		Admin:      true,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

type repositoryCreateRequest struct {
	Name        string `json:"name"`
	SourceURL   string `json:"source_url"`
	Description string `json:"description"`
	CategoryID  int64  `json:"category_id"`
	AutoSummary bool   `json:"auto_summary"`
}

// RepositoryCreate adds a catalog entry. With auto_summary the entry is
// stored immediately with the placeholder description and handed to the
// background pipeline; the response never waits for enrichment.
func (a *Admin) RepositoryCreate(w http.ResponseWriter, r *http.Request) {
	var req repositoryCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	repo, err := a.repos.Create(store.RepositoryInput{
		Name:        req.Name,
		SourceURL:   req.SourceURL,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		AutoSummary: req.AutoSummary,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.catalog.InvalidateTree(r.Context())

	if req.AutoSummary {
		a.enricher.Enqueue(repo.ID, repo.SourceURL)
	}
	respondJSON(w, http.StatusCreated, repo)
}

type repositoryUpdateRequest struct {
	Name        *string `json:"name"`
	SourceURL   *string `json:"source_url"`
	Description *string `json:"description"`
	CategoryID  *int64  `json:"category_id"`
}

// RepositoryUpdate applies a partial update. Editing is allowed while an
// enrichment run is in flight; a finished run simply overwrites the
// description again.
func (a *Admin) RepositoryUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req repositoryUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	repo, err := a.repos.Update(id, store.RepositoryUpdate{
		Name:        req.Name,
		SourceURL:   req.SourceURL,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	a.catalog.InvalidateTree(r.Context())
	respondJSON(w, http.StatusOK, repo)
}

// RepositoryDelete removes an entry. An in-flight enrichment run for it
// finishes as a no-op.
func (a *Admin) RepositoryDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := a.repos.Delete(id); err != nil {
		respondError(w, r, err)
		return
	}
	a.catalog.InvalidateTree(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// RepositoryEnrich re-runs the metadata pipeline for an entry. Conflicts
// (already processing) map to 409.
func (a *Admin) RepositoryEnrich(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	repo, err := a.repos.FindByID(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if repo == nil {
		respondError(w, r, fmt.Errorf("repository %d: %w", id, store.ErrNotFound))
		return
	}

	if err := a.enricher.Trigger(repo.ID, repo.SourceURL); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type previewRequest struct {
	SourceURL string `json:"source_url"`
}

// RepositoryPreview runs fetch+summarize synchronously for the editing
// UI. Nothing is persisted.
func (a *Admin) RepositoryPreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	summary, err := a.enricher.Preview(r.Context(), req.SourceURL)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// EnrichmentLog serves the most recent enrichment runs.
func (a *Admin) EnrichmentLog(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	if limit < 1 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	entries, err := a.enrichLog.RecentEntries(limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// --- Settings ---

// SettingsList serves every runtime setting.
func (a *Admin) SettingsList(w http.ResponseWriter, r *http.Request) {
	settings, err := a.settings.List()
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// SettingsUpdate upserts a batch of settings in one transaction.
func (a *Admin) SettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if len(req) == 0 {
		respondError(w, r, &store.ValidationError{Reason: "no settings provided"})
		return
	}

	if err := a.settings.SetMany(req); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
