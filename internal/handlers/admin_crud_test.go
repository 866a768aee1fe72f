// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Integration tests for the admin category, repository and settings
// handlers. Skipped when PostgreSQL or Valkey are unavailable.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"repodex/internal/catalog"
	"repodex/internal/models"
	"repodex/internal/store"
)

func postJSON(t *testing.T, handler http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	handler(w, r)
	return w
}

func putJSON(t *testing.T, handler http.HandlerFunc, target, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("PUT", target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	handler(w, withChiURLParam(r, "id", id))
	return w
}

func TestCategoryCRUDFlow(t *testing.T) {
	env := newTestEnv(t)
	names := []string{"crud-test-root", "crud-test-child", "crud-test-renamed"}
	t.Cleanup(func() { cleanCategories(t, env.DB, names...) })

	// Create a root category.
	w := postJSON(t, env.Admin.CategoryCreate, "/api/admin/categories", `{"name":"crud-test-root"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create root: status %d, body %s", w.Code, w.Body)
	}
	var root models.Category
	if err := json.NewDecoder(w.Body).Decode(&root); err != nil {
		t.Fatalf("decode root: %v", err)
	}
	if root.Level != 0 || root.ParentID != nil {
		t.Errorf("root should be level 0 with no parent: %+v", root)
	}

	// Create a child under it.
	w = postJSON(t, env.Admin.CategoryCreate, "/api/admin/categories",
		fmt.Sprintf(`{"name":"crud-test-child","parent_id":%d}`, root.ID))
	if w.Code != http.StatusCreated {
		t.Fatalf("create child: status %d, body %s", w.Code, w.Body)
	}
	var child models.Category
	json.NewDecoder(w.Body).Decode(&child)
	if child.Level != 1 {
		t.Errorf("child level = %d, want 1", child.Level)
	}

	// Rename the root.
	w = putJSON(t, env.Admin.CategoryUpdate, "/api/admin/categories/x",
		fmt.Sprint(root.ID), `{"name":"crud-test-renamed"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("rename: status %d, body %s", w.Code, w.Body)
	}

	// Moving the root under its own child is a cycle.
	w = putJSON(t, env.Admin.CategoryUpdate, "/api/admin/categories/x",
		fmt.Sprint(root.ID), fmt.Sprintf(`{"parent_id":%d}`, child.ID))
	if w.Code != http.StatusConflict {
		t.Errorf("cycle move: status %d, want 409", w.Code)
	}

	// Deleting a category that still has a child is refused.
	w = httptest.NewRecorder()
	r := httptest.NewRequest("DELETE", "/api/admin/categories/x", nil)
	env.Admin.CategoryDelete(w, withChiURLParam(r, "id", fmt.Sprint(root.ID)))
	if w.Code != http.StatusConflict {
		t.Errorf("delete non-empty: status %d, want 409", w.Code)
	}

	// Path of the child is root → child.
	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "/api/admin/categories/x/path", nil)
	env.Admin.CategoryPath(w, withChiURLParam(r, "id", fmt.Sprint(child.ID)))
	if w.Code != http.StatusOK {
		t.Fatalf("path: status %d", w.Code)
	}
	var pathResp map[string][]int64
	json.NewDecoder(w.Body).Decode(&pathResp)
	if got := pathResp["path"]; len(got) != 2 || got[0] != root.ID || got[1] != child.ID {
		t.Errorf("path = %v, want [%d %d]", got, root.ID, child.ID)
	}

	// Delete bottom-up.
	for _, id := range []int64{child.ID, root.ID} {
		w = httptest.NewRecorder()
		r = httptest.NewRequest("DELETE", "/api/admin/categories/x", nil)
		env.Admin.CategoryDelete(w, withChiURLParam(r, "id", fmt.Sprint(id)))
		if w.Code != http.StatusNoContent {
			t.Fatalf("delete %d: status %d, body %s", id, w.Code, w.Body)
		}
	}
}

func TestRepositoryCRUDFlow(t *testing.T) {
	env := newTestEnv(t)
	catName := "crud-repo-cat"
	sourceURL := "https://github.com/crud-test/widget"
	t.Cleanup(func() {
		cleanRepositories(t, env.DB, sourceURL)
		cleanCategories(t, env.DB, catName)
	})

	cat, err := env.Categories.Create(catName, nil)
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	// Create with auto_summary: stored with the placeholder, flagged
	// processing, and handed to the pipeline.
	w := postJSON(t, env.Admin.RepositoryCreate, "/api/admin/repositories",
		fmt.Sprintf(`{"name":"crud widget","source_url":"%s","category_id":%d,"description":"","auto_summary":true}`, sourceURL, cat.ID))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body)
	}
	var repo models.Repository
	json.NewDecoder(w.Body).Decode(&repo)
	if !repo.Processing {
		t.Error("auto_summary create should set processing")
	}
	if repo.Description != repo.SourceURL {
		t.Errorf("placeholder description = %q, want the source URL", repo.Description)
	}
	env.Enricher.mu.Lock()
	enqueued := append([]int64(nil), env.Enricher.enqueued...)
	env.Enricher.mu.Unlock()
	if len(enqueued) != 1 || enqueued[0] != repo.ID {
		t.Errorf("enqueued = %v, want [%d]", enqueued, repo.ID)
	}

	// Duplicate source URL is a conflict.
	w = postJSON(t, env.Admin.RepositoryCreate, "/api/admin/repositories",
		fmt.Sprintf(`{"name":"dup","source_url":"%s","category_id":%d,"description":"","auto_summary":false}`, sourceURL, cat.ID))
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create: status %d, want 409", w.Code)
	}

	// Partial update while processing is allowed.
	w = putJSON(t, env.Admin.RepositoryUpdate, "/api/admin/repositories/x",
		fmt.Sprint(repo.ID), `{"description":"hand-written"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", w.Code, w.Body)
	}
	var updated models.Repository
	json.NewDecoder(w.Body).Decode(&updated)
	if updated.Description != "hand-written" {
		t.Errorf("description = %q", updated.Description)
	}
	if updated.Name != "crud widget" {
		t.Errorf("untouched field changed: %q", updated.Name)
	}

	// Re-trigger goes through the enrichment service.
	w = httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/admin/repositories/x/enrich", nil)
	env.Admin.RepositoryEnrich(w, withChiURLParam(r, "id", fmt.Sprint(repo.ID)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("enrich: status %d, body %s", w.Code, w.Body)
	}

	// A conflicting re-trigger maps to 409.
	env.Enricher.err = &store.ConflictError{Reason: "enrichment already in progress"}
	w = httptest.NewRecorder()
	r = httptest.NewRequest("POST", "/api/admin/repositories/x/enrich", nil)
	env.Admin.RepositoryEnrich(w, withChiURLParam(r, "id", fmt.Sprint(repo.ID)))
	if w.Code != http.StatusConflict {
		t.Errorf("conflicting enrich: status %d, want 409", w.Code)
	}
	env.Enricher.err = nil

	// Admin list sees the entry with its category name.
	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", fmt.Sprintf("/api/admin/repositories?category_id=%d&q=crud", cat.ID), nil)
	env.Admin.RepositoriesList(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var page catalog.Page
	json.NewDecoder(w.Body).Decode(&page)
	if page.PageSize != catalog.DefaultAdminPageSize {
		t.Errorf("page size = %d, want %d", page.PageSize, catalog.DefaultAdminPageSize)
	}
	if len(page.Items) != 1 || page.Items[0].CategoryName != catName {
		t.Errorf("unexpected page: %+v", page.Items)
	}

	// Delete.
	w = httptest.NewRecorder()
	r = httptest.NewRequest("DELETE", "/api/admin/repositories/x", nil)
	env.Admin.RepositoryDelete(w, withChiURLParam(r, "id", fmt.Sprint(repo.ID)))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", w.Code)
	}

	// Deleting again is a 404.
	w = httptest.NewRecorder()
	r = httptest.NewRequest("DELETE", "/api/admin/repositories/x", nil)
	env.Admin.RepositoryDelete(w, withChiURLParam(r, "id", fmt.Sprint(repo.ID)))
	if w.Code != http.StatusNotFound {
		t.Errorf("double delete: status %d, want 404", w.Code)
	}
}

func TestRepositoryPreviewHandler(t *testing.T) {
	env := newTestEnv(t)

	w := postJSON(t, env.Admin.RepositoryPreview, "/api/admin/repositories/preview-summary",
		`{"source_url":"https://github.com/acme/widget"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: status %d, body %s", w.Code, w.Body)
	}
	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["summary"] != "mock summary" {
		t.Errorf("summary = %q", resp["summary"])
	}
}

func TestSettingsBatchUpdate(t *testing.T) {
	env := newTestEnv(t)
	t.Cleanup(func() {
		env.DB.Exec("DELETE FROM settings WHERE key IN ('handler_test_a', 'handler_test_b')")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest("PUT", "/api/admin/settings",
		strings.NewReader(`{"handler_test_a":"1","handler_test_b":"2"}`))
	env.Admin.SettingsUpdate(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("update: status %d, body %s", w.Code, w.Body)
	}

	got, err := env.Settings.Get("handler_test_a", "")
	if err != nil || got != "1" {
		t.Errorf("setting a = %q, err %v", got, err)
	}

	// Empty batch is rejected.
	w = httptest.NewRecorder()
	r = httptest.NewRequest("PUT", "/api/admin/settings", strings.NewReader(`{}`))
	env.Admin.SettingsUpdate(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch: status %d, want 400", w.Code)
	}
}

func TestEnrichmentLogEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/admin/enrichment/log?limit=5", nil)
	env.Admin.EnrichmentLog(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("log: status %d, body %s", w.Code, w.Body)
	}
	var entries []store.EnrichLogEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) > 5 {
		t.Errorf("limit not applied: %d entries", len(entries))
	}
}
