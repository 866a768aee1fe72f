// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"repodex/internal/models"
	"repodex/internal/store"
)

// ---------- Fakes ----------

func ptr(v int64) *int64 { return &v }

type fakeCategories struct {
	flat      []models.Category
	tree      []models.Category
	public    []models.Category
	publicHit int
	path      []int64
}

func (f *fakeCategories) Flat() ([]models.Category, error) { return f.flat, nil }
func (f *fakeCategories) Tree(maxDepth int) ([]models.Category, error) {
	return f.tree, nil
}
func (f *fakeCategories) PublicTree() ([]models.Category, error) {
	f.publicHit++
	return f.public, nil
}
func (f *fakeCategories) PathTo(id int64) ([]int64, error) { return f.path, nil }

type fakeRepos struct {
	page       *store.RepositoryPage
	lastFilter store.RepositoryFilter
	byID       map[int64]*models.Repository
}

func (f *fakeRepos) List(filter store.RepositoryFilter) (*store.RepositoryPage, error) {
	f.lastFilter = filter
	return f.page, nil
}

func (f *fakeRepos) FindByID(id int64) (*models.Repository, error) {
	return f.byID[id], nil
}

type fakeSettings map[string]string

func (f fakeSettings) Get(key, fallback string) (string, error) {
	if v, ok := f[key]; ok && v != "" {
		return v, nil
	}
	return fallback, nil
}

// fakeTreeCache is an in-memory stand-in for the Valkey tree cache.
type fakeTreeCache struct {
	payload []byte
	sets    int
}

func (f *fakeTreeCache) Get(ctx context.Context) ([]byte, bool) {
	return f.payload, f.payload != nil
}
func (f *fakeTreeCache) Set(ctx context.Context, payload []byte) {
	f.payload = payload
	f.sets++
}
func (f *fakeTreeCache) Invalidate(ctx context.Context) { f.payload = nil }

func testRepository() models.Repository {
	added := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return models.Repository{
		ID:           1,
		Name:         "widget",
		SourceURL:    "https://github.com/acme/widget",
		Owner:        "acme",
		RepoName:     "widget",
		Description:  "A **fine** widget.",
		CategoryID:   2,
		CategoryName: "Key-Value",
		AddedAt:      added,
	}
}

func testCatalog() (*Catalog, *fakeCategories, *fakeRepos, *fakeTreeCache, fakeSettings) {
	cats := &fakeCategories{
		flat: []models.Category{
			{ID: 1, Name: "Databases", Level: 0, RepoCount: 0, ChildCount: 1},
			{ID: 2, Name: "Key-Value", ParentID: ptr(1), Level: 1, RepoCount: 1},
		},
		public: []models.Category{
			{ID: 1, Name: "Databases", Level: 0, Children: []models.Category{
				{ID: 2, Name: "Key-Value", ParentID: ptr(1), Level: 1, RepoCount: 1},
			}},
		},
	}
	repo := testRepository()
	repos := &fakeRepos{
		page: &store.RepositoryPage{
			Items: []models.Repository{repo}, Total: 1, Page: 1, PageSize: 50,
		},
		byID: map[int64]*models.Repository{1: &repo},
	}
	cache := &fakeTreeCache{}
	settings := fakeSettings{}
	return New(cats, repos, settings, cache, ""), cats, repos, cache, settings
}

// ---------- Page-size policy ----------

func TestClampPageSize(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		admin bool
		want  int
	}{
		{"public default", 0, false, 50},
		{"public negative", -3, false, 50},
		{"public in range", 25, false, 25},
		{"public above max", 500, false, 100},
		{"public at max", 100, false, 100},
		{"admin default", 0, true, 20},
		{"admin allowed", 50, true, 50},
		{"admin disallowed", 33, true, 20},
		{"admin above max", 500, true, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampPageSize(tt.size, tt.admin); got != tt.want {
				t.Errorf("clampPageSize(%d, admin=%v) = %d, want %d", tt.size, tt.admin, got, tt.want)
			}
		})
	}
}

// ---------- Trees ----------

func TestPublicTree_CachesSerializedPayload(t *testing.T) {
	c, cats, _, cache, _ := testCatalog()
	ctx := context.Background()

	payload, err := c.PublicTree(ctx)
	if err != nil {
		t.Fatalf("PublicTree failed: %v", err)
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1", cache.sets)
	}

	// Second read must come from the cache, not the store.
	if _, err := c.PublicTree(ctx); err != nil {
		t.Fatalf("PublicTree (cached) failed: %v", err)
	}
	if cats.publicHit != 1 {
		t.Errorf("store hits = %d, want 1", cats.publicHit)
	}

	var nodes []TreeNode
	if err := json.Unmarshal(payload, &nodes); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "Databases" {
		t.Fatalf("unexpected forest: %+v", nodes)
	}
	if len(nodes[0].Children) != 1 || nodes[0].Children[0].OwnRepoCount != 1 {
		t.Errorf("unexpected children: %+v", nodes[0].Children)
	}
}

func TestInvalidateTree_ForcesRebuild(t *testing.T) {
	c, cats, _, _, _ := testCatalog()
	ctx := context.Background()

	if _, err := c.PublicTree(ctx); err != nil {
		t.Fatal(err)
	}
	c.InvalidateTree(ctx)
	if _, err := c.PublicTree(ctx); err != nil {
		t.Fatal(err)
	}
	if cats.publicHit != 2 {
		t.Errorf("store hits = %d, want 2 after invalidation", cats.publicHit)
	}
}

func TestAdminTree_CarriesChildCount(t *testing.T) {
	c, cats, _, _, _ := testCatalog()
	cats.tree = []models.Category{
		{ID: 1, Name: "Databases", ChildCount: 1, Children: []models.Category{
			{ID: 2, Name: "Key-Value", ParentID: ptr(1), Level: 1, RepoCount: 1},
		}},
	}

	nodes, err := c.AdminTree()
	if err != nil {
		t.Fatalf("AdminTree failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ChildCount != 1 {
		t.Errorf("unexpected nodes: %+v", nodes)
	}
}

func TestFlat(t *testing.T) {
	c, _, _, _, _ := testCatalog()
	nodes, err := c.Flat()
	if err != nil {
		t.Fatalf("Flat failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("len = %d, want 2", len(nodes))
	}
	if nodes[1].OwnRepoCount != 1 || nodes[1].ParentID == nil {
		t.Errorf("unexpected node: %+v", nodes[1])
	}
}

// ---------- Entries ----------

func TestList_BuildsEntryDTO(t *testing.T) {
	c, _, repos, _, settings := testCatalog()
	settings["card_base_url"] = "https://cards.example.com"

	page, err := c.List(ListParams{Page: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if repos.lastFilter.PageSize != 50 {
		t.Errorf("page size passed to store = %d, want 50", repos.lastFilter.PageSize)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(page.Items))
	}

	e := page.Items[0]
	if !strings.Contains(e.DescriptionHTML, "<strong>fine</strong>") {
		t.Errorf("description_html = %q, want rendered markdown", e.DescriptionHTML)
	}
	if e.CategoryPath != "Databases / Key-Value" {
		t.Errorf("category_path = %q", e.CategoryPath)
	}
	if e.CardURL != "https://cards.example.com/acme/widget" {
		t.Errorf("card_url = %q", e.CardURL)
	}
	if e.CardImageURL != "https://cards.example.com/acme/widget?image=1" {
		t.Errorf("card_image_url = %q", e.CardImageURL)
	}
}

func TestList_EmptyCardBaseYieldsEmptyURLs(t *testing.T) {
	c, _, _, _, _ := testCatalog()

	page, err := c.List(ListParams{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Items[0].CardURL != "" || page.Items[0].CardImageURL != "" {
		t.Errorf("card URLs should be empty without a base: %+v", page.Items[0])
	}
}

func TestList_CardBaseFallsBackToEnvironment(t *testing.T) {
	cats := &fakeCategories{flat: []models.Category{{ID: 2, Name: "Key-Value"}}}
	repo := testRepository()
	repos := &fakeRepos{page: &store.RepositoryPage{Items: []models.Repository{repo}, Total: 1, Page: 1, PageSize: 50}}
	c := New(cats, repos, fakeSettings{}, &fakeTreeCache{}, "https://fallback.example.com")

	page, err := c.List(ListParams{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if page.Items[0].CardURL != "https://fallback.example.com/acme/widget" {
		t.Errorf("card_url = %q", page.Items[0].CardURL)
	}
}

func TestEntry(t *testing.T) {
	c, _, _, _, _ := testCatalog()

	e, err := c.Entry(1)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	if e.Name != "widget" || e.CategoryPath != "Databases / Key-Value" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestEntry_NotFound(t *testing.T) {
	c, _, _, _, _ := testCatalog()

	if _, err := c.Entry(404); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
