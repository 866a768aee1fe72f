// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package catalog is the read model over the category and repository
// stores: it builds the wire DTOs, resolves card URLs, renders Markdown
// descriptions, and fronts the public tree with the Valkey cache.
// Repository lists are never cached so the admin UI can poll processing
// state without staleness.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"repodex/internal/gitcard"
	"repodex/internal/markdown"
	"repodex/internal/models"
	"repodex/internal/store"
)

// Public page size bounds; the admin list uses the fixed set below.
const (
	DefaultPublicPageSize = 50
	MaxPublicPageSize     = 100
	DefaultAdminPageSize  = 20
)

// adminPageSizes are the only sizes the admin list accepts.
var adminPageSizes = map[int]bool{10: true, 20: true, 50: true, 100: true}

// CategorySource is the slice of the category store the catalog reads.
type CategorySource interface {
	Flat() ([]models.Category, error)
	Tree(maxDepth int) ([]models.Category, error)
	PublicTree() ([]models.Category, error)
	PathTo(id int64) ([]int64, error)
}

// RepositorySource is the slice of the repository store the catalog reads.
type RepositorySource interface {
	List(filter store.RepositoryFilter) (*store.RepositoryPage, error)
	FindByID(id int64) (*models.Repository, error)
}

// SettingSource provides runtime configuration values.
type SettingSource interface {
	Get(key, fallback string) (string, error)
}

// TreeCacher caches the serialized public tree.
type TreeCacher interface {
	Get(ctx context.Context) ([]byte, bool)
	Set(ctx context.Context, payload []byte)
	Invalidate(ctx context.Context)
}

// TreeNode is the wire shape of one category node.
type TreeNode struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	ParentID     *int64     `json:"parent_id"`
	Level        int        `json:"level"`
	OwnRepoCount int        `json:"own_repo_count"`
	ChildCount   int        `json:"child_count,omitempty"`
	Children     []TreeNode `json:"children,omitempty"`
}

// FlatNode is the wire shape of one category in the flat admin listing.
type FlatNode struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ParentID     *int64 `json:"parent_id"`
	Level        int    `json:"level"`
	OwnRepoCount int    `json:"own_repo_count"`
	ChildCount   int    `json:"child_count"`
}

// Entry is the wire shape of one catalog entry.
type Entry struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	SourceURL       string     `json:"source_url"`
	Owner           string     `json:"owner"`
	RepoName        string     `json:"repo_name"`
	Description     string     `json:"description"`
	DescriptionHTML string     `json:"description_html"`
	CategoryID      int64      `json:"category_id"`
	CategoryName    string     `json:"category_name"`
	CategoryPath    string     `json:"category_path"`
	Processing      bool       `json:"processing"`
	CardURL         string     `json:"card_url"`
	CardImageURL    string     `json:"card_image_url"`
	RepoUpdatedAt   *time.Time `json:"repo_updated_at"`
	AddedAt         time.Time  `json:"added_at"`
}

// Page is one page of entries.
type Page struct {
	Items    []Entry `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	HasMore  bool    `json:"has_more"`
}

// ListParams selects and paginates entries. Admin switches to the admin
// page-size policy; the filters themselves behave the same either way.
type ListParams struct {
	CategoryID *int64
	Query      string
	Page       int
	PageSize   int
	Admin      bool
}

// Catalog composes the stores into the read model.
type Catalog struct {
	categories CategorySource
	repos      RepositorySource
	settings   SettingSource
	tree       TreeCacher
	cardBase   string // CARD_BASE_URL fallback when the setting is empty
}

// New creates a Catalog. cardBase is the environment fallback for the
// card_base_url setting.
func New(categories CategorySource, repos RepositorySource, settings SettingSource, tree TreeCacher, cardBase string) *Catalog {
	return &Catalog{
		categories: categories,
		repos:      repos,
		settings:   settings,
		tree:       tree,
		cardBase:   cardBase,
	}
}

// PublicTree returns the serialized public forest, served from the cache
// when possible.
func (c *Catalog) PublicTree(ctx context.Context) (json.RawMessage, error) {
	if payload, ok := c.tree.Get(ctx); ok {
		return payload, nil
	}

	cats, err := c.categories.PublicTree()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(toTreeNodes(cats, false))
	if err != nil {
		return nil, err
	}
	c.tree.Set(ctx, payload)
	return payload, nil
}

// PublicTreeNodes returns the public forest in structured form (the
// sitemap walks it). Served through the same cache as PublicTree.
func (c *Catalog) PublicTreeNodes(ctx context.Context) ([]TreeNode, error) {
	payload, err := c.PublicTree(ctx)
	if err != nil {
		return nil, err
	}
	var nodes []TreeNode
	if err := json.Unmarshal(payload, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// InvalidateTree drops the cached public tree. Called after every category
// or repository mutation; the next public read rebuilds it.
func (c *Catalog) InvalidateTree(ctx context.Context) {
	c.tree.Invalidate(ctx)
}

// AdminTree returns the full unfiltered forest, every node carrying its
// own entry count and direct-child count.
func (c *Catalog) AdminTree() ([]TreeNode, error) {
	cats, err := c.categories.Tree(0)
	if err != nil {
		return nil, err
	}
	return toTreeNodes(cats, true), nil
}

// Flat returns every category as a flat list.
func (c *Catalog) Flat() ([]FlatNode, error) {
	cats, err := c.categories.Flat()
	if err != nil {
		return nil, err
	}
	nodes := make([]FlatNode, 0, len(cats))
	for _, cat := range cats {
		nodes = append(nodes, FlatNode{
			ID:           cat.ID,
			Name:         cat.Name,
			ParentID:     cat.ParentID,
			Level:        cat.Level,
			OwnRepoCount: cat.RepoCount,
			ChildCount:   cat.ChildCount,
		})
	}
	return nodes, nil
}

// Path returns the ancestor id chain for a category, root first, ending
// with the category itself.
func (c *Catalog) Path(id int64) ([]int64, error) {
	return c.categories.PathTo(id)
}

// List returns one page of entries with the list-level filters applied.
func (c *Catalog) List(params ListParams) (*Page, error) {
	page, err := c.repos.List(store.RepositoryFilter{
		CategoryID: params.CategoryID,
		Query:      params.Query,
		Page:       params.Page,
		PageSize:   clampPageSize(params.PageSize, params.Admin),
	})
	if err != nil {
		return nil, err
	}

	paths, err := c.pathIndex()
	if err != nil {
		return nil, err
	}
	base := c.resolveCardBase()

	items := make([]Entry, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, c.toEntry(&page.Items[i], paths, base))
	}
	return &Page{
		Items:    items,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
		HasMore:  page.HasMore,
	}, nil
}

// Entry returns a single entry by id.
func (c *Catalog) Entry(id int64) (*Entry, error) {
	repo, err := c.repos.FindByID(id)
	if err != nil {
		return nil, err
	}
	if repo == nil {
		return nil, fmt.Errorf("repository %d: %w", id, store.ErrNotFound)
	}
	paths, err := c.pathIndex()
	if err != nil {
		return nil, err
	}
	entry := c.toEntry(repo, paths, c.resolveCardBase())
	return &entry, nil
}

// clampPageSize applies the page-size policy. The public list accepts any
// size in [1, 100] and defaults to 50; the admin list only accepts a fixed
// set of sizes and falls back to its default for anything else.
func clampPageSize(size int, admin bool) int {
	if admin {
		if adminPageSizes[size] {
			return size
		}
		return DefaultAdminPageSize
	}
	if size < 1 {
		return DefaultPublicPageSize
	}
	if size > MaxPublicPageSize {
		return MaxPublicPageSize
	}
	return size
}

func (c *Catalog) toEntry(repo *models.Repository, paths map[int64]string, cardBase string) Entry {
	descHTML, err := markdown.ToHTML(repo.Description)
	if err != nil {
		slog.Warn("description render failed", "repository_id", repo.ID, "error", err)
		descHTML = ""
	}
	return Entry{
		ID:              repo.ID,
		Name:            repo.Name,
		SourceURL:       repo.SourceURL,
		Owner:           repo.Owner,
		RepoName:        repo.RepoName,
		Description:     repo.Description,
		DescriptionHTML: descHTML,
		CategoryID:      repo.CategoryID,
		CategoryName:    repo.CategoryName,
		CategoryPath:    paths[repo.CategoryID],
		Processing:      repo.Processing,
		CardURL:         gitcard.URL(cardBase, repo.Owner, repo.RepoName),
		CardImageURL:    gitcard.ImageURL(cardBase, repo.Owner, repo.RepoName),
		RepoUpdatedAt:   repo.RepoUpdatedAt,
		AddedAt:         repo.AddedAt,
	}
}

// pathIndex maps every category id to its slash-joined ancestor name path,
// e.g. "Databases / Key-Value". Built once per read from the flat list.
func (c *Catalog) pathIndex() (map[int64]string, error) {
	flat, err := c.categories.Flat()
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Category, len(flat))
	for _, cat := range flat {
		byID[cat.ID] = cat
	}

	paths := make(map[int64]string, len(flat))
	for _, cat := range flat {
		var names []string
		for cur, ok := cat, true; ok; cur, ok = parentOf(byID, cur) {
			names = append(names, cur.Name)
			if len(names) > len(flat) {
				break // chain longer than the table means a corrupt parent link
			}
		}
		// names is leaf-first; reverse into root-first.
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
		paths[cat.ID] = strings.Join(names, " / ")
	}
	return paths, nil
}

func parentOf(byID map[int64]models.Category, c models.Category) (models.Category, bool) {
	if c.ParentID == nil {
		return models.Category{}, false
	}
	p, ok := byID[*c.ParentID]
	return p, ok
}

// resolveCardBase prefers the card_base_url setting, falling back to the
// CARD_BASE_URL environment value. Empty means no card service; the card
// URLs come back empty.
func (c *Catalog) resolveCardBase() string {
	base, err := c.settings.Get(models.SettingCardBaseURL, c.cardBase)
	if err != nil || base == "" {
		return c.cardBase
	}
	return base
}

// toTreeNodes converts store categories into wire nodes. withChildCount is
// the admin view; the public tree omits the field.
func toTreeNodes(cats []models.Category, withChildCount bool) []TreeNode {
	nodes := make([]TreeNode, 0, len(cats))
	for _, cat := range cats {
		n := TreeNode{
			ID:           cat.ID,
			Name:         cat.Name,
			ParentID:     cat.ParentID,
			Level:        cat.Level,
			OwnRepoCount: cat.RepoCount,
			Children:     toTreeNodes(cat.Children, withChildCount),
		}
		if withChildCount {
			n.ChildCount = cat.ChildCount
		}
		nodes = append(nodes, n)
	}
	return nodes
}
