// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"repodex/internal/catalog"
)

// Public groups the unauthenticated read-only handlers. Everything here is
// served from the catalog read model; the tree comes through the Valkey
// cache, repository lists always hit the database.
type Public struct {
	catalog *catalog.Catalog
	siteURL string
}

// NewPublic creates the public handler group. siteURL is the externally
// visible base URL used by the sitemap; empty falls back to the request
// host.
func NewPublic(cat *catalog.Catalog, siteURL string) *Public {
	return &Public{catalog: cat, siteURL: strings.TrimRight(siteURL, "/")}
}

// Health is the liveness endpoint.
func (p *Public) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CategoryTree serves the public category forest: empty branches pruned,
// truncated to the public depth.
func (p *Public) CategoryTree(w http.ResponseWriter, r *http.Request) {
	payload, err := p.catalog.PublicTree(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// Repositories serves the paginated public entry list. Filters: category_id,
// q, page, page_size.
func (p *Public) Repositories(w http.ResponseWriter, r *http.Request) {
	page, err := p.catalog.List(catalog.ListParams{
		CategoryID: queryInt64Ptr(r, "category_id"),
		Query:      r.URL.Query().Get("q"),
		Page:       queryInt(r, "page"),
		PageSize:   queryInt(r, "page_size"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Repository serves a single entry.
func (p *Public) Repository(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	entry, err := p.catalog.Entry(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// sitemapURLSet is the <urlset> document of the XML sitemap protocol.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Sitemap serves an XML sitemap: the home page plus one URL per category
// visible in the public tree (i.e. whose subtree has entries).
func (p *Public) Sitemap(w http.ResponseWriter, r *http.Request) {
	nodes, err := p.catalog.PublicTreeNodes(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	base := p.siteURL
	if base == "" {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		base = scheme + "://" + r.Host
	}

	set := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs: []sitemapURL{
			{Loc: base + "/", LastMod: time.Now().Format("2006-01-02")},
		},
	}
	var walk func(nodes []catalog.TreeNode)
	walk = func(nodes []catalog.TreeNode) {
		for _, n := range nodes {
			set.URLs = append(set.URLs, sitemapURL{
				Loc: fmt.Sprintf("%s/?category_id=%d", base, n.ID),
			})
			walk(n.Children)
		}
	}
	walk(nodes)

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(set); err != nil {
		// Headers already went out; all we can do is note it.
		slog.Error("sitemap encode failed", "error", err)
	}
}
