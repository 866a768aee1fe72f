// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// Repository is one cataloged external repository entry. Owner and RepoName
// are derived from the canonical source URL at creation time. While an
// enrichment run is pending or has failed, Description holds the placeholder
// value (the source URL itself).
type Repository struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	SourceURL     string     `json:"source_url"`
	Owner         string     `json:"owner"`
	RepoName      string     `json:"repo_name"`
	Description   string     `json:"description"`
	CategoryID    int64      `json:"category_id"`
	RepoUpdatedAt *time.Time `json:"repo_updated_at"`
	AddedAt       time.Time  `json:"added_at"`
	Processing    bool       `json:"processing"`

	// Virtual field populated by list queries.
	CategoryName string `json:"category_name,omitempty"`
}

// HasPlaceholderDescription reports whether the description is still the
// creation-time placeholder, i.e. enrichment has not produced a summary.
func (r *Repository) HasPlaceholderDescription() bool {
	return r.Description == r.SourceURL
}
