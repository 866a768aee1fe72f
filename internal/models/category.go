// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import "time"

// Category is a node in the self-referential classification hierarchy.
// The parent relation forms a forest: no cycles, no self-parent. Level is
// always parent.Level+1, or 0 for roots, and is recomputed on re-parenting.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`

	// Virtual fields populated by store methods.
	Children   []Category `json:"children,omitempty"`
	RepoCount  int        `json:"own_repo_count"`
	ChildCount int        `json:"child_count"`
}
