// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"

	"repodex/internal/models"
)

// PublicTreeDepth is the number of levels the public tree renders.
// Deeper categories still exist and still count toward pruning, but their
// nodes are omitted from the public payload.
const PublicTreeDepth = 3

const maxCategoryNameLen = 100

// CategoryStore manages the category hierarchy in the database.
//
// All traversal (tree build, cycle check, level recompute, path walk) runs
// over the flat id/parent_id rows rather than live object pointers, so the
// hierarchy can never form a cyclic ownership graph in memory.
type CategoryStore struct {
	db *sql.DB
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB) *CategoryStore {
	return &CategoryStore{db: db}
}

const categoryColumns = `id, name, parent_id, level, created_at`

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(&c.ID, &c.Name, &c.ParentID, &c.Level, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Flat returns every category in insertion order with its own repository
// count (entries directly assigned, never a subtree sum) and direct child
// count. This is the arena every tree query is built from.
func (s *CategoryStore) Flat() ([]models.Category, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.name, c.parent_id, c.level, c.created_at,
		       COUNT(r.id) AS repo_count,
		       (SELECT COUNT(*) FROM categories ch WHERE ch.parent_id = c.id) AS child_count
		FROM categories c
		LEFT JOIN repositories r ON r.category_id = c.id
		GROUP BY c.id
		ORDER BY c.created_at, c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		var c models.Category
		err := rows.Scan(
			&c.ID, &c.Name, &c.ParentID, &c.Level, &c.CreatedAt,
			&c.RepoCount, &c.ChildCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// Tree returns categories as a nested forest. maxDepth limits how many
// levels are included (nodes beyond it are omitted, not merely hidden);
// maxDepth <= 0 means unlimited. Siblings keep insertion order.
func (s *CategoryStore) Tree(maxDepth int) ([]models.Category, error) {
	flat, err := s.Flat()
	if err != nil {
		return nil, err
	}
	return truncateTree(buildTree(flat, nil), maxDepth), nil
}

// PublicTree returns the forest for public navigation: branches whose whole
// subtree owns zero repository entries are pruned, then the result is
// truncated to PublicTreeDepth levels. Pruning runs before truncation so a
// node survives when its only entries sit below the rendered depth.
func (s *CategoryStore) PublicTree() ([]models.Category, error) {
	flat, err := s.Flat()
	if err != nil {
		return nil, err
	}
	return truncateTree(pruneEmpty(buildTree(flat, nil)), PublicTreeDepth), nil
}

// buildTree recursively assembles a forest from the flat arena. Child slices
// follow the arena's ordering, so siblings stay in insertion order.
func buildTree(flat []models.Category, parentID *int64) []models.Category {
	var result []models.Category
	for _, c := range flat {
		if idPtrEqual(c.ParentID, parentID) {
			c.Children = buildTree(flat, &c.ID)
			result = append(result, c)
		}
	}
	return result
}

// pruneEmpty removes, bottom-up, every node whose entire subtree owns zero
// repository entries. A node survives iff it owns at least one entry or
// keeps at least one surviving child.
func pruneEmpty(nodes []models.Category) []models.Category {
	var result []models.Category
	for _, c := range nodes {
		c.Children = pruneEmpty(c.Children)
		if c.RepoCount > 0 || len(c.Children) > 0 {
			result = append(result, c)
		}
	}
	return result
}

// truncateTree drops children below maxDepth levels. maxDepth <= 0 leaves
// the forest untouched. ChildCount still reflects the full child set.
func truncateTree(nodes []models.Category, maxDepth int) []models.Category {
	if maxDepth <= 0 {
		return nodes
	}
	result := make([]models.Category, 0, len(nodes))
	for _, c := range nodes {
		if maxDepth == 1 {
			c.Children = nil
		} else {
			c.Children = truncateTree(c.Children, maxDepth-1)
		}
		result = append(result, c)
	}
	return result
}

// idPtrEqual compares two *int64 for equality (both nil or same value).
func idPtrEqual(a, b *int64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// descendantIDs walks the arena breadth-first from rootID and returns the
// set of all descendant ids (rootID itself excluded).
func descendantIDs(flat []models.Category, rootID int64) map[int64]bool {
	children := make(map[int64][]int64, len(flat))
	for _, c := range flat {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}

	seen := make(map[int64]bool)
	queue := children[rootID]
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, children[id]...)
	}
	return seen
}

// FindByID retrieves a category by ID. Returns nil if not found.
func (s *CategoryStore) FindByID(id int64) (*models.Category, error) {
	row := s.db.QueryRow(`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	return c, nil
}

// Create inserts a new category under the optional parent. The new node's
// level is parent.level+1, or 0 for a root.
func (s *CategoryStore) Create(name string, parentID *int64) (*models.Category, error) {
	name, err := normalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	level := 0
	if parentID != nil {
		parent, err := s.FindByID(*parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, fmt.Errorf("parent category %d: %w", *parentID, ErrNotFound)
		}
		level = parent.Level + 1
	}

	row := s.db.QueryRow(`
		INSERT INTO categories (name, parent_id, level)
		VALUES ($1, $2, $3)
		RETURNING `+categoryColumns,
		name, parentID, level,
	)
	result, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return result, nil
}

// Rename changes a category's name and nothing else.
func (s *CategoryStore) Rename(id int64, name string) (*models.Category, error) {
	name, err := normalizeCategoryName(name)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`
		UPDATE categories SET name = $1 WHERE id = $2
		RETURNING `+categoryColumns,
		name, id,
	)
	result, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("rename category: %w", err)
	}
	return result, nil
}

// Reparent moves a category under a new parent (nil for root) and recomputes
// the level of the node and every descendant breadth-first, all inside one
// transaction. Moving a node under itself or one of its own descendants
// fails with CycleError and leaves the tree unchanged. Re-parenting to the
// current parent is a permitted no-op.
func (s *CategoryStore) Reparent(id int64, newParentID *int64) (*models.Category, error) {
	flat, err := s.Flat()
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]models.Category, len(flat))
	for _, c := range flat {
		byID[c.ID] = c
	}

	node, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}

	newLevel := 0
	if newParentID != nil {
		if *newParentID == id {
			return nil, &CycleError{Reason: "category cannot be its own parent"}
		}
		parent, ok := byID[*newParentID]
		if !ok {
			return nil, fmt.Errorf("parent category %d: %w", *newParentID, ErrNotFound)
		}
		if descendantIDs(flat, id)[*newParentID] {
			return nil, &CycleError{Reason: "cannot move a category under its own descendant"}
		}
		newLevel = parent.Level + 1
	}

	// Recompute levels for the whole moved subtree from the arena.
	children := make(map[int64][]int64, len(flat))
	for _, c := range flat {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}

	type levelUpdate struct {
		id    int64
		level int
	}
	updates := []levelUpdate{{id: id, level: newLevel}}
	queue := []levelUpdate{{id: id, level: newLevel}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, childID := range children[cur.id] {
			u := levelUpdate{id: childID, level: cur.level + 1}
			updates = append(updates, u)
			queue = append(queue, u)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE categories SET parent_id = $1 WHERE id = $2`, newParentID, id); err != nil {
		return nil, fmt.Errorf("reparent category %d: %w", id, err)
	}

	stmt, err := tx.Prepare(`UPDATE categories SET level = $1 WHERE id = $2`)
	if err != nil {
		return nil, fmt.Errorf("prepare level update: %w", err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.Exec(u.level, u.id); err != nil {
			return nil, fmt.Errorf("update level for category %d: %w", u.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reparent: %w", err)
	}

	node.ParentID = newParentID
	node.Level = newLevel
	node.Children = nil
	return &node, nil
}

// Delete removes a category. It fails with NotEmptyError while the category
// still has direct children or directly-owned repository entries; deletion
// is never recursive.
func (s *CategoryStore) Delete(id int64) error {
	var childCount, repoCount int
	err := s.db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM categories WHERE parent_id = $1),
		       (SELECT COUNT(*) FROM repositories WHERE category_id = $1)
	`, id).Scan(&childCount, &repoCount)
	if err != nil {
		return fmt.Errorf("check category emptiness: %w", err)
	}
	if childCount > 0 {
		return &NotEmptyError{Reason: "category still has child categories"}
	}
	if repoCount > 0 {
		return &NotEmptyError{Reason: "category still has repository entries"}
	}

	res, err := s.db.Exec(`DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	return nil
}

// PathTo returns the root-to-node chain of category ids, used to pre-expand
// a tree view around a selection. The walk is bounded by the arena size so
// corrupt parent data cannot loop forever.
func (s *CategoryStore) PathTo(id int64) ([]int64, error) {
	rows, err := s.db.Query(`SELECT id, parent_id FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("load category arena: %w", err)
	}
	defer rows.Close()

	parents := make(map[int64]*int64)
	for rows.Next() {
		var cid int64
		var pid *int64
		if err := rows.Scan(&cid, &pid); err != nil {
			return nil, fmt.Errorf("scan category ref: %w", err)
		}
		parents[cid] = pid
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, ok := parents[id]; !ok {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}

	var path []int64
	cur := id
	for range parents {
		path = append(path, cur)
		pid := parents[cur]
		if pid == nil {
			break
		}
		cur = *pid
	}

	// Reverse into root-first order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// normalizeCategoryName trims and validates a category name.
func normalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Reason: "category name must not be empty"}
	}
	if utf8.RuneCountInString(name) > maxCategoryNameLen {
		return "", &ValidationError{Reason: fmt.Sprintf("category name exceeds %d characters", maxCategoryNameLen)}
	}
	return name, nil
}
