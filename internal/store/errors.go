// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import "errors"

// ErrNotFound marks lookups whose referenced id does not exist. It is
// wrapped with context, so callers must test it with errors.Is.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input: an empty or overlong name, a
// source URL that does not match the canonical owner/repo shape.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ConflictError reports a uniqueness violation, currently only a duplicate
// canonical source URL.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// CycleError reports a re-parent operation that would make a category its
// own ancestor (including self-parenting).
type CycleError struct {
	Reason string
}

func (e *CycleError) Error() string { return e.Reason }

// NotEmptyError reports a category delete blocked by existing children or
// owned repository entries. Deletion is never recursive.
type NotEmptyError struct {
	Reason string
}

func (e *NotEmptyError) Error() string { return e.Reason }
