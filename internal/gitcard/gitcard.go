// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package gitcard derives display URLs for the external card-rendering
// service. The derivation is pure: base URL + "/" + owner + "/" + name,
// with an optional query flag for the image variant. No network calls.
package gitcard

import "strings"

// URL returns the card display URL for a repository, or "" when no base
// URL is configured (card rendering disabled).
func URL(base, owner, name string) string {
	if base == "" || owner == "" || name == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + owner + "/" + name
}

// ImageURL returns the card URL with the image-variant flag appended.
func ImageURL(base, owner, name string) string {
	u := URL(base, owner, name)
	if u == "" {
		return ""
	}
	return u + "?image=1"
}
