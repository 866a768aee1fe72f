// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package ghurl parses GitHub repository URLs into their canonical
// owner/name identity. The canonical form is what the catalog stores and
// what the duplicate check runs against.
package ghurl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ownerPattern follows GitHub account naming: alphanumeric and single
	// hyphens, no leading/trailing hyphen.
	ownerPattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
	// repoPattern follows GitHub repository naming.
	repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// Ref is the parsed identity of one GitHub repository.
type Ref struct {
	Owner string
	Name  string
}

// Canonical returns the canonical source URL for the reference.
func (r Ref) Canonical() string {
	return "https://github.com/" + r.Owner + "/" + r.Name
}

// Parse resolves a raw GitHub URL into its canonical owner/name reference.
// Accepted inputs: http(s) URLs on github.com (www. allowed), with an
// optional trailing slash or ".git" suffix, and scheme-less "github.com/..."
// shorthand. Anything that is not exactly an owner/repo path is rejected.
func Parse(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("source URL is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Ref{}, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host != "github.com" {
		return Ref{}, fmt.Errorf("not a github.com URL")
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return Ref{}, fmt.Errorf("URL path must be owner/repo")
	}

	owner := segments[0]
	name := strings.TrimSuffix(segments[1], ".git")

	if !ownerPattern.MatchString(owner) {
		return Ref{}, fmt.Errorf("invalid repository owner %q", owner)
	}
	if name == "" || !repoPattern.MatchString(name) {
		return Ref{}, fmt.Errorf("invalid repository name %q", segments[1])
	}

	return Ref{Owner: owner, Name: name}, nil
}
