// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package enrich runs the asynchronous metadata pipeline for catalog
// entries: fetch the repository page through a readability service,
// summarize it with the active AI provider, pick up the upstream update
// timestamp, and persist the result.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// maxReaderContent caps how much fetched page text is fed into the
// summarizer prompt. Readability output for a large README can run to
// hundreds of kilobytes; the summary only needs the head of it.
const maxReaderContent = 20000

// ReaderClient fetches a repository page as markdown through a
// Jina-Reader-style readability service: GET {base}/{url}.
type ReaderClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewReaderClient creates a reader client. The API key is optional; when
// set it is sent as a Bearer token.
func NewReaderClient(baseURL, apiKey string) *ReaderClient {
	return &ReaderClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch retrieves the readable content of sourceURL, truncated to
// maxReaderContent bytes on a rune boundary.
func (c *ReaderClient) Fetch(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("reader request: %w", err)
	}
	req.Header.Set("X-Return-Format", "markdown")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reader fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reader fetch: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReaderContent+4))
	if err != nil {
		return "", fmt.Errorf("reader read: %w", err)
	}
	return truncateContent(string(body), maxReaderContent), nil
}

// fallbackContent is used when the reader is unreachable or refuses the
// page: the summarizer still gets something to work from.
func fallbackContent(sourceURL string) string {
	return "GitHub repository: " + sourceURL
}

func truncateContent(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	// Back off to a rune boundary so the prompt never ends mid-character.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
