// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"repodex/internal/ghurl"
	"repodex/internal/models"
	"repodex/internal/store"
)

// runTimeout bounds one background run. It is detached from the request
// that created the entry; the admin UI polls for the result instead of
// waiting on it.
const runTimeout = 2 * time.Minute

// defaultSummaryPrompt is used when the summary_prompt setting is empty.
const defaultSummaryPrompt = "You are a technical documentation assistant. " +
	"Summarize the GitHub repository below in two or three plain-text sentences: " +
	"what it does, and who would use it. Do not use markdown formatting."

// RepositoryStore is the slice of the repository store the pipeline needs.
type RepositoryStore interface {
	BeginEnrichment(id int64) (bool, error)
	CompleteEnrichment(id int64, description string, repoUpdatedAt *time.Time) (bool, error)
	FailEnrichment(id int64) (bool, error)
}

// SettingSource provides runtime configuration values.
type SettingSource interface {
	Get(key, fallback string) (string, error)
}

// RunLogger records finished runs for the admin audit view.
type RunLogger interface {
	Log(runID uuid.UUID, repositoryID int64, sourceURL, status, detail string, duration time.Duration)
}

// Summarizer generates a description from a system and user prompt.
// Satisfied by ai.Registry.
type Summarizer interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type job struct {
	id        int64
	sourceURL string
}

// Enricher runs the metadata pipeline. One worker goroutine drains a
// buffered queue, so runs are serialized; an entry is only ever in one
// run at a time because the processing flag gates enqueueing.
type Enricher struct {
	repos    RepositoryStore
	settings SettingSource
	runLog   RunLogger
	ai       Summarizer
	reader   *ReaderClient
	github   *GitHubClient

	jobs chan job
	done chan struct{}
}

// NewEnricher creates the pipeline and starts its worker goroutine.
func NewEnricher(repos RepositoryStore, settings SettingSource, runLog RunLogger, summarizer Summarizer, reader *ReaderClient, github *GitHubClient, queueSize int) *Enricher {
	e := &Enricher{
		repos:    repos,
		settings: settings,
		runLog:   runLog,
		ai:       summarizer,
		reader:   reader,
		github:   github,
		jobs:     make(chan job, queueSize),
		done:     make(chan struct{}),
	}
	go e.worker()
	return e
}

// Enqueue hands an entry to the background worker. It never blocks: when
// the queue is full the run fails immediately, the processing flag is
// cleared, and the failure is recorded like any other.
func (e *Enricher) Enqueue(id int64, sourceURL string) {
	select {
	case e.jobs <- job{id: id, sourceURL: sourceURL}:
	default:
		runID := uuid.New()
		slog.Warn("enrichment queue full, failing run",
			"run_id", runID,
			"repository_id", id,
		)
		if _, err := e.repos.FailEnrichment(id); err != nil {
			slog.Error("failed to clear processing flag",
				"run_id", runID,
				"repository_id", id,
				"error", err,
			)
		}
		e.runLog.Log(runID, id, sourceURL, store.EnrichStatusFailed, "queue full", 0)
	}
}

// Trigger re-runs the pipeline for an existing entry. It acquires the
// processing flag first; a ConflictError means a run is already pending.
func (e *Enricher) Trigger(id int64, sourceURL string) error {
	acquired, err := e.repos.BeginEnrichment(id)
	if err != nil {
		return err
	}
	if !acquired {
		return &store.ConflictError{Reason: "enrichment already in progress"}
	}
	e.Enqueue(id, sourceURL)
	return nil
}

// Preview fetches and summarizes a repository synchronously under the
// caller's context. Nothing is persisted; this backs the editing UI's
// "preview summary" call.
func (e *Enricher) Preview(ctx context.Context, sourceURL string) (string, error) {
	ref, err := ghurl.Parse(sourceURL)
	if err != nil {
		return "", &store.ValidationError{Reason: err.Error()}
	}
	return e.summarize(ctx, ref.Canonical())
}

// Close stops accepting jobs and waits for the worker to drain the queue.
func (e *Enricher) Close() {
	close(e.jobs)
	<-e.done
}

func (e *Enricher) worker() {
	defer close(e.done)
	for j := range e.jobs {
		e.run(j)
	}
}

// run executes one enrichment. Any failure clears the processing flag and
// leaves the placeholder description in place; the entry stays usable.
func (e *Enricher) run(j job) {
	runID := uuid.New()
	start := time.Now()
	logger := slog.With("run_id", runID, "repository_id", j.id)

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	ref, err := ghurl.Parse(j.sourceURL)
	if err != nil {
		e.fail(logger, runID, j, start, fmt.Sprintf("invalid source url: %v", err))
		return
	}

	summary, err := e.summarize(ctx, j.sourceURL)
	if err != nil {
		e.fail(logger, runID, j, start, err.Error())
		return
	}

	// The timestamp is nice-to-have; a GitHub API failure must not fail
	// the run.
	updatedAt, err := e.github.RepoUpdatedAt(ctx, ref.Owner, ref.Name)
	if err != nil {
		logger.Warn("github metadata fetch failed", "error", err)
		updatedAt = nil
	}

	ok, err := e.repos.CompleteEnrichment(j.id, summary, updatedAt)
	if err != nil {
		e.fail(logger, runID, j, start, fmt.Sprintf("persist summary: %v", err))
		return
	}
	if !ok {
		// Entry deleted while the run was in flight. Nothing to update.
		logger.Info("entry gone before enrichment finished")
		e.runLog.Log(runID, j.id, j.sourceURL, store.EnrichStatusMissing, "entry deleted during run", time.Since(start))
		return
	}

	logger.Info("enrichment done", "duration", time.Since(start))
	e.runLog.Log(runID, j.id, j.sourceURL, store.EnrichStatusDone, "", time.Since(start))
}

func (e *Enricher) fail(logger *slog.Logger, runID uuid.UUID, j job, start time.Time, detail string) {
	logger.Warn("enrichment failed", "detail", detail)
	if _, err := e.repos.FailEnrichment(j.id); err != nil {
		logger.Error("failed to clear processing flag", "error", err)
	}
	e.runLog.Log(runID, j.id, j.sourceURL, store.EnrichStatusFailed, detail, time.Since(start))
}

// summarize fetches page content and asks the active provider for a
// description. Shared between background runs and Preview.
func (e *Enricher) summarize(ctx context.Context, sourceURL string) (string, error) {
	content, err := e.reader.Fetch(ctx, sourceURL)
	if err != nil {
		// The summarizer can still work from the URL alone.
		slog.Warn("reader fetch failed, using fallback content", "url", sourceURL, "error", err)
		content = fallbackContent(sourceURL)
	}

	prompt, err := e.settings.Get(models.SettingSummaryPrompt, "")
	if err != nil || prompt == "" {
		prompt = defaultSummaryPrompt
	}

	userPrompt := sourceURL + "\n\n" + content
	summary, err := e.ai.Generate(ctx, prompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", fmt.Errorf("summarize: provider returned empty response")
	}
	return summary, nil
}
