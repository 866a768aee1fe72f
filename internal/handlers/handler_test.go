// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for handler
// integration tests. Tests are skipped when PostgreSQL or Valkey are
// unavailable.
package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"

	"repodex/internal/cache"
	"repodex/internal/catalog"
	"repodex/internal/database"
	"repodex/internal/middleware"
	"repodex/internal/session"
	"repodex/internal/store"
)

// fakeEnricher implements EnrichService without any background work.
type fakeEnricher struct {
	mu        sync.Mutex
	enqueued  []int64
	triggered []int64
	summary   string
	err       error
}

func (f *fakeEnricher) Enqueue(id int64, sourceURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, id)
}

func (f *fakeEnricher) Trigger(id int64, sourceURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.triggered = append(f.triggered, id)
	return nil
}

func (f *fakeEnricher) Preview(_ context.Context, sourceURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test PostgreSQL and runs migrations.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "repodex")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "repodex")
	dsn := "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping: cannot open DB: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: DB not reachable: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// testValkeyClient returns a Redis client for handler tests on DB 15.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		// Clean up test session and cache keys.
		for _, pattern := range []string{"session:*", "catalog:*"} {
			keys, _ := client.Keys(ctx, pattern).Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
		}
		client.Close()
	})

	return client
}

// testEnv holds all dependencies for handler integration tests.
type testEnv struct {
	DB         *sql.DB
	Valkey     *redis.Client
	Sessions   *session.Store
	UserStore  *store.UserStore
	Categories *store.CategoryStore
	Repos      *store.RepositoryStore
	Settings   *store.SettingStore
	EnrichLog  *store.EnrichLogStore
	Catalog    *catalog.Catalog
	Enricher   *fakeEnricher
	Admin      *Admin
	Auth       *Auth
	Public     *Public
}

// newTestEnv creates a complete test environment with all handler
// dependencies, using a fake enrichment service.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testDB(t)
	vk := testValkeyClient(t)

	sessions := session.NewStore(vk, false)
	userStore := store.NewUserStore(db)
	categoryStore := store.NewCategoryStore(db)
	repoStore := store.NewRepositoryStore(db)
	settingStore := store.NewSettingStore(db)
	enrichLogStore := store.NewEnrichLogStore(db)
	treeCache := cache.NewTreeCache(vk, 1*time.Minute)

	cat := catalog.New(categoryStore, repoStore, settingStore, treeCache, "")
	enricher := &fakeEnricher{summary: "mock summary"}

	admin := NewAdmin(cat, categoryStore, repoStore, settingStore, enrichLogStore, enricher)
	auth := NewAuth(sessions, userStore)
	public := NewPublic(cat, "")

	return &testEnv{
		DB:         db,
		Valkey:     vk,
		Sessions:   sessions,
		UserStore:  userStore,
		Categories: categoryStore,
		Repos:      repoStore,
		Settings:   settingStore,
		EnrichLog:  enrichLogStore,
		Catalog:    cat,
		Enricher:   enricher,
		Admin:      admin,
		Auth:       auth,
		Public:     public,
	}
}

// ctxWithSession adds session data to a context using the middleware key.
func ctxWithSession(ctx context.Context, data *session.Data) context.Context {
	return context.WithValue(ctx, middleware.SessionKey, data)
}

// testSession creates a session.Data for testing.
func testSession(userID uuid.UUID, username string, twoFADone bool) *session.Data {
	return &session.Data{
		UserID:    userID,
		Username:  username,
		TwoFADone: twoFADone,
	}
}

// withChiURLParam adds a chi URL parameter to a request.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// cleanCategories removes test categories (and their entries) by name.
func cleanCategories(t *testing.T, db *sql.DB, names ...string) {
	t.Helper()
	for _, name := range names {
		db.Exec("DELETE FROM repositories WHERE category_id IN (SELECT id FROM categories WHERE name = $1)", name)
	}
	for range names {
		for _, name := range names {
			db.Exec("DELETE FROM categories WHERE name = $1 AND NOT EXISTS (SELECT 1 FROM categories c WHERE c.parent_id = categories.id)", name)
		}
	}
}

// cleanRepositories removes test entries by source URL.
func cleanRepositories(t *testing.T, db *sql.DB, urls ...string) {
	t.Helper()
	for _, url := range urls {
		db.Exec("DELETE FROM repositories WHERE source_url = $1", url)
	}
}

// cleanUsers removes test users by username.
func cleanUsers(t *testing.T, db *sql.DB, usernames ...string) {
	t.Helper()
	for _, username := range usernames {
		db.Exec("DELETE FROM users WHERE username = $1", username)
	}
}
