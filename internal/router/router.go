// Package router sets up the HTTP routes and middleware chains for the
// Repodex API. Routes split into a public read-only group and an admin
// group behind session auth, 2FA and CSRF.
package router

import (
	"time"

	"github.com/go-chi/chi/v5"

	"repodex/internal/handlers"
	"repodex/internal/middleware"
	"repodex/internal/session"
)

// Options carries the router's cross-cutting knobs.
type Options struct {
	// SecureCookies controls the Secure flag on the CSRF cookie.
	SecureCookies bool
	// LoginLimiter throttles credential guessing; nil disables limiting.
	LoginLimiter *middleware.RateLimiter
}

// New creates the configured chi router.
func New(sessionStore *session.Store, admin *handlers.Admin, auth *handlers.Auth, public *handlers.Public, opts Options) chi.Router {
	r := chi.NewRouter()

	// Global middleware — applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.LoadSession(sessionStore))

	// Public, unauthenticated reads.
	r.Get("/health", public.Health)
	r.Get("/sitemap.xml", public.Sitemap)
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories/tree", public.CategoryTree)
		r.Get("/repositories", public.Repositories)
		r.Get("/repositories/{id}", public.Repository)
	})

	// Admin API — CSRF on everything, auth + 2FA on the management
	// surface.
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.NewCSRF(opts.SecureCookies))

		// Session bootstrap — reachable without auth.
		if opts.LoginLimiter != nil {
			r.With(opts.LoginLimiter.Middleware).Post("/login", auth.Login)
		} else {
			r.Post("/login", auth.Login)
		}
		r.Post("/logout", auth.Logout)
		r.Get("/session", auth.Session)

		// 2FA — requires a session but not a completed second factor.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/2fa/setup", auth.TwoFASetup)
			r.Post("/2fa/verify", auth.TwoFAVerify)
		})

		// Fully authenticated management surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.Require2FA)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", admin.CategoriesFlat)
				r.Get("/tree", admin.CategoriesTree)
				r.Get("/{id}/path", admin.CategoryPath)
				r.Post("/", admin.CategoryCreate)
				r.Put("/{id}", admin.CategoryUpdate)
				r.Delete("/{id}", admin.CategoryDelete)
			})

			r.Route("/repositories", func(r chi.Router) {
				r.Get("/", admin.RepositoriesList)
				r.Post("/", admin.RepositoryCreate)
				r.Post("/preview-summary", admin.RepositoryPreview)
				r.Put("/{id}", admin.RepositoryUpdate)
				r.Delete("/{id}", admin.RepositoryDelete)
				r.Post("/{id}/enrich", admin.RepositoryEnrich)
			})

			r.Get("/enrichment/log", admin.EnrichmentLog)

			r.Get("/settings", admin.SettingsList)
			r.Put("/settings", admin.SettingsUpdate)
		})
	})

	return r
}

// NewLoginLimiter builds the default limiter for the login endpoint:
// 5 attempts per client IP per minute.
func NewLoginLimiter() *middleware.RateLimiter {
	return middleware.NewRateLimiter(5, time.Minute)
}
