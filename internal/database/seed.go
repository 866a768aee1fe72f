package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// Seed populates the database with initial development data.
// It creates a default admin account if no users exist yet and inserts the
// well-known settings rows so the admin settings screen has something to
// edit. The admin is offered 2FA setup on first login (totp_enabled = false).
func Seed(db *sql.DB) error {
	// Check if any users exist already.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed bcrypt: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO users (username, password_hash, totp_enabled)
		VALUES ($1, $2, $3)
	`, "admin", string(hash), false)
	if err != nil {
		return fmt.Errorf("seed insert admin: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO settings (key, value, description)
		VALUES
			('summary_prompt', '', 'System prompt for the repository summarizer. Empty uses the built-in default.'),
			('card_base_url', '', 'Base URL of the card-rendering service. Empty falls back to CARD_BASE_URL.')
		ON CONFLICT (key) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("seed insert settings: %w", err)
	}

	slog.Info("database seeded with default admin user",
		"username", "admin",
		"password", "admin123",
	)

	return nil
}
