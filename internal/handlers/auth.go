package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"repodex/internal/middleware"
	"repodex/internal/session"
	"repodex/internal/store"
)

// totpIssuer labels the account in authenticator apps.
const totpIssuer = "Repodex"

// Auth groups the authentication handlers: login, logout, session
// introspection and the TOTP second factor.
type Auth struct {
	sessions  *session.Store
	userStore *store.UserStore
}

// NewAuth creates the Auth handler group.
func NewAuth(sessions *session.Store, userStore *store.UserStore) *Auth {
	return &Auth{sessions: sessions, userStore: userStore}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Username       string `json:"username"`
	TwoFARequired  bool   `json:"two_fa_required"`
	TwoFASetupNeed bool   `json:"two_fa_setup_needed"`
}

// Login verifies credentials and opens a session. When the user has TOTP
// enabled the session stays untrusted until the verification step; without
// a configured factor the session is fully authenticated and setup is
// offered, not forced.
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := a.userStore.FindByUsername(strings.TrimSpace(req.Username))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if user == nil || !a.userStore.CheckPassword(user, req.Password) {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid username or password"})
		return
	}

	if _, err := a.sessions.Create(r.Context(), w, &session.Data{
		UserID:    user.ID,
		Username:  user.Username,
		TwoFADone: !user.Needs2FA(),
	}); err != nil {
		respondError(w, r, err)
		return
	}

	slog.Info("admin login", "username", user.Username)
	respondJSON(w, http.StatusOK, loginResponse{
		Username:       user.Username,
		TwoFARequired:  user.Needs2FA(),
		TwoFASetupNeed: !user.Needs2FA(),
	})
}

// Logout destroys the session.
func (a *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Destroy(r.Context(), w, r); err != nil {
		slog.Warn("session destroy failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	TwoFADone     bool   `json:"two_fa_done,omitempty"`
}

// Session reports the current session state; the admin UI calls this on
// load to decide which screen to show.
func (a *Auth) Session(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())
	if sess == nil {
		respondJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Username:      sess.Username,
		TwoFADone:     sess.TwoFADone,
	})
}

type twoFASetupResponse struct {
	Secret  string `json:"secret"`
	QRPNG   string `json:"qr_png_base64"`
	Otpauth string `json:"otpauth_url"`
}

// TwoFASetup generates a fresh TOTP secret for the logged-in user and
// returns it with a QR code for authenticator apps. Allowed only before
// the factor is enabled; afterwards the secret is fixed.
func (a *Auth) TwoFASetup(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())
	if sess == nil {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}

	user, err := a.userStore.FindByID(sess.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if user == nil {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	if user.TOTPEnabled {
		respondJSON(w, http.StatusConflict, errorBody{Error: "two-factor authentication is already enabled"})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Username,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := a.userStore.SetTOTPSecret(user.ID, key.Secret()); err != nil {
		respondError(w, r, err)
		return
	}

	qrPNG, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, twoFASetupResponse{
		Secret:  key.Secret(),
		QRPNG:   base64.StdEncoding.EncodeToString(qrPNG),
		Otpauth: key.URL(),
	})
}

type twoFAVerifyRequest struct {
	Code string `json:"code"`
}

// TwoFAVerify validates a TOTP code, enabling the factor on first success
// and marking the session fully trusted.
func (a *Auth) TwoFAVerify(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFromCtx(r.Context())
	if sess == nil {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}

	var req twoFAVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := a.userStore.FindByID(sess.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if user == nil {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	if user.TOTPSecret == nil {
		respondJSON(w, http.StatusConflict, errorBody{Error: "two-factor setup has not been started"})
		return
	}

	if !totp.Validate(strings.TrimSpace(req.Code), *user.TOTPSecret) {
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid code"})
		return
	}

	if !user.TOTPEnabled {
		if err := a.userStore.EnableTOTP(user.ID); err != nil {
			respondError(w, r, err)
			return
		}
	}

	sess.TwoFADone = true
	if err := a.sessions.Update(r.Context(), r, sess); err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Username:      sess.Username,
		TwoFADone:     true,
	})
}
