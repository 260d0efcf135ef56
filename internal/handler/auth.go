package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/auth"
	"github.com/sakif/admin-panel/internal/flash"
	"github.com/sakif/admin-panel/internal/service"
	"github.com/sakif/admin-panel/internal/validate"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves registration, sign-in and sign-out.
//
// HANDLER RESPONSIBILITIES:
//   - ShowRegister / HandleRegister  → the registration form
//   - ShowLogin / HandleLogin        → the password form, sets the session cookie
//   - HandleLogout                   → deletes the session and the cookie
//   - HandleGitHubLogin / Callback   → optional GitHub sign-in
//
// DEPENDENCY CHAIN:
//   - auth *service.AuthService                  → sessions and credentials
//   - registration *service.RegistrationService  → account creation
//   - github *auth.GitHubProvider                → nil when GitHub is not configured
type AuthHandler struct {
	auth         *service.AuthService
	registration *service.RegistrationService
	github       *auth.GitHubProvider
	pages        *Pages
	secure       bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(
	authService *service.AuthService,
	registration *service.RegistrationService,
	github *auth.GitHubProvider,
	pages *Pages,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:         authService,
		registration: registration,
		github:       github,
		pages:        pages,
		secure:       secure,
		logger:       logger,
	}
}

// ShowRegister renders the registration form.
//
// HTTP: GET /register
func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	h.pages.render(w, r, http.StatusOK, "register", pageData{Title: "Register"})
}

// HandleRegister creates an account.
//
// HTTP: POST /register
// FORM: username, email, password, passwordConfirm
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	out, err := h.registration.Register(r.Context(), validate.RegistrationInput{
		Username:        r.PostForm.Get(validate.FieldUsername),
		Email:           r.PostForm.Get(validate.FieldEmail),
		Password:        r.PostForm.Get(validate.FieldPassword),
		PasswordConfirm: r.PostForm.Get(validate.FieldPasswordConfirm),
	})

	// A failed insert stays on the form with the generic error, so the user
	// keeps what they typed.
	if err != nil && !errors.Is(err, apperror.ErrValidation) && !errors.Is(err, apperror.ErrConflict) {
		h.pages.render(w, r, http.StatusInternalServerError, "register", pageData{
			Title: "Register",
			Flash: out.Flash,
			Form:  formValues(r),
		})
		return
	}

	h.pages.finish(w, r, out, err, "/register", func(status int, errs apperror.FieldErrors) {
		h.pages.render(w, r, status, "register", pageData{
			Title:  "Register",
			Errors: errs,
			Form:   formValues(r),
		})
	})
}

// ShowLogin renders the sign-in form. A signed-in viewer goes to the listing.
//
// HTTP: GET /login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	if auth.ViewerFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, listingPath, http.StatusSeeOther)
		return
	}
	h.pages.render(w, r, http.StatusOK, "login", pageData{Title: "Log in", Data: h.github != nil})
}

// HandleLogin checks the credentials and sets the session cookie.
//
// HTTP: POST /login
// FORM: username, password
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	result, err := h.auth.Login(r.Context(),
		r.PostForm.Get(validate.FieldUsername),
		r.PostForm.Get(validate.FieldPassword),
	)
	if err != nil {
		data := pageData{Title: "Log in", Form: formValues(r), Data: h.github != nil}
		status := http.StatusBadRequest

		var appErr *apperror.AppError
		switch {
		case errors.Is(err, apperror.ErrValidation):
			data.Errors = apperror.Fields(err)
			if errors.As(err, &appErr) && appErr.Field == "" {
				data.Message = appErr.Message
			}
		default:
			h.logger.Error("login failed", slog.String("error", err.Error()))
			status = http.StatusInternalServerError
			data.Message = "Could not sign you in. Please try again."
		}
		h.pages.render(w, r, status, "login", data)
		return
	}

	auth.SetSessionCookie(w, result.Token, result.ExpiresAt, h.secure)
	h.pages.redirect(w, r, flash.NewSuccess("Welcome back, "+result.Account.Username+"."), listingPath)
}

// HandleLogout ends the session.
//
// HTTP: POST /logout
//
// The session row is deleted, not just the cookie, so a copied cookie stops
// working too.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("logout failed", slog.String("error", err.Error()))
		}
	}
	auth.ClearSessionCookie(w, h.secure)
	h.pages.redirect(w, r, flash.NewSuccess("You have been logged out."), "/login")
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the GitHub
// URL. HandleGitHubCallback only accepts a callback carrying the same value.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the GitHub sign-in.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter
//  2. Exchange the code for the GitHub user and its verified email
//  3. Open a session for the existing account with that email
//  4. Set the session cookie and go to the listing
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   oauthStateCookie,
		Value:  "",
		Path:   "/auth/github",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		h.pages.redirect(w, r, flash.NewWarning("GitHub sign-in was cancelled."), "/login")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		h.pages.redirect(w, r, flash.NewError("GitHub sign-in failed."), "/login")
		return
	}

	result, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		var appErr *apperror.AppError
		msg := "GitHub sign-in failed."
		if errors.Is(err, apperror.ErrForbidden) && errors.As(err, &appErr) {
			msg = appErr.Message
		} else {
			h.logger.Error("github callback: sign-in failed", slog.String("error", err.Error()))
		}
		h.pages.redirect(w, r, flash.NewError(msg), "/login")
		return
	}

	auth.SetSessionCookie(w, result.Token, result.ExpiresAt, h.secure)
	h.pages.redirect(w, r, flash.NewSuccess("Welcome back, "+result.Account.Username+"."), listingPath)
}
