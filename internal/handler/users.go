package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/auth"
	"github.com/sakif/admin-panel/internal/flash"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/service"
	"github.com/sakif/admin-panel/internal/validate"
)

// UserHandler serves the account listing, the account page and the profile
// page, with their form actions.
//
// The URL names the account by username for readability only. Every
// mutation targets the hidden "id" form field, which the service checks
// against the viewer.
type UserHandler struct {
	accounts *service.AccountService
	profiles *service.ProfileService
	pages    *Pages
	logger   *slog.Logger
}

func NewUserHandler(
	accounts *service.AccountService,
	profiles *service.ProfileService,
	pages *Pages,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{
		accounts: accounts,
		profiles: profiles,
		pages:    pages,
		logger:   logger,
	}
}

// HandleList renders the account listing.
//
// HTTP: GET /users?sort=updated
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	viewer := auth.ViewerFromContext(r.Context())
	order := model.ParseListOrder(r.URL.Query().Get("sort"))

	accounts, err := h.accounts.List(r.Context(), viewer, order)
	if err != nil {
		h.loadFailed(w, r, err)
		return
	}
	h.pages.render(w, r, http.StatusOK, "users", pageData{Title: "Users", Data: accounts})
}

// HandleDetail renders one account.
//
// HTTP: GET /users/{username}
func (h *UserHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	h.renderDetail(w, r, chi.URLParam(r, "username"), http.StatusOK, pageData{})
}

func (h *UserHandler) renderDetail(w http.ResponseWriter, r *http.Request, username string, status int, data pageData) {
	viewer := auth.ViewerFromContext(r.Context())

	detail, err := h.accounts.Detail(r.Context(), viewer, username)
	if err != nil {
		h.loadFailed(w, r, err)
		return
	}

	data.Title = detail.Account.Username
	data.Data = detail
	h.pages.render(w, r, status, "user", data)
}

// HandleAccountField runs one account form action.
//
// HTTP: POST /users/{username}/{field}
// FORM: id, plus the value named after the field (username, email, active,
// role). "delete" takes only the id. An optional "back" field names the
// local page to return to; the listing's inline forms use it.
func (h *UserHandler) HandleAccountField(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	viewer := auth.ViewerFromContext(r.Context())
	username := chi.URLParam(r, "username")
	field := chi.URLParam(r, "field")
	id := r.PostForm.Get(validate.FieldID)

	var (
		out service.Outcome
		err error
	)
	switch field {
	case validate.FieldUsername:
		out, err = h.accounts.SetUsername(r.Context(), viewer, id, r.PostForm.Get(validate.FieldUsername))
	case validate.FieldEmail:
		out, err = h.accounts.SetEmail(r.Context(), viewer, id, r.PostForm.Get(validate.FieldEmail))
	case validate.FieldActive:
		out, err = h.accounts.SetActive(r.Context(), viewer, id, r.PostForm.Get(validate.FieldActive))
	case validate.FieldRole:
		out, err = h.accounts.SetRole(r.Context(), viewer, id, r.PostForm.Get(validate.FieldRole))
	case "delete":
		out, err = h.accounts.Delete(r.Context(), viewer, id)
	default:
		http.NotFound(w, r)
		return
	}

	back := localPath(r.PostForm.Get("back"), detailPath(username))
	h.pages.finish(w, r, out, err, back, func(status int, errs apperror.FieldErrors) {
		h.renderDetail(w, r, username, status, pageData{Errors: errs, Form: formValues(r)})
	})
}

// HandleProfile renders a profile. Admins see every profile, everyone else
// only their own.
//
// HTTP: GET /users/{username}/profile
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, chi.URLParam(r, "username"), http.StatusOK, pageData{})
}

func (h *UserHandler) renderProfile(w http.ResponseWriter, r *http.Request, username string, status int, data pageData) {
	viewer := auth.ViewerFromContext(r.Context())

	view, err := h.profiles.View(r.Context(), viewer, username)
	if err != nil {
		h.loadFailed(w, r, err)
		return
	}

	data.Title = "Profile of " + view.Owner.Username
	data.Data = view
	h.pages.render(w, r, status, "profile", data)
}

// HandleProfileField sets or clears one profile field.
//
// HTTP: POST /users/{username}/profile/{field}
// FORM: id (the profile id), value
func (h *UserHandler) HandleProfileField(w http.ResponseWriter, r *http.Request) {
	field, ok := model.ParseProfileField(chi.URLParam(r, "field"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	viewer := auth.ViewerFromContext(r.Context())
	username := chi.URLParam(r, "username")

	out, err := h.profiles.SetField(r.Context(), viewer,
		r.PostForm.Get(validate.FieldID),
		field,
		r.PostForm.Get(validate.FieldValue),
	)

	h.pages.finish(w, r, out, err, profilePath(username), func(status int, errs apperror.FieldErrors) {
		form := formValues(r)
		form["field"] = string(field)
		h.renderProfile(w, r, username, status, pageData{Errors: errs, Form: form})
	})
}

// loadFailed answers a page whose data could not be loaded. Missing
// accounts and denied views go back to the listing; anything else is a 500.
func (h *UserHandler) loadFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		h.pages.redirect(w, r, flash.NewWarning("User not found."), listingPath)
	case errors.Is(err, apperror.ErrForbidden):
		h.pages.redirect(w, r, flash.NewError("Not authorized."), listingPath)
	default:
		h.logger.Error("failed to load page",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func detailPath(username string) string {
	return listingPath + "/" + url.PathEscape(username)
}

func profilePath(username string) string {
	return detailPath(username) + "/profile"
}
