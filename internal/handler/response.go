// Package handler contains the HTTP handlers of the admin panel.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming request (URL params, form values, cookies)
// 2. Call the service layer with the viewer from the request context
// 3. Render a page or redirect, with a flash message for the next page
//
// Handlers hold no business rules. Every decision about who may change what
// is made by the services.
package handler

// RESPONSE HELPERS:
// Every page goes through Pages.render and every form action ends in
// Pages.finish, so all handlers answer the same way:
//
//	success                → flash + 303 redirect
//	validation error       → 400, form re-rendered with field messages
//	conflict (taken value) → 409, form re-rendered with field messages
//	forbidden, unavailable → flash + 303 redirect back
//	not found              → flash + 303 redirect to the listing
//
// Templates are rendered into a buffer first. A template error then becomes
// a clean 500 instead of half a page.

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/auth"
	"github.com/sakif/admin-panel/internal/flash"
	"github.com/sakif/admin-panel/internal/middleware"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/policy"
	"github.com/sakif/admin-panel/internal/service"
)

//go:embed templates/*.html
var templatesFS embed.FS

// page names, one template file each
var pageNames = []string{"login", "register", "users", "user", "profile"}

const listingPath = "/users"

// pageData is what every template receives. Data holds the page-specific
// value (listing rows, account detail, profile view).
type pageData struct {
	Title     string
	Viewer    policy.Viewer
	Flash     *flash.Flash
	CSRFToken string
	Message   string               // form-level error, e.g. bad credentials
	Errors    apperror.FieldErrors // field-level errors
	Form      map[string]string    // submitted values to re-fill
	Data      any
}

// Pages holds the parsed templates and the flash codec shared by all handlers.
type Pages struct {
	templates map[string]*template.Template
	flashes   *flash.Codec
	logger    *slog.Logger
}

var templateFuncs = template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"roles":         func() []model.Role { return model.Roles },
	"profileFields": func() []model.ProfileField { return model.ProfileFields },
	"label":         func(f model.ProfileField) string { return f.Label() },
	"canManage":     policy.CanChangeRoleOrActive,
}

// NewPages parses every page together with the base layout.
//
// Each page gets its own template set: base.html calls {{template "content"}}
// and each page file defines "content", so sharing one set would make the
// last parsed page win.
func NewPages(flashes *flash.Codec, logger *slog.Logger) (*Pages, error) {
	templates := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templatesFS,
			"templates/base.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("handler: parsing %s template: %w", name, err)
		}
		templates[name] = tmpl
	}
	return &Pages{templates: templates, flashes: flashes, logger: logger}, nil
}

// render writes page with status. It fills in the viewer, the CSRF token and
// the pending flash, which is consumed here.
func (p *Pages) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	tmpl, ok := p.templates[page]
	if !ok {
		p.logger.Error("unknown page", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data.Viewer = auth.ViewerFromContext(r.Context())
	data.CSRFToken = middleware.CSRFToken(r.Context())
	if data.Flash == nil {
		data.Flash = p.flashes.Pop(w, r)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		p.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// redirect stores f for the next page and sends the browser to target.
// 303 See Other makes the browser follow a POST with a GET.
func (p *Pages) redirect(w http.ResponseWriter, r *http.Request, f *flash.Flash, target string) {
	if err := p.flashes.Set(w, f); err != nil {
		p.logger.Error("failed to set flash", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// finish answers a form action from its Outcome and error. back is where
// the browser returns when the Outcome names no redirect. rerender shows the
// form again with field messages; it is only called for validation errors
// and conflicts.
func (p *Pages) finish(
	w http.ResponseWriter,
	r *http.Request,
	out service.Outcome,
	err error,
	back string,
	rerender func(status int, errs apperror.FieldErrors),
) {
	target := out.Redirect
	if target == "" {
		target = back
	}

	switch {
	case err == nil:
		p.redirect(w, r, out.Flash, target)
	case errors.Is(err, apperror.ErrValidation):
		rerender(http.StatusBadRequest, apperror.Fields(err))
	case errors.Is(err, apperror.ErrConflict):
		rerender(http.StatusConflict, apperror.Fields(err))
	default:
		f := out.Flash
		if f == nil {
			f = flash.NewError("Something went wrong. Please try again.")
		}
		p.redirect(w, r, f, target)
	}
}

// formValues copies the submitted form into a map for re-filling inputs.
// Password fields are never echoed back.
func formValues(r *http.Request) map[string]string {
	values := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		if strings.HasPrefix(strings.ToLower(key), "password") || key == middleware.CSRFFormField {
			continue
		}
		values[key] = r.PostForm.Get(key)
	}
	return values
}

// localPath returns raw when it is a path on this site, otherwise fallback.
// It keeps the "back" form field from turning into an open redirect.
func localPath(raw, fallback string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	return raw
}
