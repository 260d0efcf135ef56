package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/policy"
	"github.com/sakif/admin-panel/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.Store. It enforces the same UNIQUE
// and ownership rules as the SQLite store, and every operation can be made
// to fail by setting the matching error field.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	profiles map[string]*model.Profile
	sessions map[string]*model.Session

	// staleLookups makes FindAccountByUsername/ByEmail miss, as if another
	// request had not committed yet. Writes still enforce uniqueness.
	staleLookups bool

	findErr   error
	countErr  error
	insertErr error
	updateErr error
	deleteErr error

	updateCalls int
	insertCalls int
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*model.Account),
		profiles: make(map[string]*model.Profile),
		sessions: make(map[string]*model.Session),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) FindAccountByID(_ context.Context, id string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if a, ok := f.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, apperror.NotFound("account", id)
}

func (f *fakeStore) FindAccountByUsername(_ context.Context, username string) (*model.Account, error) {
	return f.findAccountBy(func(a *model.Account) bool { return a.Username == username }, username)
}

func (f *fakeStore) FindAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	return f.findAccountBy(func(a *model.Account) bool { return a.Email == email }, email)
}

func (f *fakeStore) findAccountBy(match func(*model.Account) bool, key string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if !f.staleLookups {
		for _, a := range f.accounts {
			if match(a) {
				cp := *a
				return &cp, nil
			}
		}
	}
	return nil, apperror.NotFound("account", key)
}

func (f *fakeStore) CountAccounts(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.accounts), nil
}

func (f *fakeStore) ListAccounts(_ context.Context, order model.ListOrder) ([]model.AccountSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	out := []model.AccountSummary{}
	for _, a := range f.accounts {
		out = append(out, model.AccountSummary{
			ID: a.ID, Username: a.Username, Email: a.Email, Role: a.Role, Active: a.Active,
			CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if order == model.OrderByUpdated && !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (f *fakeStore) InsertAccountAndProfile(_ context.Context, a *model.Account, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	if err := f.uniqueLocked("", a.Username, a.Email); err != nil {
		return err
	}
	if _, ok := f.accounts[a.ID]; ok {
		return apperror.Conflict("id", "id already exists")
	}

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	p.UserID, p.Name = a.ID, a.Username

	ac, pc := *a, *p
	f.accounts[a.ID] = &ac
	f.profiles[p.ID] = &pc
	return nil
}

// uniqueLocked mirrors the UNIQUE(username) and UNIQUE(email) constraints.
func (f *fakeStore) uniqueLocked(selfID, username, email string) error {
	for _, other := range f.accounts {
		if other.ID == selfID {
			continue
		}
		if username != "" && other.Username == username {
			return apperror.Conflict("username", "username already exists")
		}
		if email != "" && other.Email == email {
			return apperror.Conflict("email", "email already exists")
		}
	}
	return nil
}

func (f *fakeStore) UpdateAccountField(_ context.Context, id string, field model.AccountField, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return apperror.NotFound("account", id)
	}

	switch field {
	case model.AccountUsername:
		username := value.(string)
		if err := f.uniqueLocked(id, username, ""); err != nil {
			return err
		}
		a.Username = username
		for _, p := range f.profiles {
			if p.UserID == id {
				p.Name = username
			}
		}
	case model.AccountEmail:
		email := value.(string)
		if err := f.uniqueLocked(id, "", email); err != nil {
			return err
		}
		a.Email = email
	case model.AccountActive:
		a.Active = value.(bool)
	case model.AccountRole:
		a.Role = value.(model.Role)
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) DeleteAccount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.accounts[id]; !ok {
		return apperror.NotFound("account", id)
	}
	delete(f.accounts, id)
	for pid, p := range f.profiles {
		if p.UserID == id {
			delete(f.profiles, pid)
		}
	}
	for sid, s := range f.sessions {
		if s.UserID == id {
			delete(f.sessions, sid)
		}
	}
	return nil
}

func (f *fakeStore) FindProfileByID(_ context.Context, id string) (*model.Profile, error) {
	return f.findProfileBy(func(p *model.Profile) bool { return p.ID == id }, id)
}

func (f *fakeStore) FindProfileByOwner(_ context.Context, userID string) (*model.Profile, error) {
	return f.findProfileBy(func(p *model.Profile) bool { return p.UserID == userID }, userID)
}

func (f *fakeStore) FindProfileByName(_ context.Context, name string) (*model.Profile, error) {
	return f.findProfileBy(func(p *model.Profile) bool { return p.Name == name }, name)
}

func (f *fakeStore) findProfileBy(match func(*model.Profile) bool, key string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, p := range f.profiles {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("profile", key)
}

func (f *fakeStore) UpdateProfileField(_ context.Context, id string, field model.ProfileField, value *string, ownerGuard string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return apperror.NotFound("profile", id)
	}
	if ownerGuard != "" && p.UserID != ownerGuard {
		return apperror.Forbidden("profile belongs to another account")
	}
	p.Set(field, value)
	return nil
}

func (f *fakeStore) CreateSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeStore) FindSession(_ context.Context, id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, apperror.NotFound("session", id)
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

// seedAccount stores an account and its profile directly, bypassing
// registration.
func (f *fakeStore) seedAccount(t *testing.T, username string, role model.Role) (*model.Account, *model.Profile) {
	t.Helper()
	a := &model.Account{
		ID:       "id-" + username,
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
		Active:   true,
	}
	p := &model.Profile{ID: "profile-" + username}
	if err := f.InsertAccountAndProfile(context.Background(), a, p); err != nil {
		t.Fatalf("seedAccount(%q): %v", username, err)
	}
	return a, p
}

func (f *fakeStore) account(id string) *model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id]
}

func (f *fakeStore) profile(id string) *model.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[id]
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRecorder captures metric calls as "operation:outcome" strings.
type fakeRecorder struct {
	mu        sync.Mutex
	mutations []string
	logins    []string
	roles     []string
}

func newTestRecorder() *fakeRecorder { return &fakeRecorder{} }

func (r *fakeRecorder) RecordMutation(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations = append(r.mutations, operation+":"+outcome)
}

func (r *fakeRecorder) RecordRegistration(role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, role)
}

func (r *fakeRecorder) RecordLogin(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, result)
}

func (r *fakeRecorder) RecordHTTPRequest(string, int, time.Duration) {}

func (r *fakeRecorder) lastMutation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.mutations) == 0 {
		return ""
	}
	return r.mutations[len(r.mutations)-1]
}

func viewerOf(a *model.Account) policy.Viewer {
	return policy.ViewerFor(a)
}
