package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/auth"
	"github.com/sakif/admin-panel/internal/metrics"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/policy"
	"github.com/sakif/admin-panel/internal/repository"
	"github.com/sakif/admin-panel/internal/validate"
)

// Login results, used as the "result" metric label.
const (
	loginSuccess = "success"
	loginFailure = "failure"
	loginGitHub  = "github"
)

const msgBadCredentials = "Incorrect username or password"

// AuthService handles sign-in, sign-out and session resolution.
//
//	AuthHandler (HTTP) → AuthService → AccountRepository / SessionRepository
//	                                 ↘ PasswordService (argon2id)
//	                                 ↘ TokenService (JWT)
//
// It never touches cookies: the handler turns a LoginResult into a cookie.
type AuthService struct {
	accounts  repository.AccountRepository
	sessions  repository.SessionRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	ttl       time.Duration
	metrics   metrics.Recorder
	logger    *slog.Logger

	// dummyHash is verified against when the username is unknown, so a
	// failed login takes as long whether or not the account exists.
	dummyHash string

	now func() time.Time
}

func NewAuthService(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	ttl time.Duration,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *AuthService {
	dummy, err := passwords.Hash(xid.New().String())
	if err != nil {
		logger.Warn("could not prepare dummy password hash", slog.String("error", err.Error()))
	}
	return &AuthService{
		accounts:  accounts,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		ttl:       ttl,
		metrics:   recorder,
		logger:    logger,
		dummyHash: dummy,
		now:       time.Now,
	}
}

// LoginResult bundles the account and the signed session token so the
// handler can set the cookie and redirect in one step.
type LoginResult struct {
	Account   *model.Account
	Token     string
	ExpiresAt time.Time
}

// Login checks a username and password and opens a session.
//
// Unknown usernames and wrong passwords fail with the same message. Login is
// not gated on Account.Active: a newly registered account can sign in and see
// the listing, but every mutation is still decided by the policy.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	creds, err := validate.Login(username, password)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindAccountByUsername(ctx, creds.Username)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: looking up %q: %w", creds.Username, err)
		}
		if s.dummyHash != "" {
			_ = s.passwords.Verify(s.dummyHash, creds.Password)
		}
		s.metrics.RecordLogin(loginFailure)
		return nil, apperror.ValidationFailed("", msgBadCredentials)
	}

	if err := s.passwords.Verify(account.PasswordHash, creds.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unreadable",
				slog.String("accountID", account.ID),
				slog.String("error", err.Error()),
			)
		}
		s.metrics.RecordLogin(loginFailure)
		return nil, apperror.ValidationFailed("", msgBadCredentials)
	}

	result, err := s.openSession(ctx, account)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLogin(loginSuccess)
	s.logger.Info("user logged in",
		slog.String("accountID", account.ID),
		slog.String("username", account.Username),
	)
	return result, nil
}

// LoginWithGitHub signs in the existing account whose email matches the
// GitHub account's verified email. It never creates accounts: registration
// always goes through the form so the bootstrap rule has one entry point.
func (s *AuthService) LoginWithGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*LoginResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	email := strings.ToLower(strings.TrimSpace(ghUser.Email))
	if email == "" {
		return nil, apperror.Forbidden("Your GitHub account has no verified email.")
	}

	account, err := s.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.metrics.RecordLogin(loginFailure)
			return nil, apperror.Forbidden("No account uses the email of this GitHub account.")
		}
		return nil, fmt.Errorf("service/auth: looking up GitHub email: %w", err)
	}

	result, err := s.openSession(ctx, account)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLogin(loginGitHub)
	s.logger.Info("user logged in via GitHub",
		slog.String("accountID", account.ID),
		slog.String("githubLogin", ghUser.Login),
	)
	return result, nil
}

func (s *AuthService) openSession(ctx context.Context, account *model.Account) (*LoginResult, error) {
	session := &model.Session{
		ID:        xid.New().String(),
		UserID:    account.ID,
		ExpiresAt: s.now().Add(s.ttl).UTC().Truncate(time.Second),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating session for %s: %w", account.ID, err)
	}

	token, err := s.tokens.Generate(account.ID, session.ID, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("service/auth: signing session for %s: %w", account.ID, err)
	}

	return &LoginResult{Account: account, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Logout deletes the session named by token. Invalid or expired tokens have
// nothing to delete and are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("service/auth: deleting session: %w", err)
	}
	s.logger.Info("user logged out", slog.String("accountID", claims.UserID))
	return nil
}

// Resolve turns a session cookie into the viewer it identifies.
//
// The JWT only proves the cookie was issued here. The session row decides:
// a missing row (logout, account deleted) or an expired one means the
// viewer is anonymous. Expired rows are deleted on the way.
func (s *AuthService) Resolve(ctx context.Context, token string) (policy.Viewer, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return policy.Anonymous(), fmt.Errorf("service/auth: %w", err)
	}

	session, err := s.sessions.FindSession(ctx, claims.SessionID)
	if err != nil {
		return policy.Anonymous(), fmt.Errorf("service/auth: loading session: %w", err)
	}
	if session.UserID != claims.UserID {
		return policy.Anonymous(), errors.New("service/auth: session belongs to another account")
	}
	if session.Expired(s.now()) {
		if err := s.sessions.DeleteSession(ctx, session.ID); err != nil {
			s.logger.Warn("could not delete expired session",
				slog.String("sessionID", session.ID),
				slog.String("error", err.Error()),
			)
		}
		return policy.Anonymous(), errors.New("service/auth: session expired")
	}

	account, err := s.accounts.FindAccountByID(ctx, session.UserID)
	if err != nil {
		return policy.Anonymous(), fmt.Errorf("service/auth: loading account: %w", err)
	}
	return policy.ViewerFor(account), nil
}

// SweepExpiredSessions deletes every session past its expiry. The server
// runs it periodically; Resolve already ignores expired rows.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("service/auth: sweeping sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", slog.Int64("count", n))
	}
	return n, nil
}
