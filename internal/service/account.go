package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/flash"
	"github.com/sakif/admin-panel/internal/metrics"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/policy"
	"github.com/sakif/admin-panel/internal/repository"
	"github.com/sakif/admin-panel/internal/validate"
)

// AccountService manages account identity, role, activation and deletion.
type AccountService struct {
	accounts repository.AccountRepository
	profiles repository.ProfileRepository
	metrics  metrics.Recorder
	logger   *slog.Logger
}

func NewAccountService(
	accounts repository.AccountRepository,
	profiles repository.ProfileRepository,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		profiles: profiles,
		metrics:  recorder,
		logger:   logger,
	}
}

// AccountDetail is everything the account page shows, plus which of its
// forms the viewer may submit.
type AccountDetail struct {
	Account *model.Account
	Profile *model.Profile

	CanEditIdentity bool
	CanChangeRole   bool
	CanDelete       bool
	CanViewProfile  bool
}

// List returns every account joined with its profile.
func (s *AccountService) List(ctx context.Context, viewer policy.Viewer, order model.ListOrder) ([]model.AccountSummary, error) {
	if !viewer.Authenticated() {
		return nil, apperror.Forbidden("sign in to list users")
	}
	accounts, err := s.accounts.ListAccounts(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("service/account: listing accounts: %w", err)
	}
	return accounts, nil
}

// Detail loads the account page for username. An account without a profile
// breaks the one-profile-per-account rule and is reported as not found.
func (s *AccountService) Detail(ctx context.Context, viewer policy.Viewer, username string) (*AccountDetail, error) {
	if !viewer.Authenticated() {
		return nil, apperror.Forbidden("sign in to view users")
	}

	account, err := s.accounts.FindAccountByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/account: loading %q: %w", username, err)
	}

	profile, err := s.profiles.FindProfileByOwner(ctx, account.ID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Error("account has no profile",
				slog.String("accountID", account.ID),
				slog.String("username", account.Username),
			)
		}
		return nil, fmt.Errorf("service/account: loading profile of %q: %w", username, err)
	}

	return &AccountDetail{
		Account:         account,
		Profile:         profile,
		CanEditIdentity: policy.CanEditAccountIdentity(viewer, account.ID),
		CanChangeRole:   policy.CanChangeRoleOrActive(viewer, account.ID),
		CanDelete:       policy.CanDeleteAccount(viewer, account.ID),
		CanViewProfile:  policy.CanViewProfile(viewer, account.ID),
	}, nil
}

// SetUsername renames an account. The viewer must be an admin or the account
// itself. On success the browser goes back to the listing, since the detail
// URL contains the old name.
func (s *AccountService) SetUsername(ctx context.Context, viewer policy.Viewer, rawID, rawUsername string) (out Outcome, err error) {
	defer func() { s.metrics.RecordMutation(OpSetUsername, outcomeLabel(err)) }()

	id, username, err := validateTarget(rawID, rawUsername, validate.Username)
	if err != nil {
		return Outcome{}, err
	}
	if !policy.CanEditAccountIdentity(viewer, id) {
		return s.denied(OpSetUsername, viewer, id)
	}

	if err := s.ensureUnique(ctx, id, username, s.accounts.FindAccountByUsername); err != nil {
		return s.failed(OpSetUsername, id, remapConflict(err, validate.FieldUsername, msgUsernameDup))
	}
	if err := s.accounts.UpdateAccountField(ctx, id, model.AccountUsername, username); err != nil {
		return s.failed(OpSetUsername, id, remapConflict(err, validate.FieldUsername, msgUsernameDup))
	}

	s.logger.Info("username updated",
		slog.String("accountID", id),
		slog.String("username", username),
		slog.String("by", viewer.ID),
	)
	return Outcome{Flash: flash.NewSuccess("Username updated."), Redirect: listingPath}, nil
}

// SetEmail changes an account's email. Same authorization as SetUsername.
func (s *AccountService) SetEmail(ctx context.Context, viewer policy.Viewer, rawID, rawEmail string) (out Outcome, err error) {
	defer func() { s.metrics.RecordMutation(OpSetEmail, outcomeLabel(err)) }()

	id, email, err := validateTarget(rawID, rawEmail, validate.Email)
	if err != nil {
		return Outcome{}, err
	}
	if !policy.CanEditAccountIdentity(viewer, id) {
		return s.denied(OpSetEmail, viewer, id)
	}

	if err := s.ensureUnique(ctx, id, email, s.accounts.FindAccountByEmail); err != nil {
		return s.failed(OpSetEmail, id, remapConflict(err, validate.FieldEmail, msgEmailDup))
	}
	if err := s.accounts.UpdateAccountField(ctx, id, model.AccountEmail, email); err != nil {
		return s.failed(OpSetEmail, id, remapConflict(err, validate.FieldEmail, msgEmailDup))
	}

	s.logger.Info("email updated",
		slog.String("accountID", id),
		slog.String("by", viewer.ID),
	)
	return Outcome{Flash: flash.NewSuccess("Email updated.")}, nil
}

// SetActive enables or disables an account. Admins only, never on themselves.
func (s *AccountService) SetActive(ctx context.Context, viewer policy.Viewer, rawID, rawActive string) (out Outcome, err error) {
	defer func() { s.metrics.RecordMutation(OpSetActive, outcomeLabel(err)) }()

	id, active, err := validateTarget(rawID, rawActive, validate.Active)
	if err != nil {
		return Outcome{}, err
	}
	if !policy.CanChangeRoleOrActive(viewer, id) {
		return s.denied(OpSetActive, viewer, id)
	}

	if err := s.accounts.UpdateAccountField(ctx, id, model.AccountActive, active); err != nil {
		return s.failed(OpSetActive, id, err)
	}

	s.logger.Info("account activation changed",
		slog.String("accountID", id),
		slog.Bool("active", active),
		slog.String("by", viewer.ID),
	)
	return Outcome{Flash: flash.NewSuccess("User updated.")}, nil
}

// SetRole changes an account's role. Admins only, never on themselves, so
// the last admin cannot demote itself by accident.
func (s *AccountService) SetRole(ctx context.Context, viewer policy.Viewer, rawID, rawRole string) (out Outcome, err error) {
	defer func() { s.metrics.RecordMutation(OpSetRole, outcomeLabel(err)) }()

	id, role, err := validateTarget(rawID, rawRole, validate.Role)
	if err != nil {
		return Outcome{}, err
	}
	if !policy.CanChangeRoleOrActive(viewer, id) {
		return s.denied(OpSetRole, viewer, id)
	}

	if err := s.accounts.UpdateAccountField(ctx, id, model.AccountRole, role); err != nil {
		return s.failed(OpSetRole, id, err)
	}

	s.logger.Info("account role changed",
		slog.String("accountID", id),
		slog.String("role", role.String()),
		slog.String("by", viewer.ID),
	)
	return Outcome{Flash: flash.NewSuccess("User updated.")}, nil
}

// Delete removes an account together with its profile and sessions.
func (s *AccountService) Delete(ctx context.Context, viewer policy.Viewer, rawID string) (out Outcome, err error) {
	defer func() { s.metrics.RecordMutation(OpDeleteUser, outcomeLabel(err)) }()

	id, err := validate.ID(rawID)
	if err != nil {
		return Outcome{}, err
	}
	if !policy.CanDeleteAccount(viewer, id) {
		return s.denied(OpDeleteUser, viewer, id)
	}

	if err := s.accounts.DeleteAccount(ctx, id); err != nil {
		return s.failed(OpDeleteUser, id, err)
	}

	s.logger.Info("account deleted",
		slog.String("accountID", id),
		slog.String("by", viewer.ID),
	)
	return Outcome{Flash: flash.NewSuccess("User deleted!"), Redirect: listingPath}, nil
}

// ensureUnique fails with ErrConflict when an account other than id already
// holds value.
func (s *AccountService) ensureUnique(
	ctx context.Context,
	id, value string,
	find func(context.Context, string) (*model.Account, error),
) error {
	existing, err := find(ctx, value)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != id:
		return apperror.ErrConflict
	}
	return nil
}

func (s *AccountService) denied(op string, viewer policy.Viewer, targetID string) (Outcome, error) {
	s.logger.Warn("mutation not authorized",
		slog.String("operation", op),
		slog.String("viewerID", viewer.ID),
		slog.String("targetID", targetID),
	)
	return Outcome{Flash: flash.NewError(msgNotAllowed)}, apperror.Forbidden(msgNotAllowed)
}

// failed turns a store error into the Outcome the viewer sees. Conflicts are
// field-scoped and carry no flash: the handler shows them next to the field.
func (s *AccountService) failed(op, targetID string, err error) (Outcome, error) {
	switch {
	case errors.Is(err, apperror.ErrConflict):
		return Outcome{}, err
	case errors.Is(err, apperror.ErrNotFound):
		return Outcome{Flash: flash.NewWarning(msgNoSuchUser), Redirect: listingPath}, err
	case errors.Is(err, apperror.ErrForbidden):
		return Outcome{Flash: flash.NewError(msgNotAllowed)}, err
	}

	s.logger.Error("mutation failed",
		slog.String("operation", op),
		slog.String("targetID", targetID),
		slog.String("error", err.Error()),
	)
	return Outcome{Flash: flash.NewError(err.Error())}, unavailable(op, err)
}

// unavailable makes sure err matches apperror.ErrUnavailable, whatever the
// repository returned.
func unavailable(op string, err error) error {
	if !errors.Is(err, apperror.ErrUnavailable) {
		err = apperror.Unavailable(err)
	}
	return fmt.Errorf("service: %s: %w", op, err)
}
