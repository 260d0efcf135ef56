package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sakif/admin-panel/internal/apperror"
	"github.com/sakif/admin-panel/internal/auth"
	"github.com/sakif/admin-panel/internal/flash"
	"github.com/sakif/admin-panel/internal/metrics"
	"github.com/sakif/admin-panel/internal/model"
	"github.com/sakif/admin-panel/internal/repository"
	"github.com/sakif/admin-panel/internal/validate"
)

const msgCreateFailed = "An error has occurred while creating the user."

// RegistrationService creates new accounts.
//
// FIRST-USER BOOTSTRAP:
// The very first account registered in an empty store becomes an active
// ADMIN. Every later account starts as an inactive USER and needs an admin
// to enable it.
type RegistrationService struct {
	accounts  repository.AccountRepository
	passwords *auth.PasswordService
	metrics   metrics.Recorder
	logger    *slog.Logger
}

func NewRegistrationService(
	accounts repository.AccountRepository,
	passwords *auth.PasswordService,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		accounts:  accounts,
		passwords: passwords,
		metrics:   recorder,
		logger:    logger,
	}
}

// Register validates the form, checks the username and then the email for
// uniqueness, and inserts the account with its profile in one transaction.
//
// Errors:
//   - apperror.FieldErrors for invalid input
//   - apperror.ErrConflict (field-scoped) when the username or email is taken,
//     whether found by the pre-check or by the UNIQUE constraint
//   - apperror.ErrUnavailable for anything else, with the generic creation
//     message in the Outcome flash
func (s *RegistrationService) Register(ctx context.Context, in validate.RegistrationInput) (out Outcome, err error) {
	defer func() { s.metrics.RecordMutation(OpRegister, outcomeLabel(err)) }()

	reg, err := validate.ValidateRegistration(in)
	if err != nil {
		return Outcome{}, err
	}

	if err := s.checkFree(ctx, reg.Username, s.accounts.FindAccountByUsername, validate.FieldUsername, msgUsernameDup); err != nil {
		return s.failed(err)
	}
	if err := s.checkFree(ctx, reg.Email, s.accounts.FindAccountByEmail, validate.FieldEmail, msgEmailDup); err != nil {
		return s.failed(err)
	}

	hash, err := s.passwords.Hash(reg.Password)
	if err != nil {
		return s.failed(err)
	}

	// Two first registrations racing here could both see zero. SQLite
	// serializes the inserts but not this read, so both would become ADMIN.
	total, err := s.accounts.CountAccounts(ctx)
	if err != nil {
		return s.failed(err)
	}

	account := &model.Account{
		ID:           uuid.NewString(),
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Active:       false,
	}
	if total == 0 {
		account.Role = model.RoleAdmin
		account.Active = true
	}
	profile := &model.Profile{
		ID:     uuid.NewString(),
		UserID: account.ID,
		Name:   account.Username,
	}

	if err := s.accounts.InsertAccountAndProfile(ctx, account, profile); err != nil {
		return s.failed(conflictOnInsert(err))
	}

	s.metrics.RecordRegistration(account.Role.String())
	s.logger.Info("account registered",
		slog.String("accountID", account.ID),
		slog.String("username", account.Username),
		slog.String("role", account.Role.String()),
	)
	return Outcome{
		Flash:    flash.NewSuccess("You are now registered and can log in."),
		Redirect: loginPath,
	}, nil
}

func (s *RegistrationService) checkFree(
	ctx context.Context,
	value string,
	find func(context.Context, string) (*model.Account, error),
	field, message string,
) error {
	_, err := find(ctx, value)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	return apperror.Conflict(field, message)
}

// conflictOnInsert maps a UNIQUE violation from the insert to the message the
// pre-check would have produced. Conflicts on other columns (ids) are not
// the user's fault and stay generic.
func conflictOnInsert(err error) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrConflict) {
		return err
	}
	switch appErr.Field {
	case validate.FieldUsername:
		return apperror.Conflict(validate.FieldUsername, msgUsernameDup)
	case validate.FieldEmail:
		return apperror.Conflict(validate.FieldEmail, msgEmailDup)
	}
	// Dropping the chain keeps the result from matching ErrConflict.
	return apperror.Unavailable(fmt.Errorf("inserting account: %s", appErr.Message))
}

func (s *RegistrationService) failed(err error) (Outcome, error) {
	if errors.Is(err, apperror.ErrConflict) {
		return Outcome{}, err
	}

	s.logger.Error("registration failed", slog.String("error", err.Error()))
	return Outcome{Flash: flash.NewError(msgCreateFailed)}, unavailable(OpRegister, err)
}
