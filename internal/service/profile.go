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

// ProfileService reads and edits the optional profile fields.
//
// Admins may view any profile but only the owner may edit it.
type ProfileService struct {
	accounts repository.AccountRepository
	profiles repository.ProfileRepository
	metrics  metrics.Recorder
	logger   *slog.Logger
}

func NewProfileService(
	accounts repository.AccountRepository,
	profiles repository.ProfileRepository,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		accounts: accounts,
		profiles: profiles,
		metrics:  recorder,
		logger:   logger,
	}
}

// ProfileView is a profile page: the owner, the profile and whether the
// viewer may edit it.
type ProfileView struct {
	Owner    *model.Account
	Profile  *model.Profile
	Editable bool
}

// View loads the profile of username. The profile is found through the
// owner's id, not through the denormalized profile name.
func (s *ProfileService) View(ctx context.Context, viewer policy.Viewer, username string) (*ProfileView, error) {
	owner, err := s.accounts.FindAccountByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/profile: loading %q: %w", username, err)
	}
	if !policy.CanViewProfile(viewer, owner.ID) {
		return nil, apperror.Forbidden(msgNotAllowed)
	}

	profile, err := s.profiles.FindProfileByOwner(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: loading profile of %q: %w", username, err)
	}

	return &ProfileView{
		Owner:    owner,
		Profile:  profile,
		Editable: policy.CanEditProfileField(viewer, owner.ID),
	}, nil
}

// SetField sets or clears one profile field. An empty value clears the field
// (stored as NULL).
func (s *ProfileService) SetField(
	ctx context.Context,
	viewer policy.Viewer,
	rawProfileID string,
	field model.ProfileField,
	rawValue string,
) (out Outcome, err error) {
	defer func() { s.metrics.RecordMutation(OpSetProfile, outcomeLabel(err)) }()

	id, value, err := validateTarget(rawProfileID, rawValue, func(raw string) (*string, error) {
		return validate.OptionalText(field, raw)
	})
	if err != nil {
		return Outcome{}, err
	}

	profile, err := s.profiles.FindProfileByID(ctx, id)
	if err != nil {
		return s.failed(id, field, err)
	}
	if !policy.CanEditProfileField(viewer, profile.UserID) {
		s.logger.Warn("profile edit not authorized",
			slog.String("viewerID", viewer.ID),
			slog.String("profileID", id),
			slog.String("field", string(field)),
		)
		return Outcome{Flash: flash.NewError(msgNotAllowed)}, apperror.Forbidden(msgNotAllowed)
	}

	// The owner guard repeats the check inside the UPDATE itself.
	if err := s.profiles.UpdateProfileField(ctx, id, field, value, viewer.ID); err != nil {
		return s.failed(id, field, err)
	}

	s.logger.Info("profile updated",
		slog.String("profileID", id),
		slog.String("field", string(field)),
		slog.Bool("cleared", value == nil),
	)
	return Outcome{Flash: flash.NewSuccess(field.Label() + " updated.")}, nil
}

func (s *ProfileService) failed(profileID string, field model.ProfileField, err error) (Outcome, error) {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return Outcome{Flash: flash.NewWarning("Profile not found."), Redirect: listingPath}, err
	case errors.Is(err, apperror.ErrForbidden):
		return Outcome{Flash: flash.NewError(msgNotAllowed)}, err
	}

	s.logger.Error("profile update failed",
		slog.String("profileID", profileID),
		slog.String("field", string(field)),
		slog.String("error", err.Error()),
	)
	return Outcome{Flash: flash.NewError(err.Error())}, unavailable(OpSetProfile, err)
}
