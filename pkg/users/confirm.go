package users

import (
	"context"
	"crypto/subtle"

	"github.com/google/uuid"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/mailer"
	"github.com/platinummonkey/httpusers/pkg/permissions"
)

// ErrInvalidInviteCode is returned when confirmation is refused
var ErrInvalidInviteCode = apierrors.Validation("Invalid Invite Code")

// ConfirmResult is the outcome of a confirmation. Shake is set when the
// confirmed user had no password and one must be chosen through reset.
type ConfirmResult struct {
	User        *User
	HasPassword bool
	Shake       string
}

// Confirm advances username's status.
//
// An actor holding "modify users" moves the user one step (new to pending
// with a fresh invite code and confirmation mail, pending to active).
// Anyone else must present the user's invite code, which activates the
// account.
func (s *Service) Confirm(ctx context.Context, actor *User, username, inviteCode string) (*ConfirmResult, error) {
	target, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, err
	}

	var next Status
	switch {
	case actor != nil && s.Can(actor, permissions.ModifyUsers, permissions.NoValue):
		next = StatusActive
		if target.Status == StatusNew {
			next = StatusPending
		}
	case inviteCode != "":
		ok, err := s.matchInviteCode(ctx, target, inviteCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidInviteCode
		}
		next = StatusActive
	default:
		return nil, ErrInvalidInviteCode
	}

	u, err := s.mutate(ctx, target.Username, "", func(u *User) error {
		if u.Status == StatusNew && next == StatusPending {
			u.InviteCode = uuid.NewString()
		}
		u.Status = next
		now := s.now().UTC()
		u.ConfirmedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.ActionConfirm, u, nil)
	if u.Status == StatusPending {
		s.sendMail(ctx, mailer.KindConfirm, u)
	}

	result := &ConfirmResult{User: u, HasPassword: u.HasPassword()}
	if !u.HasPassword() {
		u, err = s.issueShake(ctx, u.Username, false)
		if err != nil {
			return nil, err
		}
		result.User = u
		result.Shake = u.Shake
	}
	return result, nil
}

func (s *Service) matchInviteCode(ctx context.Context, target *User, code string) (bool, error) {
	holders, err := s.repo.ByInviteCode(ctx, code)
	if err != nil {
		return false, err
	}
	for _, h := range holders {
		if h.Username == target.Username &&
			subtle.ConstantTimeCompare([]byte(h.InviteCode), []byte(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// ForgotRequest drives a password reset. Without Shake a new shake is
// issued and mailed unless SuppressEmail is set; with Shake the password
// is replaced by NewPassword when the shake matches.
type ForgotRequest struct {
	Shake         string
	NewPassword   string
	SuppressEmail bool
}

// Forgot runs one step of the reset flow. ok is false, with a nil error,
// when the account is not eligible or the shake does not match.
func (s *Service) Forgot(ctx context.Context, username string, req ForgotRequest) (*User, bool, error) {
	u, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, false, err
	}
	if !s.policy().eligibleForReset(u) {
		return nil, false, nil
	}

	if req.Shake == "" {
		u, err := s.issueShake(ctx, u.Username, !req.SuppressEmail)
		if err != nil {
			return nil, false, err
		}
		return u, true, nil
	}

	if u.Shake == "" || subtle.ConstantTimeCompare([]byte(u.Shake), []byte(req.Shake)) != 1 {
		return nil, false, nil
	}
	u, err = s.mutate(ctx, u.Username, "", func(u *User) error {
		u.Shake = ""
		return SetPassword(s.hasher, u, req.NewPassword)
	})
	if err != nil {
		return nil, false, err
	}
	s.emit(ctx, events.ActionForgot, u, map[string]any{"reset": true})
	return u, true, nil
}

func (s *Service) issueShake(ctx context.Context, username string, sendEmail bool) (*User, error) {
	shake, err := RandomString(16)
	if err != nil {
		return nil, err
	}
	u, err := s.mutate(ctx, username, "", func(u *User) error {
		u.Shake = shake
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.ActionForgot, u, map[string]any{"reset": false})
	if sendEmail {
		s.sendMail(ctx, mailer.KindForgot, u)
	}
	return u, nil
}
