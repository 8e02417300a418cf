package users

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/contextkeys"
	"github.com/platinummonkey/httpusers/pkg/events"
	"github.com/platinummonkey/httpusers/pkg/hooks"
	"github.com/platinummonkey/httpusers/pkg/mailer"
	"github.com/platinummonkey/httpusers/pkg/orgs"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/storage"
)

var validUsername = regexp.MustCompile(`^[@\w\-.]+$`)

// Policy controls the signup state machine
type Policy struct {
	RequireActivation   bool
	RequireConfirmation bool
}

// DefaultPolicy requires confirmation but not activation
func DefaultPolicy() Policy {
	return Policy{RequireConfirmation: true}
}

// eligibleForReset reports whether u may request or use a reset shake
func (p Policy) eligibleForReset(u *User) bool {
	return u.Status == StatusActive || !p.RequireActivation
}

// OrgDirectory is the part of the organization service users depend on
type OrgDirectory interface {
	Available(ctx context.Context, name string) (bool, error)
	ByMember(ctx context.Context, username string) ([]*orgs.Organization, error)
	Destroy(ctx context.Context, name string) error
	RemoveMember(ctx context.Context, name, username string) (*orgs.Organization, error)
}

var _ OrgDirectory = (*orgs.Service)(nil)

// Hooks are run around user writes. Before hooks may modify the user or
// abort the write; after hook errors are logged. NewService registers the
// after hook that publishes each write to the event emitter.
type Hooks struct {
	Create  hooks.Pipeline[*User]
	Update  hooks.Pipeline[*User]
	Destroy hooks.Pipeline[*User]
}

// Options configures a Service. Repo is required; a nil Mailer disables
// mail and a nil Orgs skips the organization cascade.
type Options struct {
	Repo        *Repository
	Attachments storage.AttachmentStore
	Orgs        OrgDirectory
	Catalog     *permissions.Catalog
	Evaluator   *permissions.Evaluator
	Hasher      Hasher
	Mailer      mailer.Mailer
	Events      events.Emitter
	Policy      func() Policy
	Logger      *logrus.Logger
}

// Service implements user operations
type Service struct {
	repo        *Repository
	attachments storage.AttachmentStore
	orgs        OrgDirectory
	catalog     *permissions.Catalog
	evaluator   *permissions.Evaluator
	hasher      Hasher
	mailer      mailer.Mailer
	events      events.Emitter
	policy      func() Policy
	logger      *logrus.Logger
	now         func() time.Time

	Hooks Hooks
}

// NewService creates a new Service
func NewService(opts Options) *Service {
	s := &Service{
		repo:        opts.Repo,
		attachments: opts.Attachments,
		orgs:        opts.Orgs,
		catalog:     opts.Catalog,
		evaluator:   opts.Evaluator,
		hasher:      opts.Hasher,
		mailer:      opts.Mailer,
		events:      opts.Events,
		policy:      opts.Policy,
		logger:      opts.Logger,
		now:         time.Now,
	}
	if s.evaluator == nil {
		s.evaluator = permissions.NewEvaluator(0)
	}
	if s.hasher == nil {
		s.hasher = NewArgon2Hasher()
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.policy == nil {
		s.policy = DefaultPolicy
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	s.Hooks.Create.After("emit event", s.emitAfter(events.ActionCreate))
	s.Hooks.Update.After("emit event", s.emitAfter(""))
	s.Hooks.Destroy.After("emit event", s.emitAfter(events.ActionDestroy))
	return s
}

// Hasher returns the credential hasher
func (s *Service) Hasher() Hasher {
	return s.hasher
}

// Policy returns the current signup policy
func (s *Service) Policy() Policy {
	return s.policy()
}

// CreateRequest is the signup payload. A nil Password creates an account
// that receives a reset shake on confirmation.
type CreateRequest struct {
	Username string         `json:"username"`
	Password *string        `json:"password,omitempty"`
	Email    string         `json:"email"`
	Profile  map[string]any `json:"profile,omitempty"`
}

// Create signs up a new user
func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	username := Normalize(req.Username)
	if !validUsername.MatchString(username) {
		return nil, apierrors.Validation(fmt.Sprintf("invalid username %q", req.Username))
	}
	email, err := validateEmail(req.Email)
	if err != nil {
		return nil, err
	}

	if s.orgs != nil {
		available, err := s.orgs.Available(ctx, username)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, apierrors.Conflict(fmt.Sprintf("%s is not available", username))
		}
	}

	policy := s.policy()
	u := &User{
		ID:         username,
		Username:   username,
		Email:      email,
		InviteCode: uuid.NewString(),
		Profile:    req.Profile,
		CreatedAt:  s.now().UTC(),
	}
	switch {
	case policy.RequireActivation:
		u.Status = StatusNew
	case policy.RequireConfirmation:
		u.Status = StatusPending
	default:
		u.Status = StatusActive
	}
	if req.Password != nil {
		if err := SetPassword(s.hasher, u, *req.Password); err != nil {
			return nil, err
		}
	}

	u, err = s.Hooks.Create.RunBefore(ctx, u)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.runAfter(ctx, &s.Hooks.Create, "create", u)

	switch {
	case policy.RequireActivation:
		s.sendMail(ctx, mailer.KindPending, u)
	case policy.RequireConfirmation:
		s.sendMail(ctx, mailer.KindConfirm, u)
	}
	return u, nil
}

// Get returns a user by name
func (s *Service) Get(ctx context.Context, username string) (*User, error) {
	return s.repo.Get(ctx, username)
}

// All returns every user
func (s *Service) All(ctx context.Context) ([]*User, error) {
	return s.repo.All(ctx)
}

// Search returns users whose username starts with partial
func (s *Service) Search(ctx context.Context, partial string) ([]*User, error) {
	if strings.TrimSpace(partial) == "" {
		return []*User{}, nil
	}
	return s.repo.ByUsernamePrefix(ctx, partial)
}

// ByEmail returns the users registered with email
func (s *Service) ByEmail(ctx context.Context, email string) ([]*User, error) {
	return s.repo.ByEmail(ctx, email)
}

// EmailTaken reports whether any user registered with email
func (s *Service) EmailTaken(ctx context.Context, email string) (bool, error) {
	list, err := s.repo.ByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return len(list) > 0, nil
}

// Available reports whether name is free for a user or organization
func (s *Service) Available(ctx context.Context, name string) (bool, error) {
	if s.orgs != nil {
		return s.orgs.Available(ctx, name)
	}
	exists, err := s.repo.Exists(ctx, name)
	return !exists, err
}

// CountByStatus tallies users per status
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[Status]int{StatusNew: 0, StatusPending: 0, StatusActive: 0}
	for _, u := range all {
		counts[u.Status]++
	}
	return counts, nil
}

// Patch is a partial profile update. Nil fields are left unchanged.
type Patch struct {
	Email    *string        `json:"email,omitempty"`
	Password *string        `json:"password,omitempty"`
	Profile  map[string]any `json:"profile,omitempty"`
	Status   *Status        `json:"status,omitempty"`
}

// Update applies patch. Passwords are hashed with the user's existing
// salt and status never moves backwards.
func (s *Service) Update(ctx context.Context, username string, patch Patch) (*User, error) {
	return s.mutate(ctx, username, events.ActionUpdate, func(u *User) error {
		if patch.Email != nil {
			email, err := validateEmail(*patch.Email)
			if err != nil {
				return err
			}
			u.Email = email
		}
		if patch.Password != nil {
			if err := SetPassword(s.hasher, u, *patch.Password); err != nil {
				return err
			}
		}
		if patch.Profile != nil {
			u.Profile = patch.Profile
		}
		if patch.Status != nil {
			if !patch.Status.Valid() {
				return apierrors.Validation(fmt.Sprintf("unknown status %q", *patch.Status))
			}
			if patch.Status.rank() < u.Status.rank() {
				return apierrors.Validation(fmt.Sprintf("status cannot move from %s to %s", u.Status, *patch.Status))
			}
			u.Status = *patch.Status
		}
		return nil
	})
}

// Destroy removes the user after leaving every organization: sole-owned
// organizations are destroyed, the user is removed from the rest. The
// first failure aborts and earlier steps are not rolled back.
func (s *Service) Destroy(ctx context.Context, username string) error {
	u, err := s.repo.Get(ctx, username)
	if err != nil {
		return err
	}
	if u, err = s.Hooks.Destroy.RunBefore(ctx, u); err != nil {
		return err
	}

	if s.orgs != nil {
		memberOf, err := s.orgs.ByMember(ctx, u.Username)
		if err != nil {
			return fmt.Errorf("failed to list organizations of %s: %w", u.Username, err)
		}
		for _, org := range memberOf {
			if org.SoleOwner(u.Username) {
				err = s.orgs.Destroy(ctx, org.Name)
			} else {
				_, err = s.orgs.RemoveMember(ctx, org.Name, u.Username)
			}
			if err != nil {
				return fmt.Errorf("failed to leave organization %s: %w", org.Name, err)
			}
		}
	}

	if s.attachments != nil {
		if err := s.deleteAttachments(ctx, u.Username); err != nil {
			return err
		}
	}

	if err := s.repo.Destroy(ctx, u.Username); err != nil {
		return err
	}
	s.runAfter(ctx, &s.Hooks.Destroy, "destroy", u)
	return nil
}

func (s *Service) deleteAttachments(ctx context.Context, username string) error {
	names, err := s.attachments.List(ctx, DocID(username))
	if err != nil {
		return fmt.Errorf("failed to list attachments of %s: %w", username, err)
	}
	for _, name := range names {
		err := s.attachments.Delete(ctx, DocID(username), name)
		if err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete attachment %s of %s: %w", name, username, err)
		}
	}
	return nil
}

// mutate reads the user, applies change, runs update hooks and persists
// with one revisioned write
func (s *Service) mutate(ctx context.Context, username, action string, change func(*User) error) (*User, error) {
	u, err := s.repo.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := change(u); err != nil {
		return nil, err
	}
	if u, err = s.Hooks.Update.RunBefore(ctx, u); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.runAfter(context.WithValue(ctx, actionKey{}, action), &s.Hooks.Update, action, u)
	return u, nil
}

func (s *Service) runAfter(ctx context.Context, p *hooks.Pipeline[*User], op string, u *User) {
	if _, err := p.RunAfter(ctx, u); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"username":  u.Username,
		}).Warn("user after hook failed")
	}
}

// actionKey carries the event action of an update into its after hooks
type actionKey struct{}

// emitAfter returns the after hook that publishes the write. An action set
// by mutate overrides fallback; an empty action publishes nothing.
func (s *Service) emitAfter(fallback string) hooks.Hook[*User] {
	return func(ctx context.Context, u *User) (*User, error) {
		action := fallback
		if a, ok := ctx.Value(actionKey{}).(string); ok {
			action = a
		}
		if action != "" {
			s.emit(ctx, action, u, nil)
		}
		return u, nil
	}
}

func (s *Service) emit(ctx context.Context, action string, u *User, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["status"] = string(u.Status)
	s.events.Emit(ctx, events.Event{
		Resource: events.ResourceUser,
		Action:   action,
		ID:       u.Username,
		Actor:    contextkeys.GetUserID(ctx),
		Data:     data,
	})
}

// sendMail delivers mail after a committed write. Failures are logged and
// emitted rather than returned.
func (s *Service) sendMail(ctx context.Context, kind string, u *User) {
	if s.mailer == nil {
		return
	}
	msg := mailer.Message{
		Username:   u.Username,
		Email:      u.Email,
		InviteCode: u.InviteCode,
		Shake:      u.Shake,
	}

	var err error
	switch kind {
	case mailer.KindPending:
		err = s.mailer.SendPending(ctx, msg)
	case mailer.KindConfirm:
		err = s.mailer.SendConfirm(ctx, msg)
	case mailer.KindForgot:
		err = s.mailer.SendForgot(ctx, msg)
	}

	data := map[string]any{"kind": kind}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"kind":     kind,
			"username": u.Username,
		}).Error("failed to send mail")
		data["error"] = err.Error()
	}
	s.emit(ctx, events.ActionMail, u, data)
}

func validateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", apierrors.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apierrors.Validation(fmt.Sprintf("invalid email %q", email))
	}
	return email, nil
}
