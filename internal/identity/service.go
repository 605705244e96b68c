package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/waylio/waylio-platform/internal/apperr"
	"github.com/waylio/waylio-platform/internal/audit"
	"github.com/waylio/waylio-platform/internal/notify"
	"github.com/waylio/waylio-platform/pkg/logging"
)

// Notifier delivers account emails.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request)
}

// Auditor records account events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

const maxUniqueIDAttempts = 3

// Service owns accounts, credentials and tokens.
type Service struct {
	repo     Repository
	tokens   *Tokens
	notifier Notifier
	auditor  Auditor
	loginURL string
	logger   *logging.Logger
}

func NewService(repo Repository, tokens *Tokens, logger *logging.Logger) *Service {
	if repo == nil {
		panic("identity: repository required")
	}
	if tokens == nil {
		panic("identity: tokens required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

// WithNotifier enables account emails.
func (s *Service) WithNotifier(n Notifier, loginURL string) *Service {
	s.notifier = n
	s.loginURL = loginURL
	return s
}

// WithAuditor enables audit rows for logins and account changes.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

// Tokens exposes the token issuer for middleware wiring.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// LoginResult is returned to a signed-in client.
type LoginResult struct {
	User *User `json:"user"`
	TokenPair
}

// Login accepts an email or a staff unique ID as identifier.
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		u   *User
		err error
	)
	if IsUniqueID(strings.ToUpper(identifier)) {
		u, err = s.repo.GetByUniqueID(ctx, strings.ToUpper(identifier))
	} else {
		u, err = s.repo.GetByEmail(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.Active || !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, audit.Event{UserID: u.ID, Action: audit.ActionLogin, ResourceType: audit.ResourceUser, ResourceID: u.ID})
	return &LoginResult{User: u, TokenPair: pair}, nil
}

// Refresh exchanges a refresh token for a new pair. Deactivated users are refused.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !u.Active {
		return nil, ErrInvalidToken
	}
	pair, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// RegisterPatient creates an active patient account and sends the welcome email.
func (s *Service) RegisterPatient(ctx context.Context, req RegisterPatientRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         RolePatient,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("patient registered", "user_id", u.ID)
	s.audit(ctx, audit.Event{UserID: u.ID, Action: audit.ActionCreate, ResourceType: audit.ResourceUser, ResourceID: u.ID})
	s.notify(ctx, notify.Request{
		Template:  notify.TemplateWelcomeEmail,
		Recipient: notify.Recipient{Name: u.FullName(), Email: u.Email},
		Data:      map[string]string{"firstName": u.FirstName, "loginUrl": s.loginURL},
	})
	return u, nil
}

// StaffAccount is returned once on creation; the temporary password is never stored in clear.
type StaffAccount struct {
	User              *User  `json:"user"`
	TemporaryPassword string `json:"temporaryPassword"`
}

// CreateStaff creates a doctor or reception account with a generated unique ID and password.
func (s *Service) CreateStaff(ctx context.Context, actor Caller, req CreateStaffRequest) (*StaffAccount, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	password, err := TemporaryPassword()
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         req.Role,
		PasswordHash: hash,
		Active:       true,
	}
	for attempt := 0; ; attempt++ {
		if u.UniqueID, err = NewUniqueID(req.Role); err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, u)
		if err == nil {
			break
		}
		if !errors.Is(err, errUniqueIDTaken) || attempt == maxUniqueIDAttempts-1 {
			return nil, err
		}
	}
	s.logger.Info("staff account created", "user_id", u.ID, "role", string(u.Role), "unique_id", u.UniqueID)
	s.audit(ctx, audit.Event{
		UserID:       actor.UserID,
		Action:       audit.ActionCreate,
		ResourceType: audit.ResourceUser,
		ResourceID:   u.ID,
		Changes:      audit.Changes(nil, map[string]string{"role": string(u.Role), "uniqueId": u.UniqueID}),
	})
	s.notify(ctx, notify.Request{
		Template:  notify.TemplateUserCredentials,
		Recipient: notify.Recipient{Name: u.FullName(), Email: u.Email},
		Data: map[string]string{
			"firstName": u.FirstName,
			"uniqueId":  u.UniqueID,
			"password":  password,
			"loginUrl":  s.loginURL,
		},
		Priority: notify.PriorityHigh,
	})
	return &StaffAccount{User: u, TemporaryPassword: password}, nil
}

// Deactivate blocks future logins and refreshes. Issued access tokens stay valid until expiry.
func (s *Service) Deactivate(ctx context.Context, actor Caller, userID string) error {
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}
	if actor.UserID == userID {
		return apperr.Validation("Cannot deactivate your own account", map[string]string{"userId": "must not be the caller"})
	}
	if err := s.repo.SetActive(ctx, userID, false); err != nil {
		return err
	}
	s.audit(ctx, audit.Event{UserID: actor.UserID, Action: audit.ActionDeactivate, ResourceType: audit.ResourceUser, ResourceID: userID})
	return nil
}

// Activate re-enables a deactivated account.
func (s *Service) Activate(ctx context.Context, actor Caller, userID string) error {
	if actor.Role != RoleAdmin {
		return ErrForbidden
	}
	if err := s.repo.SetActive(ctx, userID, true); err != nil {
		return err
	}
	s.audit(ctx, audit.Event{UserID: actor.UserID, Action: audit.ActionActivate, ResourceType: audit.ResourceUser, ResourceID: userID})
	return nil
}

// PasswordReset carries the replacement password back to the admin once.
type PasswordReset struct {
	UserID            string `json:"userId"`
	TemporaryPassword string `json:"temporaryPassword"`
}

// ResetPassword replaces a user's password with a generated one and emails it to them.
func (s *Service) ResetPassword(ctx context.Context, actor Caller, userID string) (*PasswordReset, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	password, err := TemporaryPassword()
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash); err != nil {
		return nil, err
	}
	s.logger.Info("password reset by admin", "user_id", u.ID, "actor_id", actor.UserID)
	s.audit(ctx, audit.Event{
		UserID:       actor.UserID,
		Action:       audit.ActionPasswordReset,
		ResourceType: audit.ResourceUser,
		ResourceID:   u.ID,
		Changes:      audit.Changes(nil, map[string]string{"field": "password"}),
	})
	s.notify(ctx, notify.Request{
		Template:  notify.TemplatePasswordReset,
		Recipient: notify.Recipient{Name: u.FullName(), Email: u.Email},
		Data: map[string]string{
			"firstName": u.FirstName,
			"lastName":  u.LastName,
			"password":  password,
			"loginUrl":  s.loginURL,
		},
		Priority: notify.PriorityHigh,
	})
	return &PasswordReset{UserID: u.ID, TemporaryPassword: password}, nil
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < MinPasswordLength {
		return apperr.Validation("Invalid password", map[string]string{"newPassword": "must be at least 8 characters"})
	}
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	s.audit(ctx, audit.Event{UserID: userID, Action: audit.ActionUpdate, ResourceType: audit.ResourceUser, ResourceID: userID,
		Changes: audit.Changes(nil, map[string]string{"field": "password"})})
	return nil
}

// SetPushToken stores the caller's device token for push notifications. Empty clears it.
func (s *Service) SetPushToken(ctx context.Context, userID, token string) error {
	return s.repo.SetPushToken(ctx, userID, strings.TrimSpace(token))
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetMany returns the users that exist among ids, keyed by ID.
func (s *Service) GetMany(ctx context.Context, ids []string) (map[string]*User, error) {
	users, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ListByRole returns every user holding role.
func (s *Service) ListByRole(ctx context.Context, role Role) ([]*User, error) {
	if !role.Valid() {
		return nil, apperr.Validation("Invalid role", map[string]string{"role": "unknown role"})
	}
	return s.repo.ListByRole(ctx, role)
}

// EnsureAdmin creates the bootstrap admin when no user has that email yet.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	u := &User{Email: strings.ToLower(email), FirstName: "System", LastName: "Admin", Role: RoleAdmin, PasswordHash: hash, Active: true}
	if err := s.repo.Create(ctx, u); err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", "user_id", u.ID)
	return nil
}

func (s *Service) audit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", "error", err, "action", string(event.Action))
	}
}

func (s *Service) notify(ctx context.Context, req notify.Request) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, req)
}
