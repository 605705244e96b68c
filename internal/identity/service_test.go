package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waylio/waylio-platform/internal/apperr"
	"github.com/waylio/waylio-platform/internal/audit"
	"github.com/waylio/waylio-platform/internal/notify"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Request
}

func (f *fakeNotifier) Notify(ctx context.Context, req notify.Request) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (f *fakeAuditor) Record(ctx context.Context, e audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

type serviceFixture struct {
	svc      *Service
	repo     *MemoryRepository
	notifier *fakeNotifier
	auditor  *fakeAuditor
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	repo := NewMemoryRepository()
	notifier := &fakeNotifier{}
	auditor := &fakeAuditor{}
	svc := NewService(repo, newTestTokens(t), nil).
		WithNotifier(notifier, "https://app.example.com/login").
		WithAuditor(auditor)
	return serviceFixture{svc: svc, repo: repo, notifier: notifier, auditor: auditor}
}

var admin = Caller{UserID: "admin-1", Email: "admin@example.com", Role: RoleAdmin}

func TestRegisterPatient_AndLogin(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	u, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{
		Email: "Ada@Example.com", FirstName: "Ada", LastName: "Lovelace", Password: "analytical",
	})
	require.NoError(t, err)
	assert.Equal(t, RolePatient, u.Role)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Empty(t, u.UniqueID)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notify.TemplateWelcomeEmail, f.notifier.sent[0].Template)
	assert.Equal(t, "https://app.example.com/login", f.notifier.sent[0].Data["loginUrl"])

	result, err := f.svc.Login(ctx, "ada@example.com", "analytical")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, u.ID, result.User.ID)

	assert.Equal(t, audit.ActionLogin, f.auditor.events[len(f.auditor.events)-1].Action)
}

func TestRegisterPatient_DuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	req := RegisterPatientRequest{Email: "p@example.com", FirstName: "P", LastName: "Q", Password: "password1"}
	_, err := f.svc.RegisterPatient(context.Background(), req)
	require.NoError(t, err)
	_, err = f.svc.RegisterPatient(context.Background(), req)
	assert.True(t, errors.Is(err, ErrEmailTaken))
}

func TestRegisterPatient_Validation(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.RegisterPatient(context.Background(), RegisterPatientRequest{Email: "nope", Password: "short"})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	for _, field := range []string{"email", "firstName", "lastName", "password"} {
		assert.Contains(t, appErr.Details, field)
	}
}

func TestCreateStaff_IssuesUniqueIDAndCredentials(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	account, err := f.svc.CreateStaff(ctx, admin, CreateStaffRequest{
		Email: "house@example.com", FirstName: "Greg", LastName: "House", Role: RoleDoctor,
	})
	require.NoError(t, err)
	assert.True(t, IsUniqueID(account.User.UniqueID))
	assert.Len(t, account.TemporaryPassword, 12)

	require.Len(t, f.notifier.sent, 1)
	sent := f.notifier.sent[0]
	assert.Equal(t, notify.TemplateUserCredentials, sent.Template)
	assert.Equal(t, account.User.UniqueID, sent.Data["uniqueId"])
	assert.Equal(t, account.TemporaryPassword, sent.Data["password"])

	result, err := f.svc.Login(ctx, account.User.UniqueID, account.TemporaryPassword)
	require.NoError(t, err)
	assert.Equal(t, RoleDoctor, result.User.Role)

	_, err = f.svc.Login(ctx, "house@example.com", account.TemporaryPassword)
	require.NoError(t, err)
}

func TestCreateStaff_RequiresAdmin(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreateStaff(context.Background(), Caller{UserID: "r", Role: RoleReception}, CreateStaffRequest{
		Email: "x@example.com", FirstName: "X", LastName: "Y", Role: RoleDoctor,
	})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestCreateStaff_RejectsPatientRole(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.CreateStaff(context.Background(), admin, CreateStaffRequest{
		Email: "x@example.com", FirstName: "X", LastName: "Y", Role: RolePatient,
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestLogin_Failures(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "p@example.com", FirstName: "P", LastName: "Q", Password: "password1"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "p@example.com", "wrong-password")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	_, err = f.svc.Login(ctx, "ghost@example.com", "password1")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))

	require.NoError(t, f.svc.Deactivate(ctx, admin, u.ID))
	_, err = f.svc.Login(ctx, "p@example.com", "password1")
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestRefresh(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "p@example.com", FirstName: "P", LastName: "Q", Password: "password1"})
	require.NoError(t, err)
	login, err := f.svc.Login(ctx, "p@example.com", "password1")
	require.NoError(t, err)

	pair, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	_, err = f.svc.Refresh(ctx, login.AccessToken)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	require.NoError(t, f.svc.Deactivate(ctx, admin, login.User.ID))
	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestDeactivate_Self(t *testing.T) {
	f := newServiceFixture(t)
	err := f.svc.Deactivate(context.Background(), admin, admin.UserID)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestActivate_RestoresLogin(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "p@example.com", FirstName: "P", LastName: "Q", Password: "password1"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Deactivate(ctx, admin, u.ID))

	err = f.svc.Activate(ctx, Caller{UserID: "r", Role: RoleReception}, u.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	assert.True(t, errors.Is(f.svc.Activate(ctx, admin, "missing"), ErrUserNotFound))

	require.NoError(t, f.svc.Activate(ctx, admin, u.ID))
	_, err = f.svc.Login(ctx, "p@example.com", "password1")
	require.NoError(t, err)

	last := f.auditor.events[len(f.auditor.events)-1]
	assert.Equal(t, audit.ActionActivate, last.Action)
	assert.Equal(t, u.ID, last.ResourceID)
}

func TestResetPassword_IssuesAndSendsTemporaryPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	account, err := f.svc.CreateStaff(ctx, admin, CreateStaffRequest{
		Email: "house@example.com", FirstName: "Greg", LastName: "House", Role: RoleDoctor,
	})
	require.NoError(t, err)

	reset, err := f.svc.ResetPassword(ctx, admin, account.User.ID)
	require.NoError(t, err)
	assert.Equal(t, account.User.ID, reset.UserID)
	assert.Len(t, reset.TemporaryPassword, 12)
	assert.NotEqual(t, account.TemporaryPassword, reset.TemporaryPassword)

	_, err = f.svc.Login(ctx, account.User.UniqueID, account.TemporaryPassword)
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	_, err = f.svc.Login(ctx, account.User.UniqueID, reset.TemporaryPassword)
	require.NoError(t, err)

	require.Len(t, f.notifier.sent, 2)
	sent := f.notifier.sent[1]
	assert.Equal(t, notify.TemplatePasswordReset, sent.Template)
	assert.Equal(t, "house@example.com", sent.Recipient.Email)
	assert.Equal(t, reset.TemporaryPassword, sent.Data["password"])
	assert.Equal(t, "https://app.example.com/login", sent.Data["loginUrl"])

	last := f.auditor.events[len(f.auditor.events)-1]
	assert.Equal(t, audit.ActionPasswordReset, last.Action)
	assert.Equal(t, admin.UserID, last.UserID)
	assert.NotContains(t, string(last.Changes), reset.TemporaryPassword)
}

func TestResetPassword_Rejections(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.ResetPassword(ctx, Caller{UserID: "d", Role: RoleDoctor}, "any")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = f.svc.ResetPassword(ctx, admin, "missing")
	assert.True(t, errors.Is(err, ErrUserNotFound))
	assert.Empty(t, f.notifier.sent)
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "p@example.com", FirstName: "P", LastName: "Q", Password: "password1"})
	require.NoError(t, err)

	assert.True(t, errors.Is(f.svc.ChangePassword(ctx, u.ID, "wrong", "password2"), ErrInvalidCredentials))
	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "password1", "password2"))

	_, err = f.svc.Login(ctx, "p@example.com", "password2")
	assert.NoError(t, err)
}

func TestGetMany_SkipsUnknown(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "p@example.com", FirstName: "P", LastName: "Q", Password: "password1"})
	require.NoError(t, err)

	users, err := f.svc.GetMany(ctx, []string{u.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "P", users[u.ID].FirstName)
}

func TestAuditFailureDoesNotBlock(t *testing.T) {
	f := newServiceFixture(t)
	f.auditor.err = errors.New("db down")
	_, err := f.svc.RegisterPatient(context.Background(), RegisterPatientRequest{Email: "p@example.com", FirstName: "P", LastName: "Q", Password: "password1"})
	assert.NoError(t, err)
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.EnsureAdmin(ctx, "root@example.com", "bootstrap-pass"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "root@example.com", "bootstrap-pass"))

	admins, err := f.svc.ListByRole(ctx, RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, admins, 1)
}
