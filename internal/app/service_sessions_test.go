package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"donorbase/api/internal/auth"
	"donorbase/api/internal/store"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

func staffAccountFixture(t *testing.T, password string) store.StaffAccount {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return store.StaffAccount{
		ID:              "stf_1",
		Email:           "ana@example.org",
		DisplayName:     "Ana",
		PasswordHash:    string(hash),
		IsEmailVerified: true,
	}
}

func signInStore(t *testing.T, account store.StaffAccount, roles []store.StaffRole) *fakeStore {
	t.Helper()
	return &fakeStore{
		getStaffByEmailFn: func(_ context.Context, email string) (store.StaffAccount, error) {
			if email != account.Email {
				return store.StaffAccount{}, sql.ErrNoRows
			}
			return account, nil
		},
		getStaffByIDFn: func(_ context.Context, staffAccountID string) (store.StaffAccount, error) {
			if staffAccountID != account.ID {
				return store.StaffAccount{}, sql.ErrNoRows
			}
			return account, nil
		},
		listStaffRolesForAccountFn: func(context.Context, string) ([]store.StaffRole, error) {
			return roles, nil
		},
		getStaffRoleFn: func(_ context.Context, organizationID, staffAccountID string) (store.StaffRole, error) {
			for _, role := range roles {
				if role.OrganizationID == organizationID && role.StaffAccountID == staffAccountID {
					return role, nil
				}
			}
			return store.StaffRole{}, sql.ErrNoRows
		},
	}
}

func TestStaffSignInBindsFirstMembership(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	fs := signInStore(t, account, []store.StaffRole{
		{StaffAccountID: account.ID, OrganizationID: "org_1", Role: "admin"},
		{StaffAccountID: account.ID, OrganizationID: "org_2", Role: "editor"},
	})
	service, _ := newTestService(fs)

	sess, err := service.StaffSignIn(context.Background(), account.Email, "opensesame", "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if sess.OrganizationID != "org_1" || sess.Role != "admin" {
		t.Fatalf("unexpected binding %+v", sess)
	}
	if sess.Token == "" || sess.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
}

func TestStaffSignInExplicitOrganization(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	fs := signInStore(t, account, []store.StaffRole{
		{StaffAccountID: account.ID, OrganizationID: "org_1", Role: "admin"},
		{StaffAccountID: account.ID, OrganizationID: "org_2", Role: "editor"},
	})
	service, _ := newTestService(fs)

	sess, err := service.StaffSignIn(context.Background(), account.Email, "opensesame", "org_2")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if sess.OrganizationID != "org_2" || sess.Role != "editor" {
		t.Fatalf("unexpected binding %+v", sess)
	}

	_, err = service.StaffSignIn(context.Background(), account.Email, "opensesame", "org_other")
	requireDomainError(t, err, 404, "NOT_FOUND")
}

func TestStaffSignInWithoutMembershipIsUnbound(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	fs := signInStore(t, account, nil)
	service, _ := newTestService(fs)

	sess, err := service.StaffSignIn(context.Background(), account.Email, "opensesame", "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if sess.OrganizationID != "" || sess.Role != "" {
		t.Fatalf("expected unbound session, got %+v", sess)
	}
}

func TestStaffSignInRejectsBadPassword(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	service, _ := newTestService(signInStore(t, account, nil))

	_, err := service.StaffSignIn(context.Background(), account.Email, "wrong", "")
	requireDomainError(t, err, 401, "INVALID_CREDENTIALS")
}

func TestStaffSignInRequiresVerifiedEmail(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	account.IsEmailVerified = false
	service, _ := newTestService(signInStore(t, account, nil))

	_, err := service.StaffSignIn(context.Background(), account.Email, "opensesame", "")
	requireDomainError(t, err, 403, "EMAIL_NOT_VERIFIED")
}

func TestSessionFromTokenRoundTrip(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	fs := signInStore(t, account, []store.StaffRole{
		{StaffAccountID: account.ID, OrganizationID: "org_1", Role: "admin"},
	})
	service, _ := newTestService(fs)

	issued, err := service.StaffSignIn(context.Background(), account.Email, "opensesame", "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	sess, err := service.SessionFromToken(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("token rejected: %v", err)
	}
	if sess.AccountID != account.ID || sess.OrganizationID != "org_1" || sess.Role != "admin" || sess.Kind != auth.KindStaff {
		t.Fatalf("unexpected session %+v", sess)
	}
	if sess.DisplayName != "Ana" {
		t.Fatalf("display name not reloaded: %q", sess.DisplayName)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	fs := signInStore(t, account, []store.StaffRole{
		{StaffAccountID: account.ID, OrganizationID: "org_1", Role: "admin"},
	})
	service, _ := newTestService(fs)

	issued, err := service.StaffSignIn(context.Background(), account.Email, "opensesame", "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if err := service.Logout(context.Background(), issued, issued.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if _, err := service.SessionFromToken(context.Background(), issued.Token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
	if _, err := service.Refresh(context.Background(), issued.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected revoked refresh token to be rejected, got %v", err)
	}
}

func TestRefreshRotatesAndReloadsRole(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	currentRole := "admin"
	fs := signInStore(t, account, nil)
	fs.listStaffRolesForAccountFn = func(context.Context, string) ([]store.StaffRole, error) {
		return []store.StaffRole{{StaffAccountID: account.ID, OrganizationID: "org_1", Role: currentRole}}, nil
	}
	fs.getStaffRoleFn = func(context.Context, string, string) (store.StaffRole, error) {
		return store.StaffRole{StaffAccountID: account.ID, OrganizationID: "org_1", Role: currentRole}, nil
	}
	service, _ := newTestService(fs)

	issued, err := service.StaffSignIn(context.Background(), account.Email, "opensesame", "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	currentRole = "editor"
	rotated, err := service.Refresh(context.Background(), issued.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotated.Role != "editor" {
		t.Fatalf("role change not picked up on rotation: %+v", rotated)
	}
	if rotated.RefreshToken == issued.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	if _, err := service.Refresh(context.Background(), issued.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected spent refresh token to be rejected, got %v", err)
	}
}

func TestRefreshRejectsRevokedMembership(t *testing.T) {
	account := staffAccountFixture(t, "opensesame")
	fs := signInStore(t, account, []store.StaffRole{
		{StaffAccountID: account.ID, OrganizationID: "org_1", Role: "editor"},
	})
	service, _ := newTestService(fs)

	issued, err := service.StaffSignIn(context.Background(), account.Email, "opensesame", "")
	if err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	fs.getStaffRoleFn = func(context.Context, string, string) (store.StaffRole, error) {
		return store.StaffRole{}, sql.ErrNoRows
	}
	if _, err := service.Refresh(context.Background(), issued.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected refresh to fail after membership removal, got %v", err)
	}
}

func TestInviteStaff(t *testing.T) {
	fs := &fakeStore{
		getStaffByEmailFn: func(_ context.Context, email string) (store.StaffAccount, error) {
			if email == "bo@example.org" {
				return store.StaffAccount{ID: "stf_2", Email: email, DisplayName: "Bo"}, nil
			}
			return store.StaffAccount{}, sql.ErrNoRows
		},
	}
	service, _ := newTestService(fs)
	sess := staffSession("org_1", "admin")

	payload, err := service.InviteStaff(context.Background(), sess, "bo@example.org", "editor")
	if err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	if payload["staffAccountId"] != "stf_2" || payload["role"] != "editor" {
		t.Fatalf("unexpected payload %v", payload)
	}

	if _, err := service.InviteStaff(context.Background(), sess, "nobody@example.org", "editor"); err == nil {
		t.Fatal("expected 404 for unknown email")
	} else {
		requireDomainError(t, err, 404, "NOT_FOUND")
	}

	_, err = service.InviteStaff(context.Background(), sess, "bo@example.org", "owner")
	requireDomainError(t, err, 400, "VALIDATION_ERROR")
}

func TestInviteStaffConflictOnDuplicateMembership(t *testing.T) {
	fs := &fakeStore{
		getStaffByEmailFn: func(_ context.Context, email string) (store.StaffAccount, error) {
			return store.StaffAccount{ID: "stf_2", Email: email}, nil
		},
		createStaffRoleFn: func(context.Context, store.StaffRole) error {
			return &pgconn.PgError{Code: "23505"}
		},
	}
	service, _ := newTestService(fs)

	_, err := service.InviteStaff(context.Background(), staffSession("org_1", "admin"), "bo@example.org", "editor")
	requireDomainError(t, err, 409, "ALREADY_MEMBER")
}

func TestStaffSelfManagementForbidden(t *testing.T) {
	service, _ := newTestService(&fakeStore{})
	sess := staffSession("org_1", "admin")

	if _, err := service.UpdateStaffRole(context.Background(), sess, sess.AccountID, "editor"); err == nil {
		t.Fatal("expected self role change to be forbidden")
	} else {
		requireDomainError(t, err, 403, "FORBIDDEN")
	}

	err := service.RemoveStaff(context.Background(), sess, sess.AccountID)
	requireDomainError(t, err, 403, "FORBIDDEN")
}

func TestRemoveStaffPropagatesLastAdmin(t *testing.T) {
	fs := &fakeStore{
		deleteStaffRoleFn: func(context.Context, string, string) error {
			return store.ErrLastAdmin
		},
	}
	service, _ := newTestService(fs)

	err := service.RemoveStaff(context.Background(), staffSession("org_1", "admin"), "stf_other")
	if !errors.Is(err, store.ErrLastAdmin) {
		t.Fatalf("expected ErrLastAdmin, got %v", err)
	}
}
