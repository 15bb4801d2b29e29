// Package authpw provides email/password authentication with verification
// for staff accounts and donor accounts.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"donorbase/api/internal/store"
	"donorbase/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

// Service provides email/password authentication
type Service struct {
	store AccountStore
}

// AccountStore defines the storage interface for auth
type AccountStore interface {
	GetStaffByEmail(ctx context.Context, email string) (store.StaffAccount, error)
	CreateStaffAccount(ctx context.Context, account store.StaffAccount) error
	UpdateStaffVerificationToken(ctx context.Context, staffAccountID, token string, expiresAt time.Time) error
	VerifyStaffEmail(ctx context.Context, token string) error
	UpdateStaffPassword(ctx context.Context, staffAccountID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, staffAccountID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error

	GetDonorByEmail(ctx context.Context, organizationID, email string) (store.DonorAccount, error)
	CreateDonorAccount(ctx context.Context, donor store.DonorAccount) error
}

// NewService creates a new auth service
func NewService(accounts AccountStore) *Service {
	return &Service{store: accounts}
}

// SignUpRequest contains staff sign-up parameters
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	StaffAccountID      string
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new staff account
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		return nil, errors.New("email, password, and display name are required")
	}

	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetStaffByEmail(ctx, req.Email); err == nil {
		return nil, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	account := store.StaffAccount{
		ID:                util.NewID("stf"),
		Email:             req.Email,
		DisplayName:       req.DisplayName,
		PasswordHash:      string(hash),
		IsEmailVerified:   false,
		VerificationToken: verificationToken,
	}

	if err := s.store.CreateStaffAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create staff account: %w", err)
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	if err := s.store.UpdateStaffVerificationToken(ctx, account.ID, verificationToken, expiresAt); err != nil {
		return nil, fmt.Errorf("set verification expiry: %w", err)
	}

	return &SignUpResponse{
		StaffAccountID:      account.ID,
		VerificationToken:   verificationToken,
		RequiresEmailVerify: true,
	}, nil
}

// SignInRequest contains staff sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignInResponse contains sign-in result
type SignInResponse struct {
	Account        store.StaffAccount
	RequiresVerify bool
}

// SignIn authenticates a staff account
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	account, err := s.store.GetStaffByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !account.IsEmailVerified {
		return &SignInResponse{
			Account:        account,
			RequiresVerify: true,
		}, nil
	}

	return &SignInResponse{
		Account:        account,
		RequiresVerify: false,
	}, nil
}

// VerifyEmail verifies a staff email address using a token
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("verification token required")
	}

	if err := s.store.VerifyStaffEmail(ctx, token); err != nil {
		return errors.New("invalid or expired verification token")
	}

	return nil
}

// RequestPasswordReset creates a password reset token
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	account, err := s.store.GetStaffByEmail(ctx, email)
	if err != nil {
		// Don't reveal if email exists
		return "", nil
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(1 * time.Hour)
	if err := s.store.CreatePasswordReset(ctx, account.ID, token, expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword resets a staff password using a reset token
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.NewPassword == "" {
		return errors.New("token and new password are required")
	}

	if len(req.NewPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	staffAccountID, err := s.store.GetPasswordReset(ctx, req.Token)
	if err != nil {
		return errors.New("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdateStaffPassword(ctx, staffAccountID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.store.MarkPasswordResetUsed(ctx, req.Token); err != nil {
		// Password was already reset; a lingering token row is harmless
	}

	return nil
}

// DonorSignUpRequest contains donor sign-up parameters
type DonorSignUpRequest struct {
	OrganizationID string
	Email          string
	Password       string
	DisplayName    string
}

// DonorSignUp creates a donor account scoped to one organization
func (s *Service) DonorSignUp(ctx context.Context, req DonorSignUpRequest) (store.DonorAccount, error) {
	if req.OrganizationID == "" || req.Email == "" || req.Password == "" {
		return store.DonorAccount{}, errors.New("organization, email, and password are required")
	}

	if len(req.Password) < 8 {
		return store.DonorAccount{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetDonorByEmail(ctx, req.OrganizationID, req.Email); err == nil {
		return store.DonorAccount{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.DonorAccount{}, fmt.Errorf("hash password: %w", err)
	}

	donor := store.DonorAccount{
		ID:             util.NewID("dnr"),
		OrganizationID: req.OrganizationID,
		Email:          req.Email,
		DisplayName:    req.DisplayName,
		PasswordHash:   string(hash),
	}

	if err := s.store.CreateDonorAccount(ctx, donor); err != nil {
		return store.DonorAccount{}, fmt.Errorf("create donor account: %w", err)
	}

	return donor, nil
}

// DonorSignIn authenticates a donor within one organization
func (s *Service) DonorSignIn(ctx context.Context, organizationID, email, password string) (store.DonorAccount, error) {
	if organizationID == "" || email == "" || password == "" {
		return store.DonorAccount{}, errors.New("organization, email, and password are required")
	}

	donor, err := s.store.GetDonorByEmail(ctx, organizationID, email)
	if err != nil {
		return store.DonorAccount{}, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(donor.PasswordHash), []byte(password)); err != nil {
		return store.DonorAccount{}, errors.New("invalid email or password")
	}

	return donor, nil
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
