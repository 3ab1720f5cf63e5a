package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/security"

	"github.com/google/uuid"
)

const refreshTokenBytes = 32

// DTOs for Request validation
type RegisterRequest struct {
	Email    string  `json:"email" binding:"required,email"`
	Username *string `json:"username" binding:"omitempty,min=3,max=50"`
	Phone    *string `json:"phone" binding:"omitempty,e164"`
	Password string  `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type VerifyPhoneRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
	Code  string `json:"code" binding:"required"`
}

type ResendRequest struct {
	Target string `json:"target" binding:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

type UpdateEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ConfirmEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type UpdatePhoneRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
}

type ConfirmPhoneRequest struct {
	Phone string `json:"phone" binding:"required,e164"`
	Code  string `json:"code" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Session is the authenticated subject of a request.
type Session struct {
	User           *model.User
	RefreshTokenID uuid.UUID
}

type AuthSettings struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Now             func() time.Time
}

type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Authenticate(ctx context.Context, accessToken string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, session *Session) error
	LogoutAll(ctx context.Context, userID uuid.UUID) error

	VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*UserResponse, error)
	VerifyPhone(ctx context.Context, req VerifyPhoneRequest) (*UserResponse, error)
	ResendEmailVerification(ctx context.Context, email string) error
	ResendPhoneVerification(ctx context.Context, phone string) error

	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error

	RequestEmailUpdate(ctx context.Context, userID uuid.UUID, email string) error
	ConfirmEmailUpdate(ctx context.Context, userID uuid.UUID, req ConfirmEmailRequest) (*UserResponse, error)
	RequestPhoneUpdate(ctx context.Context, userID uuid.UUID, phone string) error
	ConfirmPhoneUpdate(ctx context.Context, userID uuid.UUID, req ConfirmPhoneRequest) (*UserResponse, error)

	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}

type authService struct {
	users     repository.UserRepository
	tokens    repository.RefreshTokenRepository
	txManager repository.TransactionManager
	codes     VerificationService
	audit     AuditService
	hasher    *security.PasswordHasher
	issuer    *security.TokenIssuer
	logger    *slog.Logger
	settings  AuthSettings
}

func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	txManager repository.TransactionManager,
	codes VerificationService,
	audit AuditService,
	hasher *security.PasswordHasher,
	issuer *security.TokenIssuer,
	logger *slog.Logger,
	settings AuthSettings,
) AuthService {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &authService{
		users:     users,
		tokens:    tokens,
		txManager: txManager,
		codes:     codes,
		audit:     audit,
		hasher:    hasher,
		issuer:    issuer,
		logger:    logger,
		settings:  settings,
	}
}

var errInvalidCredentials = apperror.New(apperror.ErrUnauthorized, "invalid email or password")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// optional trims s and maps blank values to nil.
func optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// withAudit runs fn and records entry in the same transaction, publishing it
// once committed.
func (s *authService) withAudit(ctx context.Context, entry *model.AuditLog, fn func(txCtx context.Context) error) error {
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if fn != nil {
			if err := fn(txCtx); err != nil {
				return err
			}
		}
		return s.audit.Record(txCtx, entry)
	})
	if err != nil {
		return err
	}
	s.audit.Publish(entry)
	return nil
}

func (s *authService) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	email := normalizeEmail(req.Email)
	username := optional(req.Username)
	phone := optional(req.Phone)

	exists, err := s.users.ExistsByIdentity(ctx, email, username, phone)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.New(apperror.ErrConflict, "User already exists")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:             email,
		Username:          username,
		Phone:             phone,
		PasswordHash:      hash,
		Role:              model.RoleCustomer,
		PasswordChangedAt: s.settings.Now(),
	}

	entry := newAuditEntry(nil, model.ActionRegister, "", email, nil)
	err = s.withAudit(ctx, entry, func(txCtx context.Context) error {
		// The unique indexes catch a registration racing the existence check.
		if err := s.users.Create(txCtx, user); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return apperror.Wrap(apperror.ErrConflict, "User already exists", err)
			}
			return err
		}
		entry.UserID = &user.ID
		entry.EntityID = user.ID.String()
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The account stands on its own; a failed issue is recoverable through resend.
	if err := s.codes.Issue(ctx, model.PurposeVerifyEmail, user.Email, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to issue email verification code", "user_id", user.ID, "error", err)
	}
	if user.Phone != nil {
		if err := s.codes.Issue(ctx, model.PurposeVerifyPhone, *user.Phone, user); err != nil {
			s.logger.ErrorContext(ctx, "failed to issue phone verification code", "user_id", user.ID, "error", err)
		}
	}

	return ToUserResponse(user), nil
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	email := normalizeEmail(req.Email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		// Spend the same bcrypt time as a real comparison.
		s.hasher.Burn(req.Password)
		s.recordFailedLogin(ctx, nil, email, "unknown_email")
		return nil, errInvalidCredentials
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		s.recordFailedLogin(ctx, &user.ID, email, "bad_password")
		return nil, errInvalidCredentials
	}
	if !user.Verified {
		s.recordFailedLogin(ctx, &user.ID, email, "unverified")
		return nil, apperror.New(apperror.ErrUnauthorized, "User not verified")
	}

	raw, err := security.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	now := s.settings.Now()
	record := &model.RefreshToken{
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: now.Add(s.settings.RefreshTokenTTL),
		CreatedAt: now,
	}

	entry := newAuditEntry(&user.ID, model.ActionLogin, user.ID.String(), user.Email, nil)
	err = s.withAudit(ctx, entry, func(txCtx context.Context) error {
		return s.tokens.Create(txCtx, record)
	})
	if err != nil {
		return nil, err
	}

	return s.tokenResponse(user.ID, record)
}

func (s *authService) recordFailedLogin(ctx context.Context, userID *uuid.UUID, email, reason string) {
	entry := newAuditEntry(userID, model.ActionLoginFailed, "", email, map[string]interface{}{"reason": reason})
	if err := s.withAudit(ctx, entry, nil); err != nil {
		s.logger.WarnContext(ctx, "failed to record failed login", "error", err)
	}
}

func (s *authService) tokenResponse(userID uuid.UUID, record *model.RefreshToken) (*TokenResponse, error) {
	access, err := s.issuer.Issue(userID, record.ID)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: record.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.settings.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *authService) Authenticate(ctx context.Context, accessToken string) (*Session, error) {
	userID, refreshID, err := s.issuer.Parse(accessToken)
	if err != nil {
		return nil, err
	}

	record, err := s.tokens.GetByID(ctx, refreshID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrUnauthorized, "Session revoked", err)
		}
		return nil, err
	}
	if record.UserID != userID {
		return nil, apperror.New(apperror.ErrUnauthorized, "Invalid token")
	}

	user, err := s.validateSession(ctx, record)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, RefreshTokenID: record.ID}, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	record, err := s.tokens.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrUnauthorized, "Invalid refresh token", err)
		}
		return nil, err
	}

	user, err := s.validateSession(ctx, record)
	if err != nil {
		return nil, err
	}
	return s.tokenResponse(user.ID, record)
}

// validateSession applies the refresh token rules shared by access token
// validation and the refresh endpoint.
func (s *authService) validateSession(ctx context.Context, record *model.RefreshToken) (*model.User, error) {
	if !record.Live(s.settings.Now()) {
		return nil, apperror.New(apperror.ErrUnauthorized, "Session expired")
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrUnauthorized, "User no longer exists", err)
		}
		return nil, err
	}
	if !user.Verified {
		return nil, apperror.New(apperror.ErrUnauthorized, "User not verified")
	}
	if user.PasswordChangedAt.After(record.CreatedAt) {
		return nil, apperror.New(apperror.ErrUnauthorized, "Password changed, please log in again")
	}
	return user, nil
}

func (s *authService) Logout(ctx context.Context, session *Session) error {
	entry := newAuditEntry(&session.User.ID, model.ActionLogout, session.RefreshTokenID.String(), session.User.Email, nil)
	return s.withAudit(ctx, entry, func(txCtx context.Context) error {
		return s.tokens.Delete(txCtx, session.RefreshTokenID)
	})
}

func (s *authService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	entry := newAuditEntry(&userID, model.ActionLogoutAll, userID.String(), "", nil)
	return s.withAudit(ctx, entry, func(txCtx context.Context) error {
		n, err := s.tokens.DeleteByUser(txCtx, userID)
		entry.Details = detailsJSON(map[string]interface{}{"sessions": n})
		return err
	})
}

func (s *authService) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*UserResponse, error) {
	email := normalizeEmail(req.Email)
	code, err := s.codes.Consume(ctx, req.Code, email, model.PurposeVerifyEmail)
	if err != nil {
		return nil, err
	}

	var user *model.User
	entry := newAuditEntry(&code.UserID, model.ActionVerifyEmail, code.UserID.String(), email, nil)
	err = s.withAudit(ctx, entry, func(txCtx context.Context) error {
		user, err = s.users.GetByID(txCtx, code.UserID)
		if err != nil {
			return err
		}
		if user.Email != email {
			return apperror.New(apperror.ErrNotFound, "Invalid or expired code")
		}
		user.Verified = true
		user.EmailValidated = true
		return s.users.UpdateFields(txCtx, user.ID, map[string]interface{}{
			"verified":        true,
			"email_validated": true,
		})
	})
	if err != nil {
		return nil, err
	}
	return ToUserResponse(user), nil
}

func (s *authService) VerifyPhone(ctx context.Context, req VerifyPhoneRequest) (*UserResponse, error) {
	phone := strings.TrimSpace(req.Phone)
	code, err := s.codes.Consume(ctx, req.Code, phone, model.PurposeVerifyPhone)
	if err != nil {
		return nil, err
	}

	var user *model.User
	entry := newAuditEntry(&code.UserID, model.ActionVerifyPhone, code.UserID.String(), phone, nil)
	err = s.withAudit(ctx, entry, func(txCtx context.Context) error {
		user, err = s.users.GetByID(txCtx, code.UserID)
		if err != nil {
			return err
		}
		if user.Phone == nil || *user.Phone != phone {
			return apperror.New(apperror.ErrNotFound, "Invalid or expired code")
		}
		user.PhoneValidated = true
		return s.users.UpdateFields(txCtx, user.ID, map[string]interface{}{"phone_validated": true})
	})
	if err != nil {
		return nil, err
	}
	return ToUserResponse(user), nil
}

// ResendEmailVerification is silent about whether the address is registered.
// Lookup and issuance failures are logged, never returned.
func (s *authService) ResendEmailVerification(ctx context.Context, email string) error {
	user, ok := s.lookupQuietly(ctx, "email", func() (*model.User, error) {
		return s.users.GetByEmail(ctx, normalizeEmail(email))
	})
	if !ok || user.EmailValidated {
		return nil
	}
	s.issueQuietly(ctx, model.PurposeVerifyEmail, user.Email, user)
	return nil
}

func (s *authService) ResendPhoneVerification(ctx context.Context, phone string) error {
	user, ok := s.lookupQuietly(ctx, "phone", func() (*model.User, error) {
		return s.users.GetByPhone(ctx, strings.TrimSpace(phone))
	})
	if !ok || user.PhoneValidated || user.Phone == nil {
		return nil
	}
	s.issueQuietly(ctx, model.PurposeVerifyPhone, *user.Phone, user)
	return nil
}

// RequestPasswordReset issues a code only for verified accounts and reports
// success either way.
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	user, ok := s.lookupQuietly(ctx, "email", func() (*model.User, error) {
		return s.users.GetByEmail(ctx, normalizeEmail(email))
	})
	if !ok || !user.Verified {
		return nil
	}
	if !s.issueQuietly(ctx, model.PurposeResetPassword, user.Email, user) {
		return nil
	}

	entry := newAuditEntry(&user.ID, model.ActionRequestPasswordReset, user.ID.String(), user.Email, nil)
	if err := s.withAudit(ctx, entry, nil); err != nil {
		s.logger.WarnContext(ctx, "failed to record password reset request", "error", err)
	}
	return nil
}

func (s *authService) lookupQuietly(ctx context.Context, by string, get func() (*model.User, error)) (*model.User, bool) {
	user, err := get()
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to look up account", "by", by, "error", err)
		}
		return nil, false
	}
	return user, true
}

func (s *authService) issueQuietly(ctx context.Context, purpose, target string, user *model.User) bool {
	if err := s.codes.Issue(ctx, purpose, target, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to issue verification code",
			"purpose", purpose, "user_id", user.ID, "error", err)
		return false
	}
	return true
}

func (s *authService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	email := normalizeEmail(req.Email)
	code, err := s.codes.Consume(ctx, req.Code, email, model.PurposeResetPassword)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	entry := newAuditEntry(&code.UserID, model.ActionResetPassword, code.UserID.String(), email, nil)
	return s.withAudit(ctx, entry, func(txCtx context.Context) error {
		return s.setPassword(txCtx, code.UserID, hash)
	})
}

func (s *authService) ChangePassword(ctx context.Context, userID uuid.UUID, req ChangePasswordRequest) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(req.OldPassword, user.PasswordHash) {
		return apperror.New(apperror.ErrUnauthorized, "Current password is incorrect")
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	entry := newAuditEntry(&user.ID, model.ActionChangePassword, user.ID.String(), user.Email, nil)
	return s.withAudit(ctx, entry, func(txCtx context.Context) error {
		return s.setPassword(txCtx, user.ID, hash)
	})
}

// setPassword stores the hash, moves passwordChangedAt forward and drops every
// refresh token issued under the old password.
func (s *authService) setPassword(ctx context.Context, userID uuid.UUID, hash string) error {
	if err := s.users.UpdatePassword(ctx, userID, hash, s.settings.Now()); err != nil {
		return err
	}
	_, err := s.tokens.DeleteByUser(ctx, userID)
	return err
}

func (s *authService) RequestEmailUpdate(ctx context.Context, userID uuid.UUID, email string) error {
	email = normalizeEmail(email)
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == email {
		return apperror.New(apperror.ErrValidation, "New email matches the current one")
	}
	if err := s.ensureAvailable(ctx, &email, nil); err != nil {
		return err
	}
	return s.codes.Issue(ctx, model.PurposeUpdateEmail, email, user)
}

func (s *authService) ConfirmEmailUpdate(ctx context.Context, userID uuid.UUID, req ConfirmEmailRequest) (*UserResponse, error) {
	email := normalizeEmail(req.Email)
	code, err := s.codes.Consume(ctx, req.Code, email, model.PurposeUpdateEmail)
	if err != nil {
		return nil, err
	}
	if code.UserID != userID {
		return nil, apperror.New(apperror.ErrNotFound, "Invalid or expired code")
	}

	var user *model.User
	entry := newAuditEntry(&userID, model.ActionUpdateEmail, userID.String(), email, nil)
	err = s.withAudit(ctx, entry, func(txCtx context.Context) error {
		user, err = s.users.GetByID(txCtx, userID)
		if err != nil {
			return err
		}
		entry.Details = detailsJSON(map[string]interface{}{"previous": user.Email})
		user.Email = email
		user.EmailValidated = true
		err := s.users.UpdateFields(txCtx, user.ID, map[string]interface{}{
			"email":           email,
			"email_validated": true,
		})
		if err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return apperror.Wrap(apperror.ErrConflict, "Email already in use", err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToUserResponse(user), nil
}

func (s *authService) RequestPhoneUpdate(ctx context.Context, userID uuid.UUID, phone string) error {
	phone = strings.TrimSpace(phone)
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Phone != nil && *user.Phone == phone {
		return apperror.New(apperror.ErrValidation, "New phone matches the current one")
	}
	if err := s.ensureAvailable(ctx, nil, &phone); err != nil {
		return err
	}
	return s.codes.Issue(ctx, model.PurposeUpdatePhone, phone, user)
}

func (s *authService) ConfirmPhoneUpdate(ctx context.Context, userID uuid.UUID, req ConfirmPhoneRequest) (*UserResponse, error) {
	phone := strings.TrimSpace(req.Phone)
	code, err := s.codes.Consume(ctx, req.Code, phone, model.PurposeUpdatePhone)
	if err != nil {
		return nil, err
	}
	if code.UserID != userID {
		return nil, apperror.New(apperror.ErrNotFound, "Invalid or expired code")
	}

	var user *model.User
	entry := newAuditEntry(&userID, model.ActionUpdatePhone, userID.String(), phone, nil)
	err = s.withAudit(ctx, entry, func(txCtx context.Context) error {
		user, err = s.users.GetByID(txCtx, userID)
		if err != nil {
			return err
		}
		user.Phone = &phone
		user.PhoneValidated = true
		err := s.users.UpdateFields(txCtx, user.ID, map[string]interface{}{
			"phone":           phone,
			"phone_validated": true,
		})
		if err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return apperror.Wrap(apperror.ErrConflict, "Phone already in use", err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ToUserResponse(user), nil
}

// ensureAvailable fails with ErrConflict when another account holds the email or phone.
func (s *authService) ensureAvailable(ctx context.Context, email, phone *string) error {
	if email != nil {
		if _, err := s.users.GetByEmail(ctx, *email); err == nil {
			return apperror.New(apperror.ErrConflict, "Email already in use")
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
	}
	if phone != nil {
		if _, err := s.users.GetByPhone(ctx, *phone); err == nil {
			return apperror.New(apperror.ErrConflict, "Phone already in use")
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *authService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	entry := newAuditEntry(&userID, model.ActionDeleteAccount, userID.String(), "", nil)
	return s.withAudit(ctx, entry, func(txCtx context.Context) error {
		return s.users.Delete(txCtx, userID)
	})
}
