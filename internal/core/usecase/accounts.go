package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/deco-docflow/internal/core/domain"
	"github.com/kirillkom/deco-docflow/internal/core/ports"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgTempPasswordUsed   = "Temporary password already used. Use forgot password."
	msgTempPasswordLogin  = "Temporary password used. Use forgot password to generate a new one."
	msgInvalidOTP         = "Invalid or expired OTP"
	msgOTPRequired        = "OTP verification required before resetting the password"

	minPasswordLength = 8
)

type AccountUseCase struct {
	users    ports.UserRepository
	otps     ports.OTPStore
	tokens   ports.TokenIssuer
	hasher   ports.PasswordHasher
	notifier *Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewAccountUseCase(
	users ports.UserRepository,
	otps ports.OTPStore,
	tokens ports.TokenIssuer,
	hasher ports.PasswordHasher,
	notifier *Notifier,
	logger *slog.Logger,
) *AccountUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountUseCase{
		users:    users,
		otps:     otps,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		logger:   logger,
		now:      utcNow,
	}
}

func (uc *AccountUseCase) Register(ctx context.Context, in domain.RegisterInput) (*domain.Registration, error) {
	user := domain.User{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Email:       normalizeEmail(in.Email),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Address:     strings.TrimSpace(in.Address),
		State:       strings.TrimSpace(in.State),
		PinCode:     strings.TrimSpace(in.PinCode),
	}
	for _, v := range []string{user.FirstName, user.LastName, user.Email, user.PhoneNumber, user.Address, user.State, user.PinCode} {
		if v == "" {
			return nil, domain.Fail(domain.ErrInvalidArgument, "register", "Missing required fields")
		}
	}
	if !strings.Contains(user.Email, "@") {
		return nil, domain.Fail(domain.ErrInvalidArgument, "register", "Invalid email address")
	}
	if !in.TermsAccepted {
		return nil, domain.Fail(domain.ErrInvalidArgument, "register", "Terms must be accepted")
	}

	if _, err := uc.users.GetByEmail(ctx, user.Email); err == nil {
		return nil, domain.Fail(domain.ErrConflict, "register", "Email already registered")
	} else if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	tempPassword, err := generateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, err
	}
	placeholder, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	if user.TempPasswordHash, err = uc.hasher.Hash(tempPassword); err != nil {
		return nil, fmt.Errorf("hash temp password: %w", err)
	}
	if user.PasswordHash, err = uc.hasher.Hash(placeholder); err != nil {
		return nil, fmt.Errorf("hash placeholder password: %w", err)
	}

	now := uc.now()
	user.ID = uuid.NewString()
	user.Type = domain.RoleUser
	user.EmailVerified = true
	user.TermsAccepted = true
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := uc.users.Create(ctx, &user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := uc.tokens.IssuePair(user.Principal())
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	uc.notifier.SendWelcome(ctx, domain.WelcomeNotice{
		Email:        user.Email,
		FirstName:    user.FirstName,
		TempPassword: tempPassword,
	})

	return &domain.Registration{User: user, TempPassword: tempPassword, Tokens: tokens}, nil
}

// Login checks, in order: an unused temporary password, the stored
// password, then a temporary password that was already consumed.
func (uc *AccountUseCase) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, "login", "Missing credentials")
	}

	user, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.Fail(domain.ErrUnauthorized, "login", msgInvalidCredentials)
		}
		return nil, err
	}

	tempMatches := false
	if user.TempPasswordHash != "" {
		if tempMatches, err = uc.hasher.Verify(password, user.TempPasswordHash); err != nil {
			return nil, fmt.Errorf("verify temp password: %w", err)
		}
	}

	if tempMatches && !user.TempPasswordUsed {
		consumed, err := uc.users.ConsumeTempPassword(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("consume temp password: %w", err)
		}
		if !consumed {
			return nil, domain.Fail(domain.ErrUnauthorized, "login", msgTempPasswordUsed)
		}
		user.TempPasswordUsed = true
		return uc.loginResult(user, true, msgTempPasswordLogin)
	}

	passwordMatches, err := uc.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if passwordMatches {
		return uc.loginResult(user, false, "")
	}

	if tempMatches && user.TempPasswordUsed {
		return nil, domain.Fail(domain.ErrUnauthorized, "login", msgTempPasswordUsed)
	}
	return nil, domain.Fail(domain.ErrUnauthorized, "login", msgInvalidCredentials)
}

func (uc *AccountUseCase) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	principal, err := uc.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	user, err := uc.users.GetByID(ctx, principal.UserID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return domain.TokenPair{}, domain.Fail(domain.ErrUnauthorized, "refresh", "account no longer exists")
		}
		return domain.TokenPair{}, err
	}
	return uc.tokens.IssuePair(user.Principal())
}

func (uc *AccountUseCase) Me(ctx context.Context, caller domain.Principal) (*domain.User, error) {
	return uc.users.GetByID(ctx, caller.UserID)
}

func (uc *AccountUseCase) SendEmailOTP(ctx context.Context, email string) (*domain.OTPTicket, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, "send email otp", "Email is required")
	}

	firstName := ""
	if user, err := uc.users.GetByEmail(ctx, email); err == nil {
		firstName = user.FirstName
	}
	return uc.issueOTP(ctx, email, firstName, domain.OTPEmailVerification)
}

// VerifyEmailOTP consumes the record on success, so a code verifies at most once.
func (uc *AccountUseCase) VerifyEmailOTP(ctx context.Context, verificationID, code string) (string, error) {
	rec, err := uc.checkOTP(ctx, verificationID, code, domain.OTPEmailVerification)
	if err != nil {
		return "", err
	}
	consumed, err := uc.otps.Consume(ctx, rec.VerificationID)
	if err != nil {
		return "", fmt.Errorf("consume otp: %w", err)
	}
	if !consumed {
		return "", domain.Fail(domain.ErrUnauthorized, "verify email otp", msgInvalidOTP)
	}
	return rec.Email, nil
}

func (uc *AccountUseCase) StartForgotPassword(ctx context.Context, email string) (*domain.OTPTicket, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, "forgot password", "Email is required")
	}
	user, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.Fail(domain.ErrNotFound, "forgot password", "No account found with this email")
		}
		return nil, err
	}
	return uc.issueOTP(ctx, user.Email, user.FirstName, domain.OTPPasswordReset)
}

// VerifyForgotPassword keeps the record, flagged used, for ResetPassword and
// retires the account's temporary password.
func (uc *AccountUseCase) VerifyForgotPassword(ctx context.Context, verificationID, code string) (string, error) {
	rec, err := uc.checkOTP(ctx, verificationID, code, domain.OTPPasswordReset)
	if err != nil {
		return "", err
	}
	user, err := uc.users.GetByEmail(ctx, rec.Email)
	if err != nil {
		return "", err
	}
	marked, err := uc.otps.MarkUsed(ctx, rec.VerificationID)
	if err != nil {
		return "", fmt.Errorf("mark otp used: %w", err)
	}
	if !marked {
		return "", domain.Fail(domain.ErrUnauthorized, "verify forgot password", msgInvalidOTP)
	}
	if err := uc.users.MarkTempPasswordUsed(ctx, user.ID); err != nil {
		return "", fmt.Errorf("retire temp password: %w", err)
	}
	return rec.Email, nil
}

func (uc *AccountUseCase) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = normalizeEmail(email)
	if email == "" || newPassword == "" {
		return domain.Fail(domain.ErrInvalidArgument, "reset password", "Email and new password are required")
	}
	if len([]rune(newPassword)) < minPasswordLength {
		return domain.Fail(domain.ErrInvalidArgument, "reset password", "Password must be at least 8 characters")
	}

	user, err := uc.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	rec, err := uc.otps.LatestUsed(ctx, email, domain.OTPPasswordReset)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return domain.Fail(domain.ErrUnauthorized, "reset password", msgOTPRequired)
		}
		return fmt.Errorf("lookup verified otp: %w", err)
	}
	if !rec.Used || rec.Expired(uc.now()) {
		return domain.Fail(domain.ErrUnauthorized, "reset password", msgOTPRequired)
	}

	hash, err := uc.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := uc.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if _, err := uc.otps.Consume(ctx, rec.VerificationID); err != nil {
		uc.logger.Warn("otp_consume_failed", "verification_id", rec.VerificationID, "error", err)
	}

	uc.notifier.SendPasswordReset(ctx, domain.PasswordResetNotice{Email: user.Email, FirstName: user.FirstName})
	return nil
}

func (uc *AccountUseCase) ListUsers(ctx context.Context, caller domain.Principal, query domain.UserQuery) (domain.UserPage, error) {
	if !caller.IsAdmin() {
		return domain.UserPage{}, domain.Fail(domain.ErrPermissionDenied, "list users", "administrator role required")
	}
	q := query.Normalize()
	if _, _, ok := q.SortField(); !ok {
		return domain.UserPage{}, domain.Fail(domain.ErrInvalidArgument, "list users", "unsupported sort field: "+q.Sort)
	}
	q.Search = strings.TrimSpace(q.Search)

	users, total, err := uc.users.List(ctx, q)
	if err != nil {
		return domain.UserPage{}, fmt.Errorf("list users: %w", err)
	}
	return domain.NewUserPage(q, total, users), nil
}

// CreateAdmin stores an administrator with a known password. It sends no
// welcome mail and leaves no temporary password behind.
func (uc *AccountUseCase) CreateAdmin(ctx context.Context, in domain.AdminInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return nil, domain.Fail(domain.ErrInvalidArgument, "create admin", "Invalid email address")
	}
	if len([]rune(in.Password)) < minPasswordLength {
		return nil, domain.Fail(domain.ErrInvalidArgument, "create admin", "Password must be at least 8 characters")
	}
	hash, err := uc.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := uc.now()
	user := &domain.User{
		ID:               uuid.NewString(),
		FirstName:        strings.TrimSpace(in.FirstName),
		LastName:         strings.TrimSpace(in.LastName),
		Email:            email,
		Type:             domain.RoleAdmin,
		EmailVerified:    true,
		TermsAccepted:    true,
		PasswordHash:     hash,
		TempPasswordUsed: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.users.Create(ctx, user); err != nil {
		return nil, err
	}
	uc.logger.Info("admin_created", "user_id", user.ID)
	return user, nil
}

func (uc *AccountUseCase) loginResult(user *domain.User, usedTemp bool, message string) (*domain.LoginResult, error) {
	tokens, err := uc.tokens.IssuePair(user.Principal())
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return &domain.LoginResult{
		User:             *user,
		Tokens:           tokens,
		UsedTempPassword: usedTemp,
		Message:          message,
	}, nil
}

func (uc *AccountUseCase) issueOTP(ctx context.Context, email, firstName string, purpose domain.OTPPurpose) (*domain.OTPTicket, error) {
	code, err := generateOTP()
	if err != nil {
		return nil, err
	}
	now := uc.now()
	rec := &domain.OTPVerification{
		VerificationID: uuid.NewString(),
		Email:          email,
		Code:           code,
		Purpose:        purpose,
		ExpiresAt:      now.Add(domain.OTPTTL),
		CreatedAt:      now,
	}
	if err := uc.otps.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save otp: %w", err)
	}

	uc.notifier.SendOTP(ctx, domain.OTPNotice{
		Email:     email,
		FirstName: firstName,
		Code:      code,
		Purpose:   purpose,
	})
	return &domain.OTPTicket{VerificationID: rec.VerificationID, ExpiresAt: rec.ExpiresAt}, nil
}

func (uc *AccountUseCase) checkOTP(ctx context.Context, verificationID, code string, purpose domain.OTPPurpose) (*domain.OTPVerification, error) {
	op := "verify " + string(purpose)
	verificationID = strings.TrimSpace(verificationID)
	code = strings.TrimSpace(code)
	if verificationID == "" || code == "" {
		return nil, domain.Fail(domain.ErrInvalidArgument, op, "Verification id and OTP are required")
	}

	rec, err := uc.otps.Get(ctx, verificationID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.Fail(domain.ErrUnauthorized, op, msgInvalidOTP)
		}
		return nil, fmt.Errorf("load otp: %w", err)
	}
	if rec.Purpose != purpose || rec.Used || rec.Expired(uc.now()) || !codesEqual(rec.Code, code) {
		return nil, domain.Fail(domain.ErrUnauthorized, op, msgInvalidOTP)
	}
	return rec, nil
}
