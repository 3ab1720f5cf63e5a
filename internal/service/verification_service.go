package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/repository"
	"storefront/internal/security"
)

// Each ErrConflict from Replace means a concurrent issue for the same target
// committed first, so a caller racing N others loses at most N-1 times.
const (
	issueAttempts = 16
	issueBackoff  = 5 * time.Millisecond
)

// Encrypter is the part of security.Cipher the code store needs.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

type VerificationSettings struct {
	CodeLength int
	CodeTTL    time.Duration
	PublicURL  string
	Now        func() time.Time
}

type VerificationService interface {
	// Issue replaces any live code for target with a fresh one and notifies target.
	Issue(ctx context.Context, purpose, target string, owner *model.User) error
	// Consume deletes and returns the matching code. A missing code fails with
	// ErrNotFound and an expired one with ErrExpired.
	Consume(ctx context.Context, rawCode, target, purpose string) (*model.VerificationCode, error)
}

type verificationService struct {
	repo      repository.VerificationCodeRepository
	txManager repository.TransactionManager
	cipher    Encrypter
	notifier  notify.Notifier
	logger    *slog.Logger
	settings  VerificationSettings
}

func NewVerificationService(
	repo repository.VerificationCodeRepository,
	txManager repository.TransactionManager,
	cipher Encrypter,
	notifier notify.Notifier,
	logger *slog.Logger,
	settings VerificationSettings,
) VerificationService {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &verificationService{
		repo:      repo,
		txManager: txManager,
		cipher:    cipher,
		notifier:  notifier,
		logger:    logger,
		settings:  settings,
	}
}

func (s *verificationService) Issue(ctx context.Context, purpose, target string, owner *model.User) error {
	codeType := model.CodeTypeFor(purpose)
	if codeType == "" {
		return apperror.New(apperror.ErrValidation, fmt.Sprintf("unknown verification purpose %q", purpose))
	}

	var raw string
	var err error
	for attempt := 1; attempt <= issueAttempts; attempt++ {
		raw, err = s.replace(ctx, purpose, codeType, target, owner)
		if err == nil || !errors.Is(err, apperror.ErrConflict) {
			break
		}
		s.logger.Debug("verification code conflict, retrying", "purpose", purpose, "attempt", attempt)
		if attempt == issueAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1+rand.IntN(attempt)) * issueBackoff):
		}
	}
	if err != nil {
		return err
	}

	msg := s.message(purpose, codeType, target, raw)
	if sendErr := s.notifier.Send(ctx, msg); sendErr != nil {
		s.logger.Warn("failed to send verification code",
			"purpose", purpose,
			"channel", msg.Channel,
			"error", sendErr,
		)
	}
	return nil
}

// replace generates a code and swaps it in atomically. A concurrent issue for
// the same target, or a cipher collision, surfaces as ErrConflict.
func (s *verificationService) replace(ctx context.Context, purpose, codeType, target string, owner *model.User) (string, error) {
	raw, err := security.RandomCode(s.settings.CodeLength)
	if err != nil {
		return "", err
	}
	cipher, err := s.cipher.Encrypt(raw)
	if err != nil {
		return "", err
	}

	code := &model.VerificationCode{
		Code:        cipher,
		Type:        codeType,
		Purpose:     purpose,
		TargetValue: target,
		UserID:      owner.ID,
		ExpiresAt:   s.settings.Now().Add(s.settings.CodeTTL),
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return s.repo.Replace(txCtx, code)
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (s *verificationService) Consume(ctx context.Context, rawCode, target, purpose string) (*model.VerificationCode, error) {
	codeType := model.CodeTypeFor(purpose)
	if codeType == "" {
		return nil, apperror.New(apperror.ErrValidation, fmt.Sprintf("unknown verification purpose %q", purpose))
	}

	cipher, err := s.cipher.Encrypt(strings.ToUpper(strings.TrimSpace(rawCode)))
	if err != nil {
		return nil, err
	}

	code, err := s.repo.Find(ctx, repository.CodeLookup{
		Cipher:  cipher,
		Target:  target,
		Purpose: purpose,
		Type:    codeType,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "Invalid or expired code", err)
		}
		return nil, err
	}

	removed, err := s.repo.Delete(ctx, code.ID)
	if err != nil {
		return nil, err
	}
	if !removed {
		// Consumed concurrently between find and delete.
		return nil, apperror.New(apperror.ErrNotFound, "Invalid or expired code")
	}
	if code.Expired(s.settings.Now()) {
		return nil, apperror.New(apperror.ErrExpired, "Verification code expired")
	}
	return code, nil
}

func (s *verificationService) message(purpose, codeType, target, raw string) notify.Message {
	ttl := s.settings.CodeTTL.Round(time.Minute)
	if codeType == model.CodeTypePhone {
		return notify.Message{
			Channel: notify.ChannelSMS,
			Target:  target,
			Body:    fmt.Sprintf("Your storefront code is %s. It expires in %s.", raw, ttl),
		}
	}

	var subject, intro string
	switch purpose {
	case model.PurposeResetPassword:
		subject, intro = "Reset your password", "Use this code to reset your password"
	case model.PurposeUpdateEmail:
		subject, intro = "Confirm your new email", "Use this code to confirm your new email address"
	default:
		subject, intro = "Verify your email", "Use this code to verify your email address"
	}

	link := s.settings.PublicURL + "/auth/confirm?" + url.Values{
		"purpose": {purpose},
		"target":  {target},
		"code":    {raw},
	}.Encode()

	return notify.Message{
		Channel: notify.ChannelEmail,
		Target:  target,
		Subject: subject,
		Body:    fmt.Sprintf("%s: %s\n\nOr open %s\n\nThe code expires in %s.", intro, raw, link, ttl),
	}
}
