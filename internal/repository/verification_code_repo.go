package repository

import (
	"context"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CodeLookup identifies a code by everything consume matches on.
type CodeLookup struct {
	Cipher  string
	Target  string
	Purpose string
	Type    string
}

type VerificationCodeRepository interface {
	// Replace removes any code for code.TargetValue and inserts code. Callers run
	// it inside RunInTx so the two statements commit together.
	Replace(ctx context.Context, code *model.VerificationCode) error
	Find(ctx context.Context, lookup CodeLookup) (*model.VerificationCode, error)
	FindByTarget(ctx context.Context, target string) (*model.VerificationCode, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type verificationCodeRepository struct {
	db *gorm.DB
}

func NewVerificationCodeRepository(db *gorm.DB) VerificationCodeRepository {
	return &verificationCodeRepository{db: db}
}

func (r *verificationCodeRepository) Replace(ctx context.Context, code *model.VerificationCode) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("target_value = ?", code.TargetValue).Delete(&model.VerificationCode{}).Error; err != nil {
		return err
	}
	return translate(db.Create(code).Error, "verification code")
}

func (r *verificationCodeRepository) Find(ctx context.Context, lookup CodeLookup) (*model.VerificationCode, error) {
	var code model.VerificationCode
	err := GetDB(ctx, r.db).
		Where("code = ? AND target_value = ? AND purpose = ? AND type = ?",
			lookup.Cipher, lookup.Target, lookup.Purpose, lookup.Type).
		First(&code).Error
	if err != nil {
		return nil, translate(err, "verification code")
	}
	return &code, nil
}

func (r *verificationCodeRepository) FindByTarget(ctx context.Context, target string) (*model.VerificationCode, error) {
	var code model.VerificationCode
	if err := GetDB(ctx, r.db).First(&code, "target_value = ?", target).Error; err != nil {
		return nil, translate(err, "verification code")
	}
	return &code, nil
}

// Delete reports whether a row was removed, so two concurrent consumers of
// the same code cannot both succeed.
func (r *verificationCodeRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.VerificationCode{})
	return result.RowsAffected > 0, result.Error
}

func (r *verificationCodeRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := GetDB(ctx, r.db).Where("user_id = ?", userID).Delete(&model.VerificationCode{})
	return result.RowsAffected, result.Error
}

func (r *verificationCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := GetDB(ctx, r.db).Where("expires_at <= ?", now).Delete(&model.VerificationCode{})
	return result.RowsAffected, result.Error
}
