package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CodeTypeEmail = "email"
	CodeTypePhone = "phone"
)

const (
	PurposeVerifyEmail   = "verify-email"
	PurposeUpdateEmail   = "update-email"
	PurposeVerifyPhone   = "verify-phone"
	PurposeUpdatePhone   = "update-phone"
	PurposeResetPassword = "reset-password"
)

// CodeTypeFor returns the channel a purpose is delivered over, or "" for an unknown purpose.
func CodeTypeFor(purpose string) string {
	switch purpose {
	case PurposeVerifyEmail, PurposeUpdateEmail, PurposeResetPassword:
		return CodeTypeEmail
	case PurposeVerifyPhone, PurposeUpdatePhone:
		return CodeTypePhone
	}
	return ""
}

// VerificationCode is a single-use secret proving control of TargetValue.
// Code holds the ciphertext, never the plaintext.
type VerificationCode struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"-"`
	Type        string    `gorm:"type:varchar(10);not null" json:"type"`
	Purpose     string    `gorm:"type:varchar(30);not null" json:"purpose"`
	TargetValue string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"target_value"` // at most one live code per target
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (v *VerificationCode) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Expired reports whether the code can no longer be accepted at now.
func (v *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}
