package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionRegister             = "REGISTER"
	ActionLogin                = "LOGIN"
	ActionLoginFailed          = "LOGIN_FAILED"
	ActionLogout               = "LOGOUT"
	ActionLogoutAll            = "LOGOUT_ALL"
	ActionVerifyEmail          = "VERIFY_EMAIL"
	ActionVerifyPhone          = "VERIFY_PHONE"
	ActionRequestPasswordReset = "REQUEST_PASSWORD_RESET"
	ActionResetPassword        = "RESET_PASSWORD"
	ActionChangePassword       = "CHANGE_PASSWORD"
	ActionUpdateEmail          = "UPDATE_EMAIL"
	ActionUpdatePhone          = "UPDATE_PHONE"
	ActionChangeRole           = "CHANGE_ROLE"
	ActionDeleteAccount        = "DELETE_ACCOUNT"
	ActionAccessDenied         = "ACCESS_DENIED"
)

// AuditLog tracks Who, What, and When for security relevant changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for anonymous attempts
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
