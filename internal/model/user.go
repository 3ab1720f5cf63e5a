package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleCustomer = "customer"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleCustomer || role == RoleStaff || role == RoleAdmin
}

// User represents the central account entity for logic and database structure
type User struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email             string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username          *string   `gorm:"type:varchar(255);uniqueIndex" json:"username,omitempty"` // optional, unique when present
	Phone             *string   `gorm:"type:varchar(20);uniqueIndex" json:"phone,omitempty"`     // optional, unique when present
	PasswordHash      string    `gorm:"type:varchar(255);not null" json:"-"`
	Role              string    `gorm:"type:varchar(20);not null;default:'customer'" json:"role"`
	Verified          bool      `gorm:"not null;default:false" json:"verified"`
	EmailValidated    bool      `gorm:"not null;default:false" json:"email_validated"`
	PhoneValidated    bool      `gorm:"not null;default:false" json:"phone_validated"`
	PasswordChangedAt time.Time `gorm:"not null" json:"-"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RefreshToken is the long-lived session anchor created on every login.
// CreatedAt is the issuance time compared against User.PasswordChangedAt.
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (r *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Live reports whether the token has not yet expired at now.
func (r *RefreshToken) Live(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
