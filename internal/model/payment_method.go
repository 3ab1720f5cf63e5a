package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentMethod stores a card. CardNumber holds the deterministic ciphertext so
// the unique index rejects the same card being saved twice.
type PaymentMethod struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	CardNumber  string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"-"`
	HolderName  string    `gorm:"type:varchar(255);not null" json:"holder_name"`
	Last4       string    `gorm:"type:varchar(4);not null" json:"last4"`
	ExpiryMonth int       `gorm:"type:int;not null" json:"expiry_month"`
	ExpiryYear  int       `gorm:"type:int;not null" json:"expiry_year"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *PaymentMethod) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
