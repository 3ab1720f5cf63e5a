package repository

import (
	"context"

	"storefront/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentMethodRepository interface {
	Create(ctx context.Context, method *model.PaymentMethod) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.PaymentMethod, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.PaymentMethod, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type paymentMethodRepository struct {
	db *gorm.DB
}

func NewPaymentMethodRepository(db *gorm.DB) PaymentMethodRepository {
	return &paymentMethodRepository{db: db}
}

func (r *paymentMethodRepository) Create(ctx context.Context, method *model.PaymentMethod) error {
	return translate(GetDB(ctx, r.db).Create(method).Error, "payment method")
}

func (r *paymentMethodRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.PaymentMethod, error) {
	var method model.PaymentMethod
	if err := GetDB(ctx, r.db).First(&method, "id = ?", id).Error; err != nil {
		return nil, translate(err, "payment method")
	}
	return &method, nil
}

func (r *paymentMethodRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.PaymentMethod, error) {
	var methods []model.PaymentMethod
	if err := GetDB(ctx, r.db).Where("user_id = ?", userID).Order("created_at desc").Find(&methods).Error; err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *paymentMethodRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.PaymentMethod{}).Error
}
