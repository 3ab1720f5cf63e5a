package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type CreatePaymentMethodRequest struct {
	CardNumber  string `json:"card_number" binding:"required,numeric,min=12,max=19"`
	HolderName  string `json:"holder_name" binding:"required"`
	ExpiryMonth int    `json:"expiry_month" binding:"required,min=1,max=12"`
	ExpiryYear  int    `json:"expiry_year" binding:"required,min=2000"`
}

type PaymentMethodResponse struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	CardNumber  string    `json:"card_number"` // masked
	HolderName  string    `json:"holder_name"`
	ExpiryMonth int       `json:"expiry_month"`
	ExpiryYear  int       `json:"expiry_year"`
	CreatedAt   string    `json:"created_at"`
}

// Crypter is the reversible cipher used for stored card numbers.
type Crypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type PaymentMethodService interface {
	Create(ctx context.Context, userID uuid.UUID, req CreatePaymentMethodRequest) (*PaymentMethodResponse, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]PaymentMethodResponse, error)
	ToResponse(method *model.PaymentMethod) (*PaymentMethodResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Resolver() ResourceResolver
}

type paymentMethodService struct {
	repo   repository.PaymentMethodRepository
	cipher Crypter
	now    func() time.Time
}

func NewPaymentMethodService(repo repository.PaymentMethodRepository, cipher Crypter) PaymentMethodService {
	return &paymentMethodService{repo: repo, cipher: cipher, now: time.Now}
}

func maskCard(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

func (s *paymentMethodService) Create(ctx context.Context, userID uuid.UUID, req CreatePaymentMethodRequest) (*PaymentMethodResponse, error) {
	now := s.now()
	if req.ExpiryYear < now.Year() || (req.ExpiryYear == now.Year() && req.ExpiryMonth < int(now.Month())) {
		return nil, apperror.New(apperror.ErrValidation, "card has expired")
	}

	number := strings.ReplaceAll(req.CardNumber, " ", "")
	cipher, err := s.cipher.Encrypt(number)
	if err != nil {
		return nil, err
	}

	method := &model.PaymentMethod{
		UserID:      userID,
		CardNumber:  cipher,
		HolderName:  req.HolderName,
		Last4:       number[len(number)-4:],
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
	}
	if err := s.repo.Create(ctx, method); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Wrap(apperror.ErrConflict, "Payment method already exists", err)
		}
		return nil, err
	}
	return s.ToResponse(method)
}

func (s *paymentMethodService) ListByUser(ctx context.Context, userID uuid.UUID) ([]PaymentMethodResponse, error) {
	methods, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := make([]PaymentMethodResponse, 0, len(methods))
	for i := range methods {
		r, err := s.ToResponse(&methods[i])
		if err != nil {
			return nil, err
		}
		res = append(res, *r)
	}
	return res, nil
}

// ToResponse decrypts the stored number only to mask it.
func (s *paymentMethodService) ToResponse(method *model.PaymentMethod) (*PaymentMethodResponse, error) {
	number, err := s.cipher.Decrypt(method.CardNumber)
	if err != nil {
		return nil, err
	}
	return &PaymentMethodResponse{
		ID:          method.ID,
		UserID:      method.UserID,
		CardNumber:  maskCard(number),
		HolderName:  method.HolderName,
		ExpiryMonth: method.ExpiryMonth,
		ExpiryYear:  method.ExpiryYear,
		CreatedAt:   method.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (s *paymentMethodService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *paymentMethodService) Resolver() ResourceResolver {
	return NewResolver(s.repo.GetByID, func(m *model.PaymentMethod) uuid.UUID { return m.UserID })
}
