package service

import (
	"context"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderItemRequest struct {
	SKU       string          `json:"sku" binding:"required"`
	Name      string          `json:"name" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type CreateOrderRequest struct {
	Note  string             `json:"note"`
	Items []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING PAID CANCELLED"`
}

type OrderItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderResponse struct {
	ID        uuid.UUID           `json:"id"`
	UserID    uuid.UUID           `json:"user_id"`
	Status    string              `json:"status"`
	Note      string              `json:"note"`
	Total     decimal.Decimal     `json:"total"`
	Items     []OrderItemResponse `json:"items"`
	CreatedAt string              `json:"created_at"`
}

// OrderService is the thin order collaborator the ownership gate protects.
type OrderService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*OrderResponse, error)
	ListOrders(ctx context.Context, subject *model.User, page, limit int) ([]OrderResponse, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateOrderStatusRequest) error
	Resolver() ResourceResolver
}

type orderService struct {
	repo repository.OrderRepository
}

func NewOrderService(repo repository.OrderRepository) OrderService {
	return &orderService{repo: repo}
}

func ToOrderResponse(o *model.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ID:        it.ID,
			SKU:       it.SKU,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}
	return &OrderResponse{
		ID:        o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Note:      o.Note,
		Total:     o.Total,
		Items:     items,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*OrderResponse, error) {
	order := &model.Order{
		UserID: userID,
		Status: model.OrderStatusPending,
		Note:   req.Note,
		Total:  decimal.Zero,
	}

	for _, it := range req.Items {
		if it.UnitPrice.IsNegative() {
			return nil, apperror.New(apperror.ErrValidation, "unit_price must not be negative")
		}
		order.Items = append(order.Items, model.OrderItem{
			SKU:       it.SKU,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
		order.Total = order.Total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}
	return ToOrderResponse(order), nil
}

// ListOrders shows customers their own orders and staff every order.
func (s *orderService) ListOrders(ctx context.Context, subject *model.User, page, limit int) ([]OrderResponse, int64, error) {
	var owner *uuid.UUID
	if subject.Role == model.RoleCustomer {
		owner = &subject.ID
	}

	orders, total, err := s.repo.List(ctx, owner, page, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		res = append(res, *ToOrderResponse(&orders[i]))
	}
	return res, total, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateOrderStatusRequest) error {
	return s.repo.UpdateStatus(ctx, id, req.Status)
}

func (s *orderService) Resolver() ResourceResolver {
	return NewResolver(s.repo.FindByIDWithItems, func(o *model.Order) uuid.UUID { return o.UserID })
}
