package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/service"
	"storefront/pkg/pagination"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup, gate *middleware.Gate) {
	everyone := []string{model.RoleCustomer, model.RoleStaff, model.RoleAdmin}
	owned := &middleware.Ownership{Resolver: h.orderService.Resolver(), Param: "id"}

	orders := router.Group("/orders")
	{
		orders.POST("", append(gate.Route(middleware.Policy{Roles: everyone}), h.CreateOrder)...)
		orders.GET("", append(gate.Route(middleware.Policy{Roles: everyone}), h.ListOrders)...)
		orders.GET("/:id", append(gate.Route(middleware.Policy{Roles: everyone, Ownership: owned}), h.GetOrder)...)
		orders.PATCH("/:id/status", append(gate.Route(middleware.Policy{
			Roles: []string{model.RoleStaff, model.RoleAdmin},
		}), h.UpdateStatus)...)
	}
}

// CreateOrder places an order for the current user
// @Summary      Create order
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateOrderRequest  true  "Order Payload"
// @Success      201      {object}  response.Response{data=service.OrderResponse}
// @Failure      400      {object}  response.Response
// @Router       /orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	user := middleware.CurrentSession(c).User
	order, err := h.orderService.CreateOrder(c.Request.Context(), user.ID, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// ListOrders returns the caller's orders, or every order for staff
// @Summary      List orders
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.OrderResponse}
// @Router       /orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	p := pagination.Parse(c)

	orders, total, err := h.orderService.ListOrders(c.Request.Context(), middleware.CurrentSession(c).User, p.Page, p.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Page(http.StatusOK, orders, p.Page, p.Limit, total))
}

// GetOrder returns one order with its items
// @Summary      Get order
// @Tags         orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.OrderResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, _ := middleware.Resource[*model.Order](c)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.ToOrderResponse(order)))
}

// UpdateStatus moves an order between PENDING, PAID and CANCELLED
// @Summary      Update order status
// @Tags         orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                            true  "Order ID"
// @Param        payload  body      service.UpdateOrderStatusRequest  true  "Status"
// @Success      200      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /orders/{id}/status [patch]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	if err := h.orderService.UpdateStatus(c.Request.Context(), id, req); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Order status updated"))
}
