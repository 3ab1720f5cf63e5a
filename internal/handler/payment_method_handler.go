package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/service"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentMethodHandler struct {
	paymentService service.PaymentMethodService
}

func NewPaymentMethodHandler(paymentService service.PaymentMethodService) *PaymentMethodHandler {
	return &PaymentMethodHandler{paymentService: paymentService}
}

func (h *PaymentMethodHandler) RegisterRoutes(router *gin.RouterGroup, gate *middleware.Gate) {
	everyone := []string{model.RoleCustomer, model.RoleStaff, model.RoleAdmin}
	owned := &middleware.Ownership{Resolver: h.paymentService.Resolver(), Param: "id"}

	methods := router.Group("/payment-methods")
	{
		methods.POST("", append(gate.Route(middleware.Policy{Roles: everyone}), h.Create)...)
		methods.GET("", append(gate.Route(middleware.Policy{Roles: everyone}), h.List)...)
		methods.GET("/:id", append(gate.Route(middleware.Policy{Roles: everyone, Ownership: owned}), h.Get)...)
		methods.DELETE("/:id", append(gate.Route(middleware.Policy{Roles: everyone, Ownership: owned}), h.Delete)...)
	}
}

// Create stores a card for the current user
// @Summary      Add payment method
// @Description  The card number is stored encrypted; adding the same card twice is a conflict
// @Tags         payment-methods
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePaymentMethodRequest  true  "Card"
// @Success      201      {object}  response.Response{data=service.PaymentMethodResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /payment-methods [post]
func (h *PaymentMethodHandler) Create(c *gin.Context) {
	var req service.CreatePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	user := middleware.CurrentSession(c).User
	method, err := h.paymentService.Create(c.Request.Context(), user.ID, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, method))
}

// List returns the caller's payment methods with masked numbers
// @Summary      List payment methods
// @Tags         payment-methods
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.PaymentMethodResponse}
// @Router       /payment-methods [get]
func (h *PaymentMethodHandler) List(c *gin.Context) {
	user := middleware.CurrentSession(c).User
	methods, err := h.paymentService.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, methods))
}

// Get returns one payment method
// @Summary      Get payment method
// @Tags         payment-methods
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Payment method ID"
// @Success      200  {object}  response.Response{data=service.PaymentMethodResponse}
// @Failure      403  {object}  response.Response
// @Router       /payment-methods/{id} [get]
func (h *PaymentMethodHandler) Get(c *gin.Context) {
	method, _ := middleware.Resource[*model.PaymentMethod](c)
	res, err := h.paymentService.ToResponse(method)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Delete removes a payment method
// @Summary      Delete payment method
// @Tags         payment-methods
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Payment method ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /payment-methods/{id} [delete]
func (h *PaymentMethodHandler) Delete(c *gin.Context) {
	method, _ := middleware.Resource[*model.PaymentMethod](c)
	if err := h.paymentService.Delete(c.Request.Context(), method.ID); err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Payment method deleted"))
}
