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

type UserHandler struct {
	userService service.UserService
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup, gate *middleware.Gate) {
	users := router.Group("/users")
	{
		users.GET("", append(gate.Route(middleware.Policy{
			Roles: []string{model.RoleStaff, model.RoleAdmin},
		}), h.ListUsers)...)
		users.GET("/:id", append(gate.Route(middleware.Policy{
			Roles:     []string{model.RoleCustomer, model.RoleStaff, model.RoleAdmin},
			Ownership: &middleware.Ownership{Resolver: h.userService.Resolver(), Param: "id"},
		}), h.GetUserByID)...)
		users.PUT("/:id/role", append(gate.Route(middleware.Policy{
			Roles: []string{model.RoleAdmin},
		}), h.ChangeRole)...)
	}
}

// ListUsers handles GET /users and extracts pagination controls
// @Summary      List users
// @Description  Retrieves a paginated list of users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=[]service.UserResponse}
// @Failure      403    {object}  response.Response
// @Router       /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	p := pagination.Parse(c)

	users, total, err := h.userService.ListUsers(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Page(http.StatusOK, users, p.Page, p.Limit, total))
}

// GetUserByID handles GET /users/:id. Customers may only read themselves.
// @Summary      Get user by ID
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, _ := middleware.Resource[*model.User](c)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, service.ToUserResponse(user)))
}

// ChangeRole handles PUT /users/:id/role
// @Summary      Change user role
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.ChangeRoleRequest  true  "New role"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /users/{id}/role [put]
func (h *UserHandler) ChangeRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err)
		return
	}

	actor := middleware.CurrentSession(c).User
	user, err := h.userService.ChangeRole(c.Request.Context(), actor.ID, id, req)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}
