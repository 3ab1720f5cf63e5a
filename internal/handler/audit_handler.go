package handler

import (
	"net/http"

	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/pkg/pagination"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup, gate *middleware.Gate) {
	group := router.Group("/audit-logs", gate.Route(middleware.Policy{Roles: []string{model.RoleAdmin}})...)
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated security events, newest first
// @Summary      Get audit logs
// @Description  Lists recorded security events, optionally filtered by action or user
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action   query     string  false  "Action (e.g. LOGIN_FAILED)"
// @Param        user_id  query     string  false  "User ID"
// @Param        page     query     int     false  "Page number (default 1)"
// @Param        limit    query     int     false  "Number of items per page (default 20)"
// @Success      200      {object}  response.Response{data=[]service.AuditLogResponse}
// @Failure      403      {object}  response.Response
// @Router       /audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.AuditFilter{
		Action: c.Query("action"),
		UserID: c.Query("user_id"),
	}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), filter, p.Page, p.Limit)
	if err != nil {
		response.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Page(http.StatusOK, logs, p.Page, p.Limit, total))
}
