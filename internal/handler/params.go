package handler

import (
	"storefront/internal/apperror"
	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// pathID parses a uuid route parameter, answering 400 when it is malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, apperror.New(apperror.ErrValidation, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
