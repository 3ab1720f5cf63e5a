package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/apperror"
	"storefront/internal/logging"
)

// Fail aborts the request with the status and public message derived from err.
// Server-side failures are logged with their cause and never echoed.
func Fail(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error("request failed", "error", err)
	}

	body := Error(status, apperror.PublicMessage(err))
	body.RequestID = logging.RequestID(c)
	c.AbortWithStatusJSON(status, body)
}

// BadRequest answers a binding or parsing failure.
func BadRequest(c *gin.Context, err error) {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		Fail(c, err)
		return
	}
	Fail(c, apperror.Wrap(apperror.ErrValidation, err.Error(), err))
}
