// Package handlers exposes the chat core over HTTP. Handlers bind and
// validate input, call into the services and translate coded errors to
// status codes; business rules live in internal/chat.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/zuhreplanet/sohbet/pkg/errors"
	"github.com/zuhreplanet/sohbet/pkg/i18n"
)

// __ is the translation alias for user-facing strings.
var __ = i18n.Translate

func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperrors.CodeAccessDenied:
		return http.StatusForbidden
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeAlreadyExists:
		return http.StatusConflict
	case apperrors.CodeContentRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// fail maps a coded error to its HTTP status and localized body.
func fail(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	c.JSON(httpStatus(code), gin.H{
		"error": __(apperrors.MessageOf(err)),
		"code":  string(code),
	})
}

func currentUserID(c *gin.Context) (int, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}

func currentUsername(c *gin.Context) string {
	v, _ := c.Get("username")
	name, _ := v.(string)
	return name
}
