package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

func respondAPIError(c *gin.Context, err error) {
	apiErr := TranslateError(err)
	c.JSON(apiErr.HTTPStatus, apiErr)
}

func respondAPIErrorWithRequestID(c *gin.Context, err error) {
	apiErr := TranslateError(err)
	if apiErr.Details == nil {
		apiErr.Details = make(map[string]interface{})
	}
	apiErr.Details["request_id"] = GetRequestID(c)
	c.JSON(apiErr.HTTPStatus, apiErr)
}

func bindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		var ve validator.ValidationErrors
		if ok := errors.As(err, &ve); ok {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				field := strings.ToLower(fe.Field())
				switch fe.Tag() {
				case "required":
					msgs = append(msgs, fmt.Sprintf("%s is required", field))
				case "uuid":
					msgs = append(msgs, fmt.Sprintf("%s must be a valid UUID", field))
				case "min":
					msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
				case "max":
					msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
				default:
					msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
				}
			}
			apiErr := NewAPIError("VALIDATION_ERROR", strings.Join(msgs, "; "), http.StatusBadRequest)
			c.JSON(apiErr.HTTPStatus, apiErr)
		} else {
			respondAPIError(c, ErrInvalidJSON)
		}
		return err
	}
	return nil
}

func getParam(c *gin.Context, name string) (string, bool) {
	value := c.Param(name)
	if value == "" {
		respondAPIErrorWithRequestID(c, NewAPIError("MISSING_PARAMETER", name+" is required", http.StatusBadRequest))
		return "", false
	}
	return value, true
}
