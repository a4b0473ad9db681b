package handlers

import (
	"log"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"

	"authhub/internal/apierr"
)

// apiResponse is the uniform envelope every endpoint returns.
type apiResponse struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, apiResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < 400,
	})
}

func respondError(c *gin.Context, err error) {
	ae := apierr.From(err)
	if ae.StatusCode >= 500 {
		log.Printf("[http] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(ae.StatusCode, gin.H{
		"statusCode": ae.StatusCode,
		"data":       nil,
		"message":    ae.Message,
		"errors":     ae.Errors,
		"success":    false,
	})
}

// respondValidation flattens ozzo field errors into the detail list of an
// InvalidInput response.
func respondValidation(c *gin.Context, err error) {
	details := []string{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			details = append(details, field+": "+ferr.Error())
		}
	} else if err != nil {
		details = append(details, err.Error())
	}
	respondError(c, apierr.BadRequest("validation failed", details...))
}
