package utils

import (
	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func SuccessResponse(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// DataResponse writes the bare {"data": ...} body used by the records API.
func DataResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, gin.H{"data": data})
}

func ErrorResponse(c *gin.Context, code int, message string, err error) {
	response := APIResponse{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	c.JSON(code, response)
}

// FieldErrorResponse reports validation failures keyed by field name.
func FieldErrorResponse(c *gin.Context, code int, message string, fields map[string]string) {
	c.JSON(code, APIResponse{
		Success: false,
		Message: message,
		Error:   message,
		Fields:  fields,
	})
}
