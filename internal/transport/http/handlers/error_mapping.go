package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// ErrorCase maps a sentinel error to the HTTP status and client-safe message
// it should produce.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError matches err against cases in order and writes the
// first hit. An unmatched error gets the fallback so internal details never
// reach the client.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	for _, mapping := range cases {
		if mapping.Err != nil && errors.Is(err, mapping.Err) {
			c.JSON(mapping.Status, NewErrorResponse(c, mapping.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
