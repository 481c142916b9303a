package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDecryption marks stored ciphertext that no longer opens under the
	// current key. It is an internal error, never a not-found.
	ErrDecryption = errors.New("credential decryption failed")
)

// ValidationError represents malformed or unsupported input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Abort maps err onto the response envelope. Anything outside the taxonomy is
// logged with its cause and answered with an opaque message.
func Abort(c *gin.Context, err error) {
	var ve ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		Fail(c, http.StatusNotFound, 40400, err.Error())
	case errors.As(err, &ve):
		Fail(c, http.StatusBadRequest, 10002, ve.Error())
	case errors.Is(err, ErrDecryption):
		log.Error().Err(err).
			Str("request_id", c.GetString(RequestIDKey)).
			Str("path", c.FullPath()).
			Msg("stored credential could not be decrypted")
		Fail(c, http.StatusInternalServerError, 50002, "internal error")
	default:
		log.Error().Err(err).
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
		Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
