package common

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
