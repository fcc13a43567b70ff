package api

import (
	"errors"
	"net/http"
)

// ErrMalformedResponse replaces parse failures on otherwise successful
// responses; raw decoding errors never cross the package boundary.
var ErrMalformedResponse = errors.New("unexpected response from server")

// StatusError carries a non-2xx backend response. Message is the
// server-provided error text when present, or the HTTP status text.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

func IsConflict(err error) bool {
	return IsStatus(err, http.StatusConflict)
}
