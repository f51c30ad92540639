package httpx

import (
	"errors"
	"net/http"
)

// ErrNotFound marks a lookup whose subject does not exist. Handlers wrap it
// with the missing name so the problem detail says what was asked for.
var ErrNotFound = errors.New("not found")

// RespondError maps an error to an RFC7807 response. Anything unclassified
// becomes an opaque 500; internals never leak into the body.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
