package httpx

import (
	"errors"
	"net/http"
)

// ErrNotFound is the cross-module sentinel for missing resources.
var ErrNotFound = errors.New("resource not found")

// Classifier maps a domain error to a problem status. Each module handler
// supplies one so validation errors become 400, state conflicts 409, and
// lookup failures 404.
type Classifier func(error) (status int, title string, ok bool)

// RespondError writes an RFC7807 response using the classifier, falling
// back to 500 for unclassified errors.
func RespondError(w http.ResponseWriter, err error, classify Classifier) {
	if errors.Is(err, ErrNotFound) {
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	if classify != nil {
		if status, title, ok := classify(err); ok {
			Problem(w, status, title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
