package httpx

import (
	"errors"
	"net/http"

	"github.com/Gustavohsdd/araujo-ptc/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Lock
// timeouts surface as conflicts so clients know to retry the whole commit.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrLockTimeout):
		Problem(w, http.StatusConflict, "Commit In Progress", err.Error())
	case errors.Is(err, shared.ErrSchema):
		Problem(w, http.StatusInternalServerError, "Store Schema Mismatch", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
