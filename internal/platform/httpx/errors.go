// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-crm/meridian/internal/shared"
)

// validationProblem extends the problem detail with per-field messages.
type validationProblem struct {
	ProblemDetail
	Errors map[string][]string `json:"errors"`
}

// RespondError maps the typed error hierarchy to RFC7807 responses.
// Anything unrecognized is a 500 with no detail leaked.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validation *shared.ValidationError
		notFound   *shared.NotFoundError
		unauth     *shared.UnauthorizedError
		conflict   *shared.ConflictError
		isolation  *shared.TenantIsolationError
	)
	switch {
	case errors.As(err, &validation):
		JSON(w, http.StatusBadRequest, validationProblem{
			ProblemDetail: ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: validation.Error()},
			Errors:        validation.Fields,
		})
	case errors.As(err, &notFound):
		Problem(w, http.StatusNotFound, "Not Found", notFound.Error())
	case errors.As(err, &isolation):
		Problem(w, http.StatusForbidden, "Forbidden", isolation.Error())
	case errors.As(err, &unauth):
		Problem(w, http.StatusUnauthorized, "Unauthorized", unauth.Error())
	case errors.As(err, &conflict):
		Problem(w, http.StatusConflict, "Conflict", conflict.Error())
	case errors.Is(err, shared.ErrNotAuthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
