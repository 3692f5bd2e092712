// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/noah-isme/helpdesk/internal/authz"
	"github.com/noah-isme/helpdesk/internal/identity"
	"github.com/noah-isme/helpdesk/internal/permissions"
	"github.com/noah-isme/helpdesk/internal/tenancy"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	p := problemFor(err)
	Problem(w, p.Status, p.Title, p.Detail)
}

// StatusFor reports the status RespondError would use for err.
func StatusFor(err error) int {
	return problemFor(err).Status
}

// problemFor only exposes the reason category of a denial. A cross-tenant denial is
// indistinguishable from a missing resource so that probing another tenant reveals nothing.
func problemFor(err error) ProblemDetail {
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity), errors.Is(err, ErrUnauthorized):
		return ProblemDetail{Status: http.StatusUnauthorized, Title: "Unauthorized", Detail: string(authz.ReasonInvalidIdentity)}
	case errors.Is(err, authz.ErrTenantMismatch), errors.Is(err, ErrNotFound):
		return ProblemDetail{Status: http.StatusNotFound, Title: "Not Found"}
	case errors.Is(err, authz.ErrRoleInsufficient):
		return ProblemDetail{Status: http.StatusForbidden, Title: "Forbidden", Detail: string(authz.ReasonRoleInsufficient)}
	case errors.Is(err, authz.ErrCapabilityMissing):
		return ProblemDetail{Status: http.StatusForbidden, Title: "Forbidden", Detail: string(authz.ReasonCapabilityMissing)}
	case errors.Is(err, authz.ErrNotOwner):
		return ProblemDetail{Status: http.StatusForbidden, Title: "Forbidden", Detail: string(authz.ReasonNotOwner)}
	case errors.Is(err, ErrForbidden):
		return ProblemDetail{Status: http.StatusForbidden, Title: "Forbidden"}
	case errors.Is(err, tenancy.ErrMissingTenantContext):
		return ProblemDetail{Status: http.StatusBadRequest, Title: "Validation Failed", Detail: "MissingTenantContext"}
	case errors.Is(err, permissions.ErrUnknownCapability), errors.Is(err, ErrValidation):
		return ProblemDetail{Status: http.StatusBadRequest, Title: "Validation Failed", Detail: err.Error()}
	case errors.Is(err, ErrDuplicate):
		return ProblemDetail{Status: http.StatusConflict, Title: "Duplicate", Detail: err.Error()}
	default:
		return ProblemDetail{Status: http.StatusInternalServerError, Title: "Internal Error"}
	}
}
