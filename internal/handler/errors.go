package handler

import (
	"errors"
	"net/http"

	"backend/internal/service"
)

// statusFor maps service errors onto HTTP statuses: missing entities are 404,
// state conflicts are 409, everything else is the caller's fault or ours.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrBatchNotFound),
		errors.Is(err, service.ErrManifestNotFound),
		errors.Is(err, service.ErrShipmentNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyAssigned),
		errors.Is(err, service.ErrManifestClosed),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
