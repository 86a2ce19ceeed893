package services

import (
	"net/http"

	"mongoscan/pkg/apperr"
)

// StatusForError maps an engine error to the HTTP status a caller sees.
func StatusForError(err error) uint32 {
	switch apperr.KindOf(err) {
	case apperr.KindMalformedLocator:
		return http.StatusBadRequest
	case apperr.KindConnectionExhausted:
		return http.StatusServiceUnavailable
	case apperr.KindConnectionFailed:
		return http.StatusBadGateway
	case apperr.KindAuthenticationFailed:
		return http.StatusUnauthorized
	case apperr.KindCollectionNotFound:
		return http.StatusNotFound
	case apperr.KindConversionFailed:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
