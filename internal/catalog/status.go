package catalog

import (
	"errors"
	"net/http"
)

// Status maps a catalog error to the HTTP status and error code returned to
// the caller.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadQuery):
		return http.StatusBadRequest, "bad_query"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "upstream_failed"
	}
	return http.StatusInternalServerError, "catalog_failed"
}
