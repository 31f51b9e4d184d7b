// Package httpx writes JSON and RFC 7807 problem responses and decodes
// request bodies.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hdthieu/seafood-restaurant-be-sub001/internal/shared"
)

// ErrBadRequest marks malformed request bodies or parameters.
var ErrBadRequest = errors.New("bad request")

// StatusFor maps a business error kind to an HTTP status.
func StatusFor(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusUnprocessableEntity
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindState, shared.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unknown errors are logged and reported without detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if appErr, ok := shared.AsError(err); ok {
		status := StatusFor(appErr.Kind)
		writeProblem(w, ProblemDetail{
			Title:  http.StatusText(status),
			Status: status,
			Code:   appErr.Code,
			Detail: appErr.Message,
		})
		return
	}
	if errors.Is(err, ErrBadRequest) {
		Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if logger != nil {
		logger.Error("request failed", slog.Any("error", err))
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
