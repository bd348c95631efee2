package types

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// FromError maps an engine error kind to an HTTP status and payload.
// area prefixes the code, e.g. "PRINTER" yields "PRINTER_404".
func FromError(area string, err error) (int, ErrorResponse) {
	status, message := http.StatusInternalServerError, "Internal error"
	switch {
	case errors.Is(err, printer.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, printer.ErrValidation):
		status, message = http.StatusBadRequest, "Validation failed"
	case errors.Is(err, printer.ErrInvalidState):
		status, message = http.StatusConflict, "Operation not allowed in current state"
	case errors.Is(err, printer.ErrConflict):
		status, message = http.StatusConflict, "Concurrent modification, retry the request"
	case errors.Is(err, printer.ErrStorageUnavailable):
		status, message = http.StatusServiceUnavailable, "Storage unavailable"
	}
	return status, NewErrorResponse(fmt.Sprintf("%s_%d", area, status), message, err.Error())
}
