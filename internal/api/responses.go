package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/fedsearch/fedsearch/internal/errors"
)

// apiResponse is the envelope every endpoint returns.
type apiResponse struct {
	Code        int      `json:"code"`
	Message     string   `json:"message"`
	Data        any      `json:"data,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&apiResponse{
		Code:    status,
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&apiResponse{
		Code:    status,
		Message: message,
	})
}

// writeEngineError maps a typed application error to an HTTP status and
// carries its suggestions through to the client.
func writeEngineError(w http.ResponseWriter, err error) {
	status := httpStatus(apperrors.GetType(err))
	resp := apiResponse{Code: status, Message: err.Error()}

	var structured *apperrors.Error
	if errors.As(err, &structured) {
		resp.Suggestions = structured.Suggestions
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&resp)
}

func httpStatus(errType apperrors.ErrorType) int {
	switch errType {
	case apperrors.ErrTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrTypeConnection, apperrors.ErrTypeCacheMiss:
		return http.StatusNotFound
	case apperrors.ErrTypeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrTypeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrTypeExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
