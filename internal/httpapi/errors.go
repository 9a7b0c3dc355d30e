package httpapi

import (
	"encoding/json"
	"net/http"

	"dispatchd/internal/dispatch"
	"dispatchd/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForKind maps a dispatch failure kind to an HTTP status.
func statusForKind(kind string) int {
	switch dispatch.Kind(kind) {
	case "":
		return http.StatusOK
	case dispatch.KindInvalidRequest:
		return http.StatusBadRequest
	case dispatch.KindCapacityExhausted:
		return http.StatusTooManyRequests
	case dispatch.KindPortConflict:
		return http.StatusConflict
	case dispatch.KindCanceled:
		return http.StatusServiceUnavailable
	case dispatch.KindGenerationFailure, dispatch.KindProcessSpawnFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
