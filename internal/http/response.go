package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tradehub-admin/internal/logging"
	"tradehub-admin/internal/services"

	"go.uber.org/zap"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

type ValidationResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Message: message})
}

// remoteStatus is the HTTP status a failed database call surfaces as.
var remoteStatus = map[services.RemoteKind]int{
	services.RemoteNetwork:    http.StatusServiceUnavailable,
	services.RemoteConstraint: http.StatusConflict,
	services.RemotePermission: http.StatusForbidden,
	services.RemoteNotFound:   http.StatusNotFound,
	services.RemoteInvalid:    http.StatusBadRequest,
}

var remoteMessage = map[services.RemoteKind]string{
	services.RemoteNetwork:    "Database unavailable",
	services.RemoteConstraint: "Conflicts with existing data",
	services.RemotePermission: "Not allowed",
	services.RemoteNotFound:   "Not found",
	services.RemoteInvalid:    "Invalid value",
}

// mapServiceError writes the response for a known error type and reports
// whether it did.
func mapServiceError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		WriteJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Message: "Validation failed", Errors: verr.Fields})
		return true
	}
	var rerr *services.RemoteError
	if errors.As(err, &rerr) {
		status, ok := remoteStatus[rerr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		WriteError(w, status, remoteMessage[rerr.Kind])
		return true
	}
	var serr services.ServiceError
	if errors.As(err, &serr) {
		WriteError(w, serr.Status, serr.Message)
		return true
	}
	return false
}

// writeFailure maps err or falls back to a logged 500.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var rerr *services.RemoteError
	if errors.As(err, &rerr) && rerr.Kind == services.RemoteNetwork {
		logging.FromContext(r.Context()).Error("database call failed", zap.Error(err))
	}
	if mapServiceError(w, err) {
		return
	}
	logging.FromContext(r.Context()).Error("request failed", zap.Error(err))
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return services.ErrBadRequest("Invalid payload")
	}
	return nil
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}
