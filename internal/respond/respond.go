package respond

import (
	"encoding/json"
	"net/http"

	"store-core/internal/apperr"
	"store-core/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Success struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
	Meta    any    `json:"meta,omitempty"`
}

type Failure struct {
	Errors     []string `json:"errors"`
	Message    string   `json:"message"`
	StatusCode int      `json:"status_code"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func OK(w http.ResponseWriter, status int, data any, message string, meta any) {
	JSON(w, status, Success{Data: data, Message: message, Meta: meta})
}

// Fail renders err as a failure envelope. Business failures are logged at
// warn level, everything else as a system error.
func Fail(w http.ResponseWriter, logger *observability.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.StatusCode(kind)

	if logger != nil {
		fields := map[string]any{"kind": string(kind), "status": status}
		if apperr.IsBusiness(kind) {
			logger.BusinessError("request_failed", err, fields)
		} else {
			logger.SystemError("request_failed", err, fields)
		}
	}

	message, details := apperr.Outward(err)
	JSON(w, status, Failure{Errors: details, Message: message, StatusCode: status})
}

// Error renders a failure that never reached the application core, such as
// a malformed body.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Failure{Errors: []string{message}, Message: message, StatusCode: status})
}

// Decode reads a single JSON object from the request body into dst. On
// failure it writes a 400 envelope and returns false.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		Error(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
