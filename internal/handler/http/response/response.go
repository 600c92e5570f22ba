package response

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope of every JSON answer.
type Response struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`

	// Dialog is set when the client must show the message in a blocking
	// confirmation dialog.
	Dialog bool `json:"dialog,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_ = json.NewEncoder(w).Encode(Response{
			Error: &ErrorDetail{
				Code:    "ENCODING_ERROR",
				Message: "Failed to encode response",
			},
		})
	}
}

func writeError(w http.ResponseWriter, statusCode int, detail ErrorDetail) {
	writeJSON(w, statusCode, Response{Error: &detail})
}

// Success responses
func Success(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func SuccessWithMessage(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func Created(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: message, Data: data})
}

// Error responses
func BadRequest(w http.ResponseWriter, message string, details map[string]string) {
	writeError(w, http.StatusBadRequest, ErrorDetail{Code: "BAD_REQUEST", Message: message, Details: details})
}

func ValidationError(w http.ResponseWriter, details map[string]string) {
	writeError(w, http.StatusUnprocessableEntity, ErrorDetail{Code: "VALIDATION_ERROR", Message: "Validation failed", Details: details})
}

func NotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrorDetail{Code: "NOT_FOUND", Message: message})
}

func InternalServerError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL_SERVER_ERROR", Message: message})
}

// Blocked writes an error that requires explicit acknowledgement in the UI.
// The message is shown to the user as is.
func Blocked(w http.ResponseWriter, statusCode int, code string, message string) {
	writeError(w, statusCode, ErrorDetail{Code: code, Message: message, Dialog: true})
}
