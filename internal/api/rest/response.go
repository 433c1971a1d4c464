package rest

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/davidleathers/tcpa-compliance-engine/internal/domain/errors"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the error body returned to clients
type ErrorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Details map[string]any      `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ResponseEnvelope{
		Success: status < http.StatusBadRequest,
		Data:    data,
		Meta:    responseMeta(r),
	})
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, body *ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ResponseEnvelope{
		Error: body,
		Meta:  responseMeta(r),
	})
}

// writeError maps err onto an HTTP response. AppErrors keep their code and
// status; anything else is reported as an opaque internal error.
func writeError(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		logger.Error("unhandled error",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeErrorResponse(w, r, http.StatusInternalServerError, &ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "An internal error occurred",
		})
		return
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	body := &ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", appErr.Code),
			zap.Error(err))
		body.Message = "An internal error occurred"
		body.Details = nil
	}
	writeErrorResponse(w, r, status, body)
}

func validationErrorResponse(err error) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    "VALIDATION_ERROR",
		Message: "Request validation failed",
	}

	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		resp.Fields = make(map[string][]string, len(verrs))
		for _, fe := range verrs {
			resp.Fields[fe.Field()] = append(resp.Fields[fe.Field()], fe.Tag())
		}
	}
	return resp
}

func responseMeta(r *http.Request) ResponseMeta {
	return ResponseMeta{
		RequestID: requestIDFromContext(r.Context()),
		Timestamp: time.Now().UTC(),
	}
}
