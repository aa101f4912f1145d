package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/mrz1836/taskreview/internal/constants"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// retryAfterSeconds is advertised on 503 responses.
const retryAfterSeconds = 5

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Detail  string `json:"detail,omitempty"`

	// CurrentStatus is set on 409 so the client can re-fetch and show it.
	CurrentStatus constants.TaskStatus `json:"current_status,omitempty"`
	Retryable     bool                 `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps an error category onto an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, reviewerrors.ErrUnauthenticated) {
		return http.StatusUnauthorized
	}
	switch reviewerrors.KindOf(err) {
	case reviewerrors.KindValidation:
		return http.StatusUnprocessableEntity
	case reviewerrors.KindAuth:
		return http.StatusForbidden
	case reviewerrors.KindConflict:
		return http.StatusConflict
	case reviewerrors.KindResource:
		return http.StatusServiceUnavailable
	case reviewerrors.KindNotFound:
		return http.StatusNotFound
	case reviewerrors.KindNone:
		return http.StatusOK
	case reviewerrors.KindInternal:
	}
	if errors.Is(err, reviewerrors.ErrTaskExists) {
		return http.StatusConflict
	}
	if reviewerrors.Retryable(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message, action := reviewerrors.Actionable(err)
	resp := errorResponse{
		Error:     string(reviewerrors.KindOf(err)),
		Message:   message,
		Action:    action,
		Retryable: reviewerrors.Retryable(err),
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		resp.Message = "Internal error."
		resp.Action = ""
	} else {
		resp.Detail = err.Error()
	}
	if sc, ok := reviewerrors.AsStateConflict(err); ok {
		resp.CurrentStatus = sc.Actual
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, status, resp)
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched
// when optional is true.
func decodeJSON(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return reviewerrors.Validationf("malformed request body: %v", err)
	}
	return nil
}
