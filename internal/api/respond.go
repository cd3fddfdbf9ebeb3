package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/local/assistgate/internal/ask"
	"github.com/local/assistgate/internal/coverletter"
)

var (
	errQuotaExceeded = errors.New("hourly request limit reached")
	errBusy          = errors.New("request already in progress")
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := errorBody{Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

// statusFor maps an error to its HTTP status: 400 validation, 413 oversized upload,
// 429 rate limited, 502 upstream failure, 500 otherwise.
func statusFor(err error) int {
	var (
		valErr  *ask.ValidationError
		formErr *coverletter.FormError
		sizeErr *http.MaxBytesError
		httpErr *ask.HTTPError
		badReq  *badRequestError
	)
	switch {
	case errors.As(err, &sizeErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &valErr), errors.As(err, &formErr), errors.As(err, &badReq):
		return http.StatusBadRequest
	case ask.IsRateLimited(err), errors.Is(err, errQuotaExceeded), errors.Is(err, errBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, ask.ErrUpstreamUnavailable), errors.As(err, &httpErr), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFor is the user-facing text for err.
func messageFor(err error) string {
	var (
		valErr  *ask.ValidationError
		formErr *coverletter.FormError
		rlErr   *ask.RateLimitError
		httpErr *ask.HTTPError
		badReq  *badRequestError
	)
	switch {
	case errors.As(err, &formErr):
		return formErr.Message
	case errors.As(err, &valErr):
		return valErr.Message
	case errors.As(err, &badReq):
		return badReq.msg
	case errors.As(err, &rlErr) && rlErr.Message != "":
		return rlErr.Message
	case ask.IsRateLimited(err), errors.Is(err, errQuotaExceeded):
		return "Rate limit exceeded. Please try again later."
	case errors.Is(err, errBusy):
		return "A request for this session is already in progress."
	case errors.As(err, &httpErr):
		return httpErr.Error()
	case statusFor(err) == http.StatusBadGateway:
		return "The assistant service is unavailable. Please try again."
	default:
		return "Internal server error"
	}
}

// writeErr answers with the status and message derived from err.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	ev := reqLogger(r).Warn()
	if status >= 500 {
		ev = reqLogger(r).Error()
	}
	ev.Err(err).Int("status", status).Msg("request failed")
	var detail error
	if status >= 500 {
		detail = err
	}
	writeError(w, status, messageFor(err), detail)
}

type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *badRequestError) Unwrap() error { return e.err }

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var sizeErr *http.MaxBytesError
		if errors.As(err, &sizeErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return &badRequestError{msg: "Request body is empty"}
		}
		return &badRequestError{msg: "Invalid JSON body", err: err}
	}
	return nil
}

func attachment(w http.ResponseWriter, contentType, fileName string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
}

func decodeBytes(b []byte, v any) error { return json.Unmarshal(b, v) }
