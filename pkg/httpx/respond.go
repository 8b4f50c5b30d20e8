// Package httpx holds the JSON request and response helpers shared by the
// chi handlers, including the mapping from domain errors to status codes.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

type malformedError struct{ err error }

func (e *malformedError) Error() string { return "malformed request body: " + e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

const maxBodyBytes = 1 << 20

// Decode reads a JSON body into dst and runs its validate tags.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &malformedError{err: err}
	}
	return validate.Struct(dst)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps expected failures to 4xx with their details and hides
// everything else behind a logged 500.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		malformed  *malformedError
		fieldErrs  validator.ValidationErrors
		stockErr   *apperr.InsufficientStockError
		transition *apperr.InvalidTransitionError
	)

	switch {
	case errors.As(err, &malformed):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: malformed.Error(), Code: "validation_error"})
	case errors.As(err, &fieldErrs):
		details := make([]FieldError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "request validation failed", Code: "validation_error", Details: details})
	case errors.Is(err, apperr.ErrValidation):
		WriteJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, apperr.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, apperr.ErrEmptyCart):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "empty_cart"})
	case errors.As(err, &stockErr):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: stockErr.Error(), Code: "insufficient_stock", Details: stockErr.Shortages})
	case errors.As(err, &transition):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: transition.Error(), Code: "invalid_transition", Details: transition})
	case errors.Is(err, apperr.ErrConcurrencyConflict):
		WriteJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "concurrency_conflict"})
	default:
		log.Error("request failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "internal"})
	}
}
