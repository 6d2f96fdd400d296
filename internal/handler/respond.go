package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/coursedesk/sales-assistant/internal/domain/coupon"
	"github.com/coursedesk/sales-assistant/internal/domain/course"
	"github.com/coursedesk/sales-assistant/internal/domain/discount"
	"github.com/coursedesk/sales-assistant/internal/domain/order"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details ...string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// writeDomainError maps domain errors to HTTP statuses. Anything unmapped is
// an internal error: logged with its cause, reported without it.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		courseNotFound *order.CourseNotFoundError
		invalidCoupon  *order.InvalidCouponError
	)
	switch {
	case errors.As(err, &courseNotFound):
		writeError(w, http.StatusNotFound, courseNotFound.Error())
	case errors.As(err, &invalidCoupon):
		writeError(w, http.StatusUnprocessableEntity, "invalid coupon", invalidCoupon.Reasons...)
	case errors.Is(err, course.ErrNotFound):
		writeError(w, http.StatusNotFound, "course not found")
	case errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, discount.ErrNotFound):
		writeError(w, http.StatusNotFound, "applied discount not found")
	case errors.Is(err, discount.ErrOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, "discount value outside the allowed range")
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, "order requires at least one course")
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "order is not in a state that allows this transition")
	case errors.Is(err, order.ErrAmountMismatch):
		writeError(w, http.StatusUnprocessableEntity, "order amounts are inconsistent")
	case errors.Is(err, coupon.ErrAlreadyConsumed):
		writeError(w, http.StatusConflict, "coupon usage limit reached")
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body", err.Error())
		return false
	}
	return true
}
