package server

import (
	"errors"
	"net/http"

	cartdomain "github.com/billinglab/subledger/internal/cart/domain"
	chargedomain "github.com/billinglab/subledger/internal/charge/domain"
	checkoutdomain "github.com/billinglab/subledger/internal/checkout/domain"
	coupondomain "github.com/billinglab/subledger/internal/coupon/domain"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	organizationdomain "github.com/billinglab/subledger/internal/organization/domain"
	plandomain "github.com/billinglab/subledger/internal/plan/domain"
	procdomain "github.com/billinglab/subledger/internal/processor/domain"
	subscriptiondomain "github.com/billinglab/subledger/internal/subscription/domain"
	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var insufficient *chargedomain.InsufficientFundsError
	if errors.As(err, &insufficient) {
		return http.StatusUnprocessableEntity,
			errorPayload{Type: "insufficient_funds", Message: insufficient.Error()}
	}
	var transition *chargedomain.StateTransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict,
			errorPayload{Type: "state_transition", Message: transition.Error()}
	}
	var processor *procdomain.Error
	if errors.As(err, &processor) {
		status := http.StatusPaymentRequired
		if processor.Retryable {
			status = http.StatusBadGateway
		}
		return status, errorPayload{Type: "processor_error", Message: processor.Error()}
	}

	switch {
	case errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, chargedomain.ErrChargeNotFound),
		errors.Is(err, chargedomain.ErrChargeItemNotFound),
		errors.Is(err, coupondomain.ErrCouponNotFound),
		errors.Is(err, cartdomain.ErrCartItemNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, organizationdomain.ErrSlugTaken),
		errors.Is(err, cartdomain.ErrDuplicateItem),
		errors.Is(err, plandomain.ErrPlanInUse):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}

	case errors.Is(err, organizationdomain.ErrFundsUnavailable):
		return http.StatusUnprocessableEntity,
			errorPayload{Type: "insufficient_funds", Message: err.Error()}

	case errors.Is(err, ledgerdomain.ErrIntegrityViolation):
		return http.StatusInternalServerError,
			errorPayload{Type: "integrity_violation", Message: err.Error()}

	case errors.Is(err, checkoutdomain.ErrEmptyCart),
		errors.Is(err, coupondomain.ErrCouponExpired),
		errors.Is(err, coupondomain.ErrCouponExhausted),
		errors.Is(err, coupondomain.ErrInvalidPercent),
		errors.Is(err, chargedomain.ErrInvalidAmount),
		errors.Is(err, chargedomain.ErrNotPaid),
		errors.Is(err, subscriptiondomain.ErrEndsAtRegression),
		errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidAmount),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: err.Error()}
	}

	return http.StatusInternalServerError,
		errorPayload{Type: "internal_error", Message: "internal error"}
}
