package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	chargedomain "github.com/billinglab/subledger/internal/charge/domain"
	"github.com/billinglab/subledger/internal/processor/stripe"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type fakeWebhookPayload struct {
	Type         string `json:"type"`
	ProcessorKey string `json:"processor_key"`
}

// HandleProcessorWebhook drives charge lifecycle transitions from processor
// notifications. Duplicate deliveries hit an already-performed transition and
// are acknowledged without rewriting anything.
func (s *Server) HandleProcessorWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var event *stripe.WebhookEvent
	switch provider {
	case "stripe":
		if err := stripe.VerifySignature(s.cfg.StripeWebhookKey, payload, c.Request.Header); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		event, err = stripe.ParseWebhook(payload)
		if errors.Is(err, stripe.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	case "fake":
		var body fakeWebhookPayload
		if err := json.Unmarshal(payload, &body); err != nil || body.Type == "" || body.ProcessorKey == "" {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		event = &stripe.WebhookEvent{Type: body.Type, ProcessorKey: body.ProcessorKey}
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "payment_successful":
		charge, err := s.chargeSvc.GetByProcessorKey(ctx, event.ProcessorKey)
		if err == nil {
			err = s.chargeSvc.PaymentSuccessful(ctx, charge.ID)
		}
		if err != nil && !isDuplicateTransition(err) {
			AbortWithError(c, err)
			return
		}
	case "payment_failed":
		if err := s.chargeSvc.Failed(ctx, event.ProcessorKey); err != nil && !isDuplicateTransition(err) {
			AbortWithError(c, err)
			return
		}
	case "dispute_created":
		if err := s.chargeSvc.DisputeCreated(ctx, event.ProcessorKey); err != nil && !isDuplicateTransition(err) {
			AbortWithError(c, err)
			return
		}
	case "dispute_closed":
		if err := s.chargeSvc.DisputeClosed(ctx, event.ProcessorKey); err != nil && !isDuplicateTransition(err) {
			AbortWithError(c, err)
			return
		}
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	s.log.Info("processor webhook handled",
		zap.String("provider", provider),
		zap.String("type", event.Type),
		zap.String("processor_key", event.ProcessorKey))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isDuplicateTransition(err error) bool {
	var transition *chargedomain.StateTransitionError
	return errors.As(err, &transition) && transition.From == transition.To
}
