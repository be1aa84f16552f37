package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrInvalidPayload   = errors.New("invalid_webhook_payload")
	ErrEventIgnored     = errors.New("webhook_event_ignored")
)

// WebhookEvent is the normalized form of a processor notification.
type WebhookEvent struct {
	// Type is one of "payment_successful", "payment_failed",
	// "dispute_created", "dispute_closed".
	Type         string
	ProcessorKey string
}

// VerifySignature checks the Stripe-Signature header against the webhook
// secret: HMAC-SHA256 over "<timestamp>.<payload>".
func VerifySignature(secret string, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return ErrInvalidSignature
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type chargeObject struct {
	ID     string `json:"id"`
	Charge string `json:"charge"`
}

// ParseWebhook maps a Stripe event to the charge lifecycle transition it
// drives. Unrecognized event types return ErrEventIgnored.
func ParseWebhook(payload []byte) (*WebhookEvent, error) {
	var event eventEnvelope
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, ErrInvalidPayload
	}

	var object chargeObject
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		return nil, ErrInvalidPayload
	}
	key := object.ID
	if object.Charge != "" {
		// Dispute objects reference the charge they contest.
		key = object.Charge
	}
	if key == "" {
		return nil, ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Type) {
	case "charge.succeeded":
		return &WebhookEvent{Type: "payment_successful", ProcessorKey: key}, nil
	case "charge.failed":
		return &WebhookEvent{Type: "payment_failed", ProcessorKey: key}, nil
	case "charge.dispute.created", "charge.dispute.updated":
		return &WebhookEvent{Type: "dispute_created", ProcessorKey: key}, nil
	case "charge.dispute.closed":
		return &WebhookEvent{Type: "dispute_closed", ProcessorKey: key}, nil
	default:
		return nil, ErrEventIgnored
	}
}
