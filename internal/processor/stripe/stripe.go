// Package stripe implements the payment backend against the Stripe REST API.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/billinglab/subledger/internal/config"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	"github.com/billinglab/subledger/internal/processor/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const apiBase = "https://api.stripe.com/v1"

type Backend struct {
	log     *zap.Logger
	privKey string
	client  *http.Client
}

func NewBackend(cfg config.Config, log *zap.Logger) *Backend {
	return &Backend{
		log:     log.Named("processor.stripe"),
		privKey: cfg.StripePrivKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type chargePayload struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Paid    bool   `json:"paid"`
	Status  string `json:"status"`
	Source  struct {
		Last4    string `json:"last4"`
		ExpMonth int    `json:"exp_month"`
		ExpYear  int    `json:"exp_year"`
	} `json:"source"`
}

type customerPayload struct {
	ID string `json:"id"`
}

type transferPayload struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (b *Backend) CreateCharge(ctx context.Context, customer *orgdomain.Organization, amount int64, unit, descr, stmtDescr string) (domain.ChargeReceipt, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(unit))
	form.Set("customer", customer.ProcessorCustomerID)
	form.Set("description", descr)
	if stmtDescr != "" {
		form.Set("statement_descriptor", stmtDescr)
	}
	var payload chargePayload
	if err := b.post(ctx, "create_charge", "/charges", form, &payload); err != nil {
		return domain.ChargeReceipt{}, err
	}
	return receiptFrom(payload), nil
}

func (b *Backend) CreateChargeOnCard(ctx context.Context, cardToken string, amount int64, unit, descr, stmtDescr string) (domain.ChargeReceipt, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(unit))
	form.Set("source", cardToken)
	form.Set("description", descr)
	if stmtDescr != "" {
		form.Set("statement_descriptor", stmtDescr)
	}
	var payload chargePayload
	if err := b.post(ctx, "create_charge_on_card", "/charges", form, &payload); err != nil {
		return domain.ChargeReceipt{}, err
	}
	return receiptFrom(payload), nil
}

func receiptFrom(payload chargePayload) domain.ChargeReceipt {
	expDate := time.Time{}
	if payload.Source.ExpYear > 0 {
		expDate = time.Date(payload.Source.ExpYear, time.Month(payload.Source.ExpMonth), 1, 0, 0, 0, 0, time.UTC)
	}
	return domain.ChargeReceipt{
		ProcessorKey: payload.ID,
		CreatedAt:    time.Unix(payload.Created, 0).UTC(),
		Last4:        payload.Source.Last4,
		ExpDate:      expDate,
	}
}

func (b *Backend) RefundCharge(ctx context.Context, processorKey string, amount int64) error {
	form := url.Values{}
	form.Set("charge", processorKey)
	form.Set("amount", strconv.FormatInt(amount, 10))
	var payload map[string]any
	return b.post(ctx, "refund_charge", "/refunds", form, &payload)
}

func (b *Backend) CreateOrUpdateCard(ctx context.Context, customer *orgdomain.Organization, cardToken string) (string, error) {
	form := url.Values{}
	form.Set("source", cardToken)
	var payload customerPayload
	if customer.ProcessorCustomerID != "" {
		err := b.post(ctx, "update_card", "/customers/"+customer.ProcessorCustomerID, form, &payload)
		if err == nil {
			return payload.ID, nil
		}
		// A missing processor customer (e.g. devel vs production keys)
		// falls through to creating a fresh one.
		b.log.Warn("retrieve customer failed, creating a new one",
			zap.String("processor_customer_id", customer.ProcessorCustomerID), zap.Error(err))
	}
	form.Set("email", customer.Email)
	form.Set("description", customer.Slug)
	if err := b.post(ctx, "create_customer", "/customers", form, &payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}

func (b *Backend) CreateOrUpdateBank(ctx context.Context, provider *orgdomain.Organization, bankToken string) (string, error) {
	form := url.Values{}
	form.Set("external_account", bankToken)
	var payload customerPayload
	if provider.ProcessorRecipientID != "" {
		err := b.post(ctx, "update_bank", "/accounts/"+provider.ProcessorRecipientID+"/external_accounts", form, &payload)
		if err == nil {
			return provider.ProcessorRecipientID, nil
		}
		b.log.Warn("retrieve recipient failed, creating a new one",
			zap.String("processor_recipient_id", provider.ProcessorRecipientID), zap.Error(err))
	}
	form.Set("email", provider.Email)
	if err := b.post(ctx, "create_recipient", "/accounts", form, &payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}

func (b *Backend) RetrieveBank(ctx context.Context, provider *orgdomain.Organization) (domain.BankInfo, error) {
	if provider.ProcessorRecipientID == "" {
		return domain.BankInfo{}, &domain.Error{Op: "retrieve_bank", Detail: "no bank on file"}
	}
	var payload struct {
		ExternalAccounts struct {
			Data []struct {
				BankName string `json:"bank_name"`
				Last4    string `json:"last4"`
				Currency string `json:"currency"`
			} `json:"data"`
		} `json:"external_accounts"`
	}
	if err := b.get(ctx, "retrieve_bank", "/accounts/"+provider.ProcessorRecipientID, &payload); err != nil {
		return domain.BankInfo{}, err
	}
	if len(payload.ExternalAccounts.Data) == 0 {
		return domain.BankInfo{}, &domain.Error{Op: "retrieve_bank", Detail: "no external account"}
	}
	account := payload.ExternalAccounts.Data[0]
	return domain.BankInfo{
		BankName: account.BankName,
		Last4:    "***-" + account.Last4,
		Unit:     account.Currency,
	}, nil
}

func (b *Backend) RetrieveCharge(ctx context.Context, processorKey string) (domain.ChargeStatus, error) {
	var payload chargePayload
	if err := b.get(ctx, "retrieve_charge", "/charges/"+processorKey, &payload); err != nil {
		return "", err
	}
	if payload.Paid {
		return domain.ChargeStatusPaid, nil
	}
	if payload.Status == "failed" {
		return domain.ChargeStatusFailed, nil
	}
	return domain.ChargeStatusPending, nil
}

func (b *Backend) CreateTransfer(ctx context.Context, provider *orgdomain.Organization, amount int64, unit, descr string) (string, time.Time, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount, 10))
	form.Set("currency", strings.ToLower(unit))
	form.Set("destination", provider.ProcessorRecipientID)
	form.Set("description", descr)
	var payload transferPayload
	if err := b.post(ctx, "create_transfer", "/transfers", form, &payload); err != nil {
		return "", time.Time{}, err
	}
	return payload.ID, time.Unix(payload.Created, 0).UTC(), nil
}

// ProrateTransaction mirrors Stripe's card fee: 2.9% rounded half-up plus
// 30 cents.
func (b *Backend) ProrateTransaction(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return (amount*290+5000)/10000 + 30
}

func (b *Backend) post(ctx context.Context, op, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiBase+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return &domain.Error{Op: op, Detail: "build request", Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	return b.do(op, req, out)
}

func (b *Backend) get(ctx context.Context, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+path, nil)
	if err != nil {
		return &domain.Error{Op: op, Detail: "build request", Retryable: false, Err: err}
	}
	return b.do(op, req, out)
}

func (b *Backend) do(op string, req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+b.privKey)
	resp, err := b.client.Do(req)
	if err != nil {
		return &domain.Error{Op: op, Detail: "transport failure", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domain.Error{Op: op, Detail: "read response", Retryable: true, Err: err}
	}
	if resp.StatusCode >= 400 {
		var envelope errorEnvelope
		detail := fmt.Sprintf("http %d", resp.StatusCode)
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			detail = envelope.Error.Message
		}
		return &domain.Error{
			Op:        op,
			Detail:    detail,
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.Error{Op: op, Detail: "decode response", Err: err}
	}
	return nil
}
