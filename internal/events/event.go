package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event kinds delivered by the payment provider's webhook.
const (
	KindIntentSucceeded = "payment_intent.succeeded"
	KindIntentFailed    = "payment_intent.payment_failed"
	KindIntentCanceled  = "payment_intent.canceled"

	KindRefundCreated  = "refund.created"
	KindRefundUpdated  = "refund.updated"
	KindChargeRefunded = "charge.refunded"

	KindDisputeCreated = "charge.dispute.created"
	KindDisputeUpdated = "charge.dispute.updated"
	KindDisputeClosed  = "charge.dispute.closed"

	KindTerminalActionSucceeded = "terminal.reader.action_succeeded"
	KindTerminalActionFailed    = "terminal.reader.action_failed"
)

// ErrUnknownEvent marks event kinds this service does not handle. The webhook
// acknowledges them so the provider stops retrying.
var ErrUnknownEvent = errors.New("events: unknown event kind")

// IntentEvent is the payment_intent object carried by intent events.
type IntentEvent struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	LatestCharge       string            `json:"latest_charge"`
	PaymentMethodType  string            `json:"payment_method_type"`
	Metadata           map[string]string `json:"metadata"`
	CancellationReason string            `json:"cancellation_reason"`
	LastError          *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Card *struct {
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	} `json:"card"`
}

type RefundEvent struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	FailureReason string `json:"failure_reason"`
	PaymentIntent string `json:"payment_intent"`
	Charge        string `json:"charge"`
}

type ChargeEvent struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	AmountRefunded int64  `json:"amount_refunded"`
	Refunded       bool   `json:"refunded"`
}

type DisputeEvent struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	Charge        string `json:"charge"`
	PaymentIntent string `json:"payment_intent"`
	EvidenceDueBy int64  `json:"evidence_due_by"`
}

type TerminalEvent struct {
	ID             string `json:"id"`
	ActionType     string `json:"action_type"`
	Status         string `json:"status"`
	FailureCode    string `json:"failure_code"`
	FailureMessage string `json:"failure_message"`
	PaymentIntent  string `json:"payment_intent"`
}

// Event is the decoded webhook envelope. Exactly one payload pointer is set,
// determined by Kind.
type Event struct {
	ID      string
	Kind    string
	Created time.Time

	Intent   *IntentEvent
	Refund   *RefundEvent
	Charge   *ChargeEvent
	Dispute  *DisputeEvent
	Terminal *TerminalEvent
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a webhook body into a typed Event. Unhandled kinds
// return ErrUnknownEvent with the envelope's kind preserved in the message.
func ParseEvent(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	ev := &Event{
		ID:      env.ID,
		Kind:    env.Type,
		Created: time.Unix(env.Created, 0).UTC(),
	}

	var payload any
	switch env.Type {
	case KindIntentSucceeded, KindIntentFailed, KindIntentCanceled:
		ev.Intent = &IntentEvent{}
		payload = ev.Intent
	case KindRefundCreated, KindRefundUpdated:
		ev.Refund = &RefundEvent{}
		payload = ev.Refund
	case KindChargeRefunded:
		ev.Charge = &ChargeEvent{}
		payload = ev.Charge
	case KindDisputeCreated, KindDisputeUpdated, KindDisputeClosed:
		ev.Dispute = &DisputeEvent{}
		payload = ev.Dispute
	case KindTerminalActionSucceeded, KindTerminalActionFailed:
		ev.Terminal = &TerminalEvent{}
		payload = ev.Terminal
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Type)
	}

	if err := json.Unmarshal(env.Data.Object, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return ev, nil
}

// amountFromCents converts a provider minor-unit amount to dollars.
func amountFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
