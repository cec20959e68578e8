package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxnMetadata is the free-form document attached to a transaction. Sub-records
// are appended or updated in place, never overwritten wholesale.
type TxnMetadata struct {
	CardBrand          string `json:"card_brand,omitempty"`
	CardLast4          string `json:"card_last4,omitempty"`
	FailureReason      string `json:"failure_reason,omitempty"`
	FailureCode        string `json:"failure_code,omitempty"`
	CancellationReason string `json:"cancellation_reason,omitempty"`

	CashTendered *decimal.Decimal `json:"cash_tendered,omitempty"`
	Change       *decimal.Decimal `json:"change,omitempty"`

	Refunds         []RefundRecord   `json:"refunds,omitempty"`
	Disputes        []DisputeRecord  `json:"disputes,omitempty"`
	TerminalActions []TerminalAction `json:"terminal_actions,omitempty"`
}

type RefundRecord struct {
	RefundID      string          `json:"refund_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
	Status        string          `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Source        string          `json:"source,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
}

type DisputeRecord struct {
	DisputeID     string          `json:"dispute_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
	Status        string          `json:"status"`
	EvidenceDueBy *time.Time      `json:"evidence_due_by,omitempty"`
	Note          string          `json:"note,omitempty"`
}

type TerminalAction struct {
	ActionID       string    `json:"action_id"`
	ActionType     string    `json:"action_type,omitempty"`
	Status         string    `json:"status,omitempty"`
	FailureCode    string    `json:"failure_code,omitempty"`
	FailureMessage string    `json:"failure_message,omitempty"`
	Event          string    `json:"event"`
	At             time.Time `json:"at"`
}

// UpsertRefund updates the record with the same refund id or appends a new one.
func (m *TxnMetadata) UpsertRefund(r RefundRecord) {
	for i := range m.Refunds {
		if m.Refunds[i].RefundID == r.RefundID {
			m.Refunds[i].Status = r.Status
			m.Refunds[i].Reason = r.Reason
			if !r.Amount.IsZero() {
				m.Refunds[i].Amount = r.Amount
			}
			if r.FailureReason != "" {
				m.Refunds[i].FailureReason = r.FailureReason
			}
			return
		}
	}
	m.Refunds = append(m.Refunds, r)
}

// UpsertDispute updates the record with the same dispute id or appends one.
func (m *TxnMetadata) UpsertDispute(d DisputeRecord) {
	for i := range m.Disputes {
		if m.Disputes[i].DisputeID == d.DisputeID {
			m.Disputes[i].Status = d.Status
			if d.Reason != "" {
				m.Disputes[i].Reason = d.Reason
			}
			return
		}
	}
	m.Disputes = append(m.Disputes, d)
}

// SucceededRefundTotal sums the refund records that actually settled.
func (m TxnMetadata) SucceededRefundTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range m.Refunds {
		if r.Status == "succeeded" {
			total = total.Add(r.Amount)
		}
	}
	return total
}
