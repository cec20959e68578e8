package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ajeenpos/internal/dispatch"
	"ajeenpos/internal/models"
	"ajeenpos/internal/provider"
	"ajeenpos/internal/store"
)

var (
	ErrRefundNotAllowed     = errors.New("payments: transaction is not refundable")
	ErrRefundExceedsBalance = errors.New("payments: refund exceeds refundable balance")
)

// RefundService issues refunds against ledger transactions. Card refunds go
// through the provider; cash refunds settle immediately at the drawer.
type RefundService struct {
	Store    store.Storage
	Provider provider.Client
	Dispatch *dispatch.Dispatcher
}

func NewRefundService(st store.Storage, p provider.Client, d *dispatch.Dispatcher) *RefundService {
	return &RefundService{Store: st, Provider: p, Dispatch: d}
}

type RefundRequest struct {
	PaymentID     int64           `json:"payment_id"`
	TransactionID int64           `json:"transaction_id"`
	// Amount zero means refund the remaining refundable balance.
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type RefundResult struct {
	RefundID string          `json:"refund_id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
}

// Refund validates the request, moves money, and records the outcome. The
// provider call happens outside the recording transaction: if recording
// fails after the provider succeeded, the refund webhook converges the
// ledger on retry.
func (s *RefundService) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	txn, err := s.findTransaction(ctx, req)
	if err != nil {
		return nil, err
	}
	if txn.Status != models.TxnCompleted && txn.Status != models.TxnRefunded {
		return nil, ErrRefundNotAllowed
	}

	remaining := txn.Amount.Sub(txn.Metadata.SucceededRefundTotal())
	amount := req.Amount
	if amount.IsZero() {
		amount = remaining
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.GreaterThan(remaining) {
		return nil, ErrRefundExceedsBalance
	}

	rec := models.RefundRecord{
		Amount:    amount,
		Reason:    req.Reason,
		Source:    "staff",
		CreatedAt: time.Now().UTC(),
	}
	switch txn.Method {
	case models.MethodCash:
		rec.RefundID = "cashrf_" + uuid.NewString()
		rec.Status = "succeeded"
	default:
		refund, err := s.Provider.CreateRefund(ctx, provider.CreateRefundParams{
			PaymentIntent: txn.ExternalID,
			Amount:        amount.Shift(2).IntPart(),
			Reason:        req.Reason,
		})
		if err != nil {
			return nil, fmt.Errorf("create provider refund: %w", err)
		}
		rec.RefundID = refund.ID
		rec.Status = refund.Status
	}

	var effects []dispatch.Effect
	err = s.Store.WithTx(ctx, func(st store.Storage) error {
		fresh, err := st.FindTransactionByExternalID(ctx, txn.ExternalID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return store.ErrNotFound
		}
		fresh.Metadata.UpsertRefund(rec)

		var opts Options
		switch rec.Status {
		case "succeeded":
			total := fresh.Metadata.SucceededRefundTotal()
			if total.GreaterThanOrEqual(fresh.Amount) {
				fresh.Status = models.TxnRefunded
			} else if total.GreaterThan(decimal.Zero) {
				// Partial refund leaves the transaction completed; the
				// aggregate carries the partial state instead.
				opts.PaymentStatusOverride = models.PaymentPartiallyRefunded
			}
		case "failed":
			opts.OrderStatusOverride = models.OrderPaymentRefundFailed
		}
		if err := st.UpdateTransaction(ctx, fresh); err != nil {
			return err
		}

		payment, err := st.GetPayment(ctx, fresh.PaymentID)
		if err != nil {
			return err
		}
		if err := Reconcile(ctx, st, payment, nil, opts); err != nil {
			return err
		}
		order, err := st.GetOrderForUpdate(ctx, payment.OrderID)
		if err != nil {
			return err
		}
		effects, err = s.Dispatch.Evaluate(ctx, st, order, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Dispatch.Run(ctx, effects)

	return &RefundResult{RefundID: rec.RefundID, Status: rec.Status, Amount: amount}, nil
}

func (s *RefundService) findTransaction(ctx context.Context, req RefundRequest) (*models.PaymentTransaction, error) {
	txns, err := s.Store.ListTransactions(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if req.TransactionID != 0 {
		for i := range txns {
			if txns[i].ID == req.TransactionID {
				return &txns[i], nil
			}
		}
		return nil, store.ErrNotFound
	}
	// No transaction named: only unambiguous for single-transaction payments.
	var completed *models.PaymentTransaction
	for i := range txns {
		if txns[i].Status == models.TxnCompleted {
			if completed != nil {
				return nil, fmt.Errorf("%w: split payment requires a transaction id", ErrRefundNotAllowed)
			}
			completed = &txns[i]
		}
	}
	if completed == nil {
		return nil, store.ErrNotFound
	}
	return completed, nil
}
