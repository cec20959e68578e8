package payments

import (
	"context"
	"log"

	"ajeenpos/internal/models"
	"ajeenpos/internal/store"
)

// Options steer one reconciliation pass. Zero value means: recompute from the
// ledger and apply the direct status mapping.
type Options struct {
	// PaymentStatusOverride forces the payment status instead of recomputing.
	// Used by dispute handlers for states with no per-transaction form.
	PaymentStatusOverride models.PaymentStatus
	// OrderStatusOverride forces the order's payment_status regardless of the
	// mapping, e.g. refund_failed after a failed refund.
	OrderStatusOverride models.OrderPaymentStatus
	// ClearDispute allows a payment previously forced to disputed to be
	// recomputed from the ledger (dispute resolved in our favor).
	ClearDispute bool
}

// Reconcile recomputes payment.Status from its ledger, projects it onto the
// order's payment_status, and marks the originating cart checked out when a
// website order first becomes paid. The passed structs are updated in place.
// A missing order is logged and ignored: a provider event must never crash the
// ingestion pipeline.
func Reconcile(ctx context.Context, st store.Storage, payment *models.Payment, order *models.Order, opts Options) error {
	if payment == nil {
		log.Printf("reconcile called without payment")
		return nil
	}
	if order == nil {
		var err error
		order, err = st.GetOrder(ctx, payment.OrderID)
		if err != nil {
			log.Printf("reconcile payment=%d: order %d not found: %v", payment.ID, payment.OrderID, err)
			return nil
		}
	}

	prevPayment := payment.Status
	prevOrder := order.PaymentStatus

	newStatus := opts.PaymentStatusOverride
	if newStatus == "" {
		txns, err := st.ListTransactions(ctx, payment.ID)
		if err != nil {
			return err
		}
		if len(txns) == 0 {
			log.Printf("reconcile payment=%d: no transactions in ledger", payment.ID)
		}
		newStatus = ResolveStatus(txns)
		// A forced dispute sticks until a dispute handler clears it.
		if prevPayment == models.PaymentDisputed && !opts.ClearDispute {
			newStatus = models.PaymentDisputed
		}
	}

	if newStatus != prevPayment {
		if err := st.SetPaymentStatus(ctx, payment.ID, newStatus); err != nil {
			return err
		}
		payment.Status = newStatus
	}

	orderStatus := opts.OrderStatusOverride
	if orderStatus == "" {
		orderStatus = OrderPaymentStatus(newStatus)
	}
	if orderStatus != prevOrder {
		if err := st.SetOrderPaymentStatus(ctx, order.ID, orderStatus); err != nil {
			return err
		}
		order.PaymentStatus = orderStatus
	}

	if order.PaymentStatus == models.OrderPaymentPaid && order.Source == models.SourceWebsite {
		done, err := st.MarkCartCheckedOut(ctx, order.UserID, order.GuestID)
		if err != nil {
			log.Printf("reconcile order=%d: mark cart checked out failed: %v", order.ID, err)
		} else if done {
			log.Printf("order %d: cart marked checked out", order.ID)
		}
	}

	if payment.Status != prevPayment || order.PaymentStatus != prevOrder {
		log.Printf("reconciled payment=%d %s->%s order=%d payment_status %s->%s",
			payment.ID, prevPayment, payment.Status, order.ID, prevOrder, order.PaymentStatus)
	}
	return nil
}
