package events

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"ajeenpos/internal/dispatch"
	"ajeenpos/internal/models"
	"ajeenpos/internal/payments"
	"ajeenpos/internal/provider"
	"ajeenpos/internal/store"
)

// Gateway consumes provider events and folds them into the transaction
// ledger, then reconciles payment and order status. Each event is processed
// in one transaction; side effects run only after it commits.
type Gateway struct {
	Store    store.Storage
	Dispatch *dispatch.Dispatcher
	Provider provider.Client
	Currency string
}

func NewGateway(st store.Storage, d *dispatch.Dispatcher, p provider.Client, currency string) *Gateway {
	return &Gateway{Store: st, Dispatch: d, Provider: p, Currency: currency}
}

// HandleEvent applies one webhook event. Events that reference nothing we
// know about are logged and dropped, not errored: the provider retries on
// non-2xx and an unknown reference will never become known.
func (g *Gateway) HandleEvent(ctx context.Context, ev *Event) error {
	var effects []dispatch.Effect
	err := g.Store.WithTx(ctx, func(st store.Storage) error {
		var err error
		switch ev.Kind {
		case KindIntentSucceeded:
			effects, err = g.applyIntent(ctx, st, ev.Intent, models.TxnCompleted)
		case KindIntentFailed:
			effects, err = g.applyIntent(ctx, st, ev.Intent, models.TxnFailed)
		case KindIntentCanceled:
			effects, err = g.applyIntent(ctx, st, ev.Intent, models.TxnCanceled)
		case KindRefundCreated, KindRefundUpdated:
			effects, err = g.applyRefund(ctx, st, ev.Refund)
		case KindChargeRefunded:
			effects, err = g.applyChargeRefunded(ctx, st, ev.Charge)
		case KindDisputeCreated, KindDisputeUpdated, KindDisputeClosed:
			effects, err = g.applyDispute(ctx, st, ev.Kind, ev.Dispute)
		case KindTerminalActionSucceeded, KindTerminalActionFailed:
			err = g.recordTerminalAction(ctx, st, ev.Kind, ev.Terminal)
		default:
			return ErrUnknownEvent
		}
		return err
	})
	if err != nil {
		return err
	}
	g.Dispatch.Run(ctx, effects)
	return nil
}

// findTransaction resolves a ledger entry from provider ids, preferring the
// charge id over the intent id. A transaction created from an intent id is
// later re-keyed to its charge id, so both must resolve.
func (g *Gateway) findTransaction(ctx context.Context, st store.Storage, chargeID, intentID string) (*models.PaymentTransaction, error) {
	if chargeID != "" {
		txn, err := st.FindTransactionByExternalID(ctx, chargeID)
		if err != nil || txn != nil {
			return txn, err
		}
	}
	if intentID != "" {
		return st.FindTransactionByExternalID(ctx, intentID)
	}
	return nil, nil
}

// applyIntent converges the transaction for an intent onto target. Replays
// (the transaction already sits at target) are no-ops. A first-seen intent
// creates the payment and transaction rows before converging, so an event
// arriving ahead of the local record still lands.
func (g *Gateway) applyIntent(ctx context.Context, st store.Storage, in *IntentEvent, target models.TransactionStatus) ([]dispatch.Effect, error) {
	txn, err := g.findTransaction(ctx, st, in.LatestCharge, in.ID)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	var payment *models.Payment

	if txn == nil {
		order = g.orderFromMetadata(ctx, st, in.Metadata)
		if order == nil {
			log.Printf("intent %s: no transaction and no resolvable order, dropping", in.ID)
			return nil, nil
		}
		amount := amountFromCents(in.Amount)
		payment, err = st.GetOrCreatePayment(ctx, order.ID, amount)
		if err != nil {
			return nil, err
		}
		externalID := in.LatestCharge
		if externalID == "" {
			externalID = in.ID
		}
		txn = &models.PaymentTransaction{
			PaymentID:  payment.ID,
			Method:     methodFromIntent(in),
			Amount:     amount,
			Status:     models.TxnPending,
			ExternalID: externalID,
			Timestamp:  time.Now().UTC(),
		}
		if _, err := st.GetOrCreateTransaction(ctx, txn); err != nil {
			return nil, err
		}
	} else {
		payment, err = st.GetPayment(ctx, txn.PaymentID)
		if err != nil {
			return nil, err
		}
		order, err = st.GetOrderForUpdate(ctx, payment.OrderID)
		if err != nil {
			return nil, err
		}
	}

	if txn.Status == target {
		log.Printf("intent %s: transaction already %s, replay ignored", in.ID, target)
		return nil, nil
	}

	switch target {
	case models.TxnCompleted:
		if in.Card != nil {
			txn.Metadata.CardBrand = in.Card.Brand
			txn.Metadata.CardLast4 = in.Card.Last4
		}
		// Re-key from the intent id to the settled charge id.
		if in.LatestCharge != "" && txn.ExternalID == in.ID {
			txn.ExternalID = in.LatestCharge
		}
	case models.TxnFailed:
		if in.LastError != nil {
			txn.Metadata.FailureReason = in.LastError.Message
			txn.Metadata.FailureCode = in.LastError.Code
		}
	case models.TxnCanceled:
		txn.Metadata.CancellationReason = in.CancellationReason
	}
	txn.Status = target
	if err := st.UpdateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	if err := payments.Reconcile(ctx, st, payment, order, payments.Options{}); err != nil {
		return nil, err
	}
	return g.Dispatch.Evaluate(ctx, st, order, false)
}

func (g *Gateway) applyRefund(ctx context.Context, st store.Storage, rf *RefundEvent) ([]dispatch.Effect, error) {
	txn, err := g.findTransaction(ctx, st, rf.Charge, rf.PaymentIntent)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		log.Printf("refund %s: no matching transaction, dropping", rf.ID)
		return nil, nil
	}

	txn.Metadata.UpsertRefund(models.RefundRecord{
		RefundID:      rf.ID,
		Amount:        amountFromCents(rf.Amount),
		Reason:        rf.Reason,
		Status:        rf.Status,
		FailureReason: rf.FailureReason,
		Source:        "provider",
		CreatedAt:     time.Now().UTC(),
	})

	var opts payments.Options
	switch rf.Status {
	case "succeeded":
		total := txn.Metadata.SucceededRefundTotal()
		if total.GreaterThanOrEqual(txn.Amount) {
			txn.Status = models.TxnRefunded
		} else if total.GreaterThan(decimal.Zero) {
			// Partial refund leaves the transaction completed; the
			// aggregate carries the partial state instead.
			opts.PaymentStatusOverride = models.PaymentPartiallyRefunded
		}
	case "failed":
		// The charge itself stands; only the customer-facing status flags
		// that a refund needs manual attention.
		opts.OrderStatusOverride = models.OrderPaymentRefundFailed
	}

	if err := st.UpdateTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return g.reconcileAndEvaluate(ctx, st, txn.PaymentID, opts)
}

// applyChargeRefunded handles the legacy charge-level refund event, which
// some provider configurations emit instead of refund.*.
func (g *Gateway) applyChargeRefunded(ctx context.Context, st store.Storage, ch *ChargeEvent) ([]dispatch.Effect, error) {
	txn, err := g.findTransaction(ctx, st, ch.ID, ch.PaymentIntent)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		log.Printf("charge %s: refunded event with no matching transaction, dropping", ch.ID)
		return nil, nil
	}
	if ch.Refunded {
		txn.Status = models.TxnRefunded
		if err := st.UpdateTransaction(ctx, txn); err != nil {
			return nil, err
		}
	} else {
		log.Printf("charge %s: partial refund of %d reported, awaiting refund events", ch.ID, ch.AmountRefunded)
	}
	return g.reconcileAndEvaluate(ctx, st, txn.PaymentID, payments.Options{})
}

func (g *Gateway) applyDispute(ctx context.Context, st store.Storage, kind string, d *DisputeEvent) ([]dispatch.Effect, error) {
	txn, err := g.findTransaction(ctx, st, d.Charge, d.PaymentIntent)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		log.Printf("dispute %s: no matching transaction, dropping", d.ID)
		return nil, nil
	}

	rec := models.DisputeRecord{
		DisputeID: d.ID,
		Amount:    amountFromCents(d.Amount),
		Reason:    d.Reason,
		Status:    d.Status,
	}
	if d.EvidenceDueBy > 0 {
		due := time.Unix(d.EvidenceDueBy, 0).UTC()
		rec.EvidenceDueBy = &due
	}
	txn.Metadata.UpsertDispute(rec)
	if err := st.UpdateTransaction(ctx, txn); err != nil {
		return nil, err
	}

	opts := payments.Options{PaymentStatusOverride: models.PaymentDisputed}
	if kind == KindDisputeClosed {
		switch d.Status {
		case "won":
			// Resolved in our favor: fall back to whatever the ledger says.
			opts = payments.Options{ClearDispute: true}
		case "lost":
			opts = payments.Options{PaymentStatusOverride: models.PaymentFailed}
		}
	}
	return g.reconcileAndEvaluate(ctx, st, txn.PaymentID, opts)
}

// recordTerminalAction appends the reader event to the transaction's audit
// trail. Terminal outcomes never move payment status; the intent events do.
func (g *Gateway) recordTerminalAction(ctx context.Context, st store.Storage, kind string, t *TerminalEvent) error {
	txn, err := g.findTransaction(ctx, st, "", t.PaymentIntent)
	if err != nil {
		return err
	}
	if txn == nil {
		log.Printf("terminal action %s: no matching transaction, dropping", t.ID)
		return nil
	}
	txn.Metadata.TerminalActions = append(txn.Metadata.TerminalActions, models.TerminalAction{
		ActionID:       t.ID,
		ActionType:     t.ActionType,
		Status:         t.Status,
		FailureCode:    t.FailureCode,
		FailureMessage: t.FailureMessage,
		Event:          kind,
		At:             time.Now().UTC(),
	})
	return st.UpdateTransaction(ctx, txn)
}

func (g *Gateway) reconcileAndEvaluate(ctx context.Context, st store.Storage, paymentID int64, opts payments.Options) ([]dispatch.Effect, error) {
	payment, err := st.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	order, err := st.GetOrderForUpdate(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if err := payments.Reconcile(ctx, st, payment, order, opts); err != nil {
		return nil, err
	}
	return g.Dispatch.Evaluate(ctx, st, order, false)
}

func (g *Gateway) orderFromMetadata(ctx context.Context, st store.Storage, md map[string]string) *models.Order {
	raw, ok := md["order_id"]
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("event metadata carries bad order_id %q", raw)
		return nil
	}
	order, err := st.GetOrderForUpdate(ctx, id)
	if err != nil {
		log.Printf("event references order %d: %v", id, err)
		return nil
	}
	return order
}

func methodFromIntent(in *IntentEvent) models.PaymentMethod {
	switch in.PaymentMethodType {
	case "card", "card_present":
		return models.MethodCredit
	case "cash":
		return models.MethodCash
	}
	if in.Card != nil {
		return models.MethodCredit
	}
	return models.MethodOther
}
