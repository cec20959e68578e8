package events

import (
	"context"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ajeenpos/internal/dispatch"
	"ajeenpos/internal/hub"
	"ajeenpos/internal/models"
	"ajeenpos/internal/store"
)

func newTestGateway(m *store.Memory) *Gateway {
	d := dispatch.New(hub.New(), nil, m, "test")
	return NewGateway(m, d, nil, "usd")
}

func seedWebsiteOrder(t *testing.T, m *store.Memory) *models.Order {
	t.Helper()
	order := &models.Order{
		Reference:     "ref-web",
		Status:        models.OrderPending,
		PaymentStatus: models.OrderPaymentPending,
		Source:        models.SourceWebsite,
		TotalPrice:    decimal.NewFromFloat(50.99),
	}
	require.NoError(t, m.CreateOrder(context.Background(), order, nil))
	return order
}

func successEvent(orderID int64) *Event {
	return &Event{
		ID:   "evt_success",
		Kind: KindIntentSucceeded,
		Intent: &IntentEvent{
			ID:           "pi_1",
			Status:       "succeeded",
			Amount:       5099,
			Currency:     "usd",
			LatestCharge: "ch_1",
			Metadata:     map[string]string{"order_id": strconv.FormatInt(orderID, 10)},
			Card: &struct {
				Brand string `json:"brand"`
				Last4 string `json:"last4"`
			}{Brand: "visa", Last4: "4242"},
		},
	}
}

func TestHandleEventSuccessMarksPaid(t *testing.T) {
	m := store.NewMemory()
	order := seedWebsiteOrder(t, m)
	g := newTestGateway(m)
	ctx := context.Background()

	require.NoError(t, g.HandleEvent(ctx, successEvent(order.ID)))

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentPaid, fresh.PaymentStatus)

	payment, err := m.GetPaymentByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentCompleted, payment.Status)

	// The transaction is keyed by the settled charge id.
	txn, err := m.FindTransactionByExternalID(ctx, "ch_1")
	require.NoError(t, err)
	require.NotNil(t, txn)
	require.Equal(t, models.TxnCompleted, txn.Status)
	require.Equal(t, "visa", txn.Metadata.CardBrand)
	require.True(t, txn.Amount.Equal(decimal.NewFromFloat(50.99)))
}

func TestHandleEventReplayIsNoOp(t *testing.T) {
	m := store.NewMemory()
	order := seedWebsiteOrder(t, m)
	g := newTestGateway(m)
	ctx := context.Background()

	require.NoError(t, g.HandleEvent(ctx, successEvent(order.ID)))
	require.NoError(t, g.HandleEvent(ctx, successEvent(order.ID)))

	payment, err := m.GetPaymentByOrder(ctx, order.ID)
	require.NoError(t, err)
	txns, err := m.ListTransactions(ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.Equal(t, models.PaymentCompleted, payment.Status)
}

func TestHandleEventFailureRecordsReason(t *testing.T) {
	m := store.NewMemory()
	order := seedWebsiteOrder(t, m)
	g := newTestGateway(m)
	ctx := context.Background()

	ev := &Event{
		ID:   "evt_fail",
		Kind: KindIntentFailed,
		Intent: &IntentEvent{
			ID:       "pi_1",
			Status:   "requires_payment_method",
			Amount:   5099,
			Metadata: map[string]string{"order_id": strconv.FormatInt(order.ID, 10)},
			LastError: &struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}{Code: "card_declined", Message: "Your card was declined."},
		},
	}
	require.NoError(t, g.HandleEvent(ctx, ev))

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentFailed, fresh.PaymentStatus)

	txn, err := m.FindTransactionByExternalID(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, txn)
	require.Equal(t, models.TxnFailed, txn.Status)
	require.Equal(t, "card_declined", txn.Metadata.FailureCode)
}

func TestHandleEventFullRefund(t *testing.T) {
	m := store.NewMemory()
	order := seedWebsiteOrder(t, m)
	g := newTestGateway(m)
	ctx := context.Background()

	require.NoError(t, g.HandleEvent(ctx, successEvent(order.ID)))
	require.NoError(t, g.HandleEvent(ctx, &Event{
		ID:   "evt_refund",
		Kind: KindRefundCreated,
		Refund: &RefundEvent{
			ID:     "re_1",
			Status: "succeeded",
			Amount: 5099,
			Charge: "ch_1",
		},
	}))

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentRefunded, fresh.PaymentStatus)

	txn, err := m.FindTransactionByExternalID(ctx, "ch_1")
	require.NoError(t, err)
	require.Equal(t, models.TxnRefunded, txn.Status)
}

func TestHandleEventPartialRefund(t *testing.T) {
	m := store.NewMemory()
	order := seedWebsiteOrder(t, m)
	g := newTestGateway(m)
	ctx := context.Background()

	require.NoError(t, g.HandleEvent(ctx, successEvent(order.ID)))
	require.NoError(t, g.HandleEvent(ctx, &Event{
		ID:   "evt_refund",
		Kind: KindRefundCreated,
		Refund: &RefundEvent{
			ID:     "re_1",
			Status: "succeeded",
			Amount: 2000,
			Charge: "ch_1",
		},
	}))

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentPartiallyRefunded, fresh.PaymentStatus)
}

func TestHandleEventDisputeLifecycle(t *testing.T) {
	m := store.NewMemory()
	order := seedWebsiteOrder(t, m)
	g := newTestGateway(m)
	ctx := context.Background()

	require.NoError(t, g.HandleEvent(ctx, successEvent(order.ID)))
	require.NoError(t, g.HandleEvent(ctx, &Event{
		ID:      "evt_dp1",
		Kind:    KindDisputeCreated,
		Dispute: &DisputeEvent{ID: "dp_1", Status: "needs_response", Amount: 5099, Charge: "ch_1"},
	}))

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentDisputed, fresh.PaymentStatus)

	// Winning the dispute restores the ledger-derived status.
	require.NoError(t, g.HandleEvent(ctx, &Event{
		ID:      "evt_dp2",
		Kind:    KindDisputeClosed,
		Dispute: &DisputeEvent{ID: "dp_1", Status: "won", Amount: 5099, Charge: "ch_1"},
	}))
	fresh, err = m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentPaid, fresh.PaymentStatus)
}

func TestHandleEventDisputeLost(t *testing.T) {
	m := store.NewMemory()
	order := seedWebsiteOrder(t, m)
	g := newTestGateway(m)
	ctx := context.Background()

	require.NoError(t, g.HandleEvent(ctx, successEvent(order.ID)))
	require.NoError(t, g.HandleEvent(ctx, &Event{
		ID:      "evt_dp",
		Kind:    KindDisputeClosed,
		Dispute: &DisputeEvent{ID: "dp_1", Status: "lost", Amount: 5099, Charge: "ch_1"},
	}))

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentFailed, fresh.PaymentStatus)
}

func TestHandleEventUnmatchedReferenceDropped(t *testing.T) {
	m := store.NewMemory()
	g := newTestGateway(m)
	ctx := context.Background()

	// No order, no metadata: logged and acknowledged.
	require.NoError(t, g.HandleEvent(ctx, &Event{
		ID:     "evt_orphan",
		Kind:   KindIntentSucceeded,
		Intent: &IntentEvent{ID: "pi_x", Status: "succeeded", Amount: 100},
	}))

	require.NoError(t, g.HandleEvent(ctx, &Event{
		ID:     "evt_orphan_refund",
		Kind:   KindRefundCreated,
		Refund: &RefundEvent{ID: "re_x", Status: "succeeded", Amount: 100, Charge: "ch_x"},
	}))
}

func TestHandleEventTerminalActionAudited(t *testing.T) {
	m := store.NewMemory()
	order := seedWebsiteOrder(t, m)
	g := newTestGateway(m)
	ctx := context.Background()

	// No charge id yet: the transaction stays keyed by the intent id, which
	// is what terminal events reference.
	ev := successEvent(order.ID)
	ev.Intent.LatestCharge = ""
	require.NoError(t, g.HandleEvent(ctx, ev))

	require.NoError(t, g.HandleEvent(ctx, &Event{
		ID:   "evt_term",
		Kind: KindTerminalActionFailed,
		Terminal: &TerminalEvent{
			ID:             "tmr_1",
			ActionType:     "process_payment_intent",
			Status:         "failed",
			FailureCode:    "card_removed",
			FailureMessage: "Card removed too soon.",
			PaymentIntent:  "pi_1",
		},
	}))

	txn, err := m.FindTransactionByExternalID(ctx, "pi_1")
	require.NoError(t, err)
	require.NotNil(t, txn)
	require.Len(t, txn.Metadata.TerminalActions, 1)
	require.Equal(t, "card_removed", txn.Metadata.TerminalActions[0].FailureCode)

	// Terminal outcomes are audit-only: paid state is untouched.
	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentPaid, fresh.PaymentStatus)
}
