package payments

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ajeenpos/internal/models"
	"ajeenpos/internal/store"
)

func seedOrderWithPayment(t *testing.T, m *store.Memory, source models.OrderSource, txnStatuses ...models.TransactionStatus) (*models.Order, *models.Payment) {
	t.Helper()
	ctx := context.Background()

	order := &models.Order{
		Reference:     "ref-" + string(source),
		Status:        models.OrderInProgress,
		PaymentStatus: models.OrderPaymentPending,
		Source:        source,
		TotalPrice:    decimal.NewFromInt(50),
	}
	require.NoError(t, m.CreateOrder(ctx, order, nil))

	payment, err := m.GetOrCreatePayment(ctx, order.ID, order.TotalPrice)
	require.NoError(t, err)

	for i, st := range txnStatuses {
		txn := &models.PaymentTransaction{
			PaymentID:  payment.ID,
			Method:     models.MethodCredit,
			Amount:     decimal.NewFromInt(50),
			Status:     st,
			ExternalID: "ch_" + string(rune('a'+i)) + order.Reference,
		}
		created, err := m.GetOrCreateTransaction(ctx, txn)
		require.NoError(t, err)
		require.True(t, created)
	}
	return order, payment
}

func TestReconcileCompletedLedgerMarksPaid(t *testing.T) {
	m := store.NewMemory()
	order, payment := seedOrderWithPayment(t, m, models.SourcePOS, models.TxnCompleted)

	require.NoError(t, Reconcile(context.Background(), m, payment, order, Options{}))

	require.Equal(t, models.PaymentCompleted, payment.Status)
	require.Equal(t, models.OrderPaymentPaid, order.PaymentStatus)

	stored, err := m.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentPaid, stored.PaymentStatus)
}

func TestReconcileRefundedLedger(t *testing.T) {
	m := store.NewMemory()
	order, payment := seedOrderWithPayment(t, m, models.SourcePOS, models.TxnRefunded)

	require.NoError(t, Reconcile(context.Background(), m, payment, order, Options{}))

	require.Equal(t, models.PaymentRefunded, payment.Status)
	require.Equal(t, models.OrderPaymentRefunded, order.PaymentStatus)
}

func TestReconcileDisputedSticksUntilCleared(t *testing.T) {
	m := store.NewMemory()
	order, payment := seedOrderWithPayment(t, m, models.SourcePOS, models.TxnCompleted)
	ctx := context.Background()

	require.NoError(t, Reconcile(ctx, m, payment, order, Options{PaymentStatusOverride: models.PaymentDisputed}))
	require.Equal(t, models.PaymentDisputed, payment.Status)
	require.Equal(t, models.OrderPaymentDisputed, order.PaymentStatus)

	// A plain ledger recompute must not undo the dispute.
	require.NoError(t, Reconcile(ctx, m, payment, order, Options{}))
	require.Equal(t, models.PaymentDisputed, payment.Status)

	// Clearing the dispute falls back to the ledger.
	require.NoError(t, Reconcile(ctx, m, payment, order, Options{ClearDispute: true}))
	require.Equal(t, models.PaymentCompleted, payment.Status)
	require.Equal(t, models.OrderPaymentPaid, order.PaymentStatus)
}

func TestReconcileOrderStatusOverride(t *testing.T) {
	m := store.NewMemory()
	order, payment := seedOrderWithPayment(t, m, models.SourcePOS, models.TxnCompleted)

	err := Reconcile(context.Background(), m, payment, order, Options{
		OrderStatusOverride: models.OrderPaymentRefundFailed,
	})
	require.NoError(t, err)

	// The payment keeps its ledger-derived status; only the order carries
	// the refund_failed flag.
	require.Equal(t, models.PaymentCompleted, payment.Status)
	require.Equal(t, models.OrderPaymentRefundFailed, order.PaymentStatus)
}

func TestReconcilePaidWebsiteOrderClosesCart(t *testing.T) {
	m := store.NewMemory()
	userID := int64(7)

	cartID := m.AddCart(models.Cart{UserID: &userID})
	order, payment := seedOrderWithPayment(t, m, models.SourceWebsite, models.TxnCompleted)

	ctx := context.Background()
	order.UserID = &userID

	require.NoError(t, Reconcile(ctx, m, payment, order, Options{}))
	require.Equal(t, models.OrderPaymentPaid, order.PaymentStatus)

	cart, ok := m.GetCart(cartID)
	require.True(t, ok)
	require.True(t, cart.CheckedOut)
}

func TestReconcileMissingOrderIsSwallowed(t *testing.T) {
	m := store.NewMemory()
	payment := &models.Payment{ID: 99, OrderID: 12345, Status: models.PaymentPending}
	require.NoError(t, Reconcile(context.Background(), m, payment, nil, Options{}))
}
