package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ajeenpos/internal/hub"
	"ajeenpos/internal/models"
	"ajeenpos/internal/printer"
	"ajeenpos/internal/store"
)

func newAgent(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","message":"printed"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedPaidOrder(t *testing.T, m *store.Memory, status models.OrderStatus) *models.Order {
	t.Helper()
	m.AddProduct(models.Product{ID: 1, Name: "Zaatar Manakeesh", Category: "bakery", Price: decimal.NewFromFloat(6.50)})
	m.AddProduct(models.Product{ID: 3, Name: "Olive Oil 1L", Category: "pantry", Price: decimal.NewFromFloat(12.00), IsGroceryItem: true, InventoryQuantity: 10})

	order := &models.Order{
		Reference:     "ref-dispatch",
		Status:        status,
		PaymentStatus: models.OrderPaymentPaid,
		Source:        models.SourcePOS,
		TotalPrice:    decimal.NewFromFloat(49.00),
	}
	require.NoError(t, m.CreateOrder(context.Background(), order, []models.OrderItem{
		{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromFloat(6.50)},
		{ProductID: 3, Quantity: 3, UnitPrice: decimal.NewFromFloat(12.00)},
	}))
	return order
}

func TestKitchenTicketPrintsExactlyOnce(t *testing.T) {
	m := store.NewMemory()
	order := seedPaidOrder(t, m, models.OrderInProgress)

	var hits atomic.Int64
	agent := newAgent(t, &hits)
	pr := printer.NewClient(agent.URL, map[string]printer.PrinterConfig{
		"kitchen": {Role: printer.RoleStation, Enabled: true},
	})
	d := New(hub.New(), pr, m, "test")
	ctx := context.Background()

	effects, err := d.Evaluate(ctx, m, order, false)
	require.NoError(t, err)
	d.Run(ctx, effects)
	require.Equal(t, int64(1), hits.Load())

	// Re-evaluating the same state must not print again.
	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	effects, err = d.Evaluate(ctx, m, fresh, false)
	require.NoError(t, err)
	d.Run(ctx, effects)
	require.Equal(t, int64(1), hits.Load())
}

func TestDisabledPrinterSkipped(t *testing.T) {
	m := store.NewMemory()
	order := seedPaidOrder(t, m, models.OrderInProgress)

	var hits atomic.Int64
	agent := newAgent(t, &hits)
	pr := printer.NewClient(agent.URL, map[string]printer.PrinterConfig{
		"kitchen": {Role: printer.RoleStation, Enabled: false},
		"expo":    {Role: printer.RoleQualityControl, Enabled: true},
	})
	d := New(hub.New(), pr, m, "test")
	ctx := context.Background()

	effects, err := d.Evaluate(ctx, m, order, false)
	require.NoError(t, err)
	d.Run(ctx, effects)
	require.Equal(t, int64(1), hits.Load())
}

func TestKitchenTicketPrintsForSavedPOSOrder(t *testing.T) {
	m := store.NewMemory()
	order := seedPaidOrder(t, m, models.OrderSaved)

	var hits atomic.Int64
	agent := newAgent(t, &hits)
	pr := printer.NewClient(agent.URL, map[string]printer.PrinterConfig{
		"kitchen": {Role: printer.RoleStation, Enabled: true},
	})
	d := New(hub.New(), pr, m, "test")
	ctx := context.Background()

	// A POS order can settle while parked in saved; the ticket still prints.
	effects, err := d.Evaluate(ctx, m, order, false)
	require.NoError(t, err)
	d.Run(ctx, effects)
	require.Equal(t, int64(1), hits.Load())

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, fresh.KitchenTicketPrinted)
}

func TestKitchenRelevance(t *testing.T) {
	cases := []struct {
		name    string
		source  models.OrderSource
		status  models.OrderStatus
		payment models.OrderPaymentStatus
		want    bool
	}{
		{"pos in progress", models.SourcePOS, models.OrderInProgress, models.OrderPaymentPending, true},
		{"pos completed", models.SourcePOS, models.OrderCompleted, models.OrderPaymentPaid, true},
		{"pos voided clears the display", models.SourcePOS, models.OrderVoided, models.OrderPaymentVoided, true},
		{"pos saved stays off the display", models.SourcePOS, models.OrderSaved, models.OrderPaymentPaid, false},
		{"website pending unpaid", models.SourceWebsite, models.OrderPending, models.OrderPaymentPending, false},
		{"website pending paid", models.SourceWebsite, models.OrderPending, models.OrderPaymentPaid, true},
		{"website preparing paid", models.SourceWebsite, models.OrderPreparing, models.OrderPaymentPaid, true},
		{"website completed paid", models.SourceWebsite, models.OrderCompleted, models.OrderPaymentPaid, true},
		{"website cancelled paid", models.SourceWebsite, models.OrderCancelled, models.OrderPaymentPaid, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := &models.Order{Source: tc.source, Status: tc.status, PaymentStatus: tc.payment}
			require.Equal(t, tc.want, kitchenRelevant(order))
		})
	}
}

func TestUnpaidWebsiteOrderNotBroadcastToKitchen(t *testing.T) {
	m := store.NewMemory()
	order := &models.Order{
		Reference:     "web-77",
		Status:        models.OrderPending,
		PaymentStatus: models.OrderPaymentPending,
		Source:        models.SourceWebsite,
		TotalPrice:    decimal.NewFromFloat(20.00),
	}
	require.NoError(t, m.CreateOrder(context.Background(), order, nil))

	d := New(hub.New(), nil, m, "test")
	effects, err := d.Evaluate(context.Background(), m, order, true)
	require.NoError(t, err)
	// Customer group plus POS group only; the kitchen sees it once paid.
	require.Len(t, effects, 2)
}

func TestInventoryDeductedExactlyOnce(t *testing.T) {
	m := store.NewMemory()
	order := seedPaidOrder(t, m, models.OrderCompleted)
	d := New(hub.New(), nil, m, "test")
	ctx := context.Background()

	effects, err := d.Evaluate(ctx, m, order, false)
	require.NoError(t, err)
	d.Run(ctx, effects)

	p, err := m.GetProduct(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(7), p.InventoryQuantity)

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, fresh.InventoryProcessed)

	// Replay cannot deduct twice.
	effects, err = d.Evaluate(ctx, m, fresh, false)
	require.NoError(t, err)
	d.Run(ctx, effects)

	p, err = m.GetProduct(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(7), p.InventoryQuantity)
}

func TestInventorySkipsNonGrocery(t *testing.T) {
	m := store.NewMemory()
	order := seedPaidOrder(t, m, models.OrderCompleted)
	d := New(hub.New(), nil, m, "test")
	ctx := context.Background()

	effects, err := d.Evaluate(ctx, m, order, false)
	require.NoError(t, err)
	d.Run(ctx, effects)

	// The bakery item carries no tracked stock.
	p, err := m.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), p.InventoryQuantity)
}

func TestUnpaidOrderTriggersNoEffects(t *testing.T) {
	m := store.NewMemory()
	order := seedPaidOrder(t, m, models.OrderCompleted)
	require.NoError(t, m.SetOrderPaymentStatus(context.Background(), order.ID, models.OrderPaymentPending))
	order.PaymentStatus = models.OrderPaymentPending

	var hits atomic.Int64
	agent := newAgent(t, &hits)
	pr := printer.NewClient(agent.URL, map[string]printer.PrinterConfig{
		"kitchen": {Role: printer.RoleStation, Enabled: true},
	})
	d := New(hub.New(), pr, m, "test")
	ctx := context.Background()

	effects, err := d.Evaluate(ctx, m, order, false)
	require.NoError(t, err)
	d.Run(ctx, effects)

	require.Equal(t, int64(0), hits.Load())
	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.False(t, fresh.KitchenTicketPrinted)
	require.False(t, fresh.InventoryProcessed)
}

func TestPOSPrintJobsLatchedOnce(t *testing.T) {
	m := store.NewMemory()
	order := seedPaidOrder(t, m, models.OrderCompleted)
	d := New(hub.New(), nil, m, "test")
	ctx := context.Background()

	effects, err := d.Evaluate(ctx, m, order, false)
	require.NoError(t, err)
	d.Run(ctx, effects)

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, fresh.POSPrintJobsSent)
}
