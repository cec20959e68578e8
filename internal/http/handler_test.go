package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ajeenpos/internal/dispatch"
	"ajeenpos/internal/events"
	"ajeenpos/internal/hub"
	"ajeenpos/internal/models"
	"ajeenpos/internal/orders"
	"ajeenpos/internal/payments"
	"ajeenpos/internal/store"
)

const testSecret = "whsec_test"

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	m.AddProduct(models.Product{ID: 1, Name: "Zaatar Manakeesh", Category: "bakery", Price: decimal.NewFromFloat(6.50)})

	bus := hub.New()
	d := dispatch.New(bus, nil, m, "test")
	h := &Handler{
		Orders:        orders.NewService(m, d),
		Gateway:       events.NewGateway(m, d, nil, "usd"),
		Refunds:       payments.NewRefundService(m, nil, d),
		WebhookSecret: testSecret,
	}
	srv := NewServer(":0", h, bus)
	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, m
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestOrderEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/orders/start", map[string]any{
		"items": []map[string]any{{"product_id": 1, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var order models.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&order))
	resp.Body.Close()
	require.Equal(t, models.OrderInProgress, order.Status)

	getResp, err := http.Get(ts.URL + "/orders/" + strconv.FormatInt(order.ID, 10))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	getResp.Body.Close()

	missing, err := http.Get(ts.URL + "/orders/9999")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
	missing.Body.Close()
}

func TestCompleteEndpointConflict(t *testing.T) {
	ts, m := newTestServer(t)

	order := &models.Order{
		Reference: "ref-h", Status: models.OrderSaved,
		PaymentStatus: models.OrderPaymentPending, Source: models.SourcePOS,
	}
	require.NoError(t, m.CreateOrder(context.Background(), order, nil))

	resp := postJSON(t, ts.URL+"/orders/"+strconv.FormatInt(order.ID, 10)+"/complete", map[string]any{
		"total_price":  "10",
		"transactions": []map[string]any{{"method": "cash", "amount": "10"}},
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ts, _ := newTestServer(t)

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/payments/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Webhook-Signature", "t=1,v1=deadbeef")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookAcknowledgesUnknownKind(t *testing.T) {
	ts, _ := newTestServer(t)

	body := []byte(`{"id":"evt_1","type":"customer.created","data":{"object":{}}}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/payments/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Webhook-Signature", events.Sign(body, testSecret, time.Now()))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookProcessesSuccessEvent(t *testing.T) {
	ts, m := newTestServer(t)
	ctx := context.Background()

	order := &models.Order{
		Reference: "ref-wh", Status: models.OrderPending,
		PaymentStatus: models.OrderPaymentPending, Source: models.SourceWebsite,
		TotalPrice: decimal.NewFromFloat(6.50),
	}
	require.NoError(t, m.CreateOrder(ctx, order, nil))

	body := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"created": ` + strconv.FormatInt(time.Now().Unix(), 10) + `,
		"data": {"object": {
			"id": "pi_wh", "status": "succeeded", "amount": 650,
			"latest_charge": "ch_wh",
			"metadata": {"order_id": "` + strconv.FormatInt(order.ID, 10) + `"}
		}}
	}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/payments/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Webhook-Signature", events.Sign(body, testSecret, time.Now()))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fresh, err := m.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaymentPaid, fresh.PaymentStatus)
}
