package events

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseEventIntent(t *testing.T) {
	body := []byte(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"created": 1700000000,
		"data": {"object": {
			"id": "pi_1",
			"status": "succeeded",
			"amount": 5099,
			"currency": "usd",
			"latest_charge": "ch_1",
			"metadata": {"order_id": "42"},
			"card": {"brand": "visa", "last4": "4242"}
		}}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)
	require.Equal(t, "evt_1", ev.ID)
	require.Equal(t, KindIntentSucceeded, ev.Kind)
	require.NotNil(t, ev.Intent)
	require.Equal(t, "pi_1", ev.Intent.ID)
	require.Equal(t, "ch_1", ev.Intent.LatestCharge)
	require.Equal(t, "42", ev.Intent.Metadata["order_id"])
	require.Equal(t, "visa", ev.Intent.Card.Brand)
	require.Nil(t, ev.Refund)
}

func TestParseEventRefund(t *testing.T) {
	body := []byte(`{
		"id": "evt_2",
		"type": "refund.updated",
		"created": 1700000000,
		"data": {"object": {
			"id": "re_1",
			"status": "failed",
			"amount": 5099,
			"failure_reason": "expired_or_canceled_card",
			"payment_intent": "pi_1"
		}}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)
	require.Equal(t, KindRefundUpdated, ev.Kind)
	require.NotNil(t, ev.Refund)
	require.Equal(t, "failed", ev.Refund.Status)
	require.Equal(t, "expired_or_canceled_card", ev.Refund.FailureReason)
}

func TestParseEventDispute(t *testing.T) {
	body := []byte(`{
		"id": "evt_3",
		"type": "charge.dispute.closed",
		"created": 1700000000,
		"data": {"object": {
			"id": "dp_1",
			"status": "won",
			"amount": 5099,
			"charge": "ch_1"
		}}
	}`)

	ev, err := ParseEvent(body)
	require.NoError(t, err)
	require.NotNil(t, ev.Dispute)
	require.Equal(t, "won", ev.Dispute.Status)
}

func TestParseEventUnknownKind(t *testing.T) {
	body := []byte(`{"id": "evt_4", "type": "customer.created", "data": {"object": {}}}`)
	_, err := ParseEvent(body)
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestParseEventGarbage(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnknownEvent)
}

func TestAmountFromCents(t *testing.T) {
	require.True(t, amountFromCents(5099).Equal(decimal.NewFromFloat(50.99)))
	require.True(t, amountFromCents(0).Equal(decimal.Zero))
}
