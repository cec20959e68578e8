package events

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"ajeenpos/internal/dispatch"
	"ajeenpos/internal/models"
	"ajeenpos/internal/provider"
	"ajeenpos/internal/store"
)

// Synchronous payment operations. These drive the provider directly and then
// fold the returned intent through the same convergence path the webhook
// uses, so a webhook replay of the same outcome is a no-op.

type ProcessRequest struct {
	OrderID         int64  `json:"order_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

// CreateIntent opens a provider intent for the order's current total and
// returns it so the client can drive confirmation with the client secret.
func (g *Gateway) CreateIntent(ctx context.Context, orderID int64) (*provider.Intent, error) {
	order, err := g.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return g.Provider.CreateIntent(ctx, provider.CreateIntentParams{
		Amount:   centsFromAmount(order.TotalPrice),
		Currency: g.Currency,
		Metadata: map[string]string{"order_id": strconv.FormatInt(order.ID, 10)},
	})
}

// ProcessPayment creates and immediately confirms an intent with the given
// payment method, then applies the outcome locally.
func (g *Gateway) ProcessPayment(ctx context.Context, req ProcessRequest) (*provider.Intent, error) {
	order, err := g.Store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	intent, err := g.Provider.CreateIntent(ctx, provider.CreateIntentParams{
		Amount:        centsFromAmount(order.TotalPrice),
		Currency:      g.Currency,
		PaymentMethod: req.PaymentMethodID,
		Confirm:       true,
		Metadata:      map[string]string{"order_id": strconv.FormatInt(order.ID, 10)},
	})
	if err != nil {
		return nil, err
	}
	if err := g.ApplyIntent(ctx, intent); err != nil {
		return intent, err
	}
	return intent, nil
}

// ConfirmPayment settles a previously created intent: it fetches the
// provider's current view, confirms if the intent still awaits it, and
// applies the outcome locally. Calling it on an already-settled intent just
// converges the ledger.
func (g *Gateway) ConfirmPayment(ctx context.Context, intentID string) (*provider.Intent, error) {
	intent, err := g.Provider.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status == provider.IntentRequiresConfirmation {
		intent, err = g.Provider.ConfirmIntent(ctx, intentID)
		if err != nil {
			return nil, err
		}
	}
	if err := g.ApplyIntent(ctx, intent); err != nil {
		return intent, err
	}
	return intent, nil
}

// ApplyIntent folds a provider intent fetched out-of-band into the ledger,
// exactly as the equivalent webhook event would.
func (g *Gateway) ApplyIntent(ctx context.Context, intent *provider.Intent) error {
	in := intentEventFromProvider(intent)
	target, ok := intentTarget(intent.Status)
	if !ok {
		return fmt.Errorf("intent %s: unhandled status %q", intent.ID, intent.Status)
	}

	var effects []dispatch.Effect
	err := g.Store.WithTx(ctx, func(st store.Storage) error {
		var err error
		effects, err = g.applyIntent(ctx, st, in, target)
		return err
	})
	if err != nil {
		return err
	}
	g.Dispatch.Run(ctx, effects)
	return nil
}

// intentTarget maps a provider intent status to the ledger status it should
// converge to. requires_action and processing park the transaction as
// pending until a later confirm or webhook settles it.
func intentTarget(status string) (models.TransactionStatus, bool) {
	switch status {
	case provider.IntentSucceeded:
		return models.TxnCompleted, true
	case provider.IntentRequiresPayment, provider.IntentRequiresConfirmation:
		return models.TxnFailed, true
	case provider.IntentCanceled:
		return models.TxnCanceled, true
	case provider.IntentProcessing, provider.IntentRequiresAction:
		return models.TxnPending, true
	}
	return "", false
}

func intentEventFromProvider(intent *provider.Intent) *IntentEvent {
	in := &IntentEvent{
		ID:                 intent.ID,
		Status:             intent.Status,
		Amount:             intent.Amount,
		Currency:           intent.Currency,
		LatestCharge:       intent.LatestCharge,
		Metadata:           intent.Metadata,
		CancellationReason: intent.CancellationReason,
	}
	if intent.Card != nil {
		in.PaymentMethodType = "card"
		in.Card = &struct {
			Brand string `json:"brand"`
			Last4 string `json:"last4"`
		}{Brand: intent.Card.Brand, Last4: intent.Card.Last4}
	}
	if intent.LastError != nil {
		in.LastError = &struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}{Code: intent.LastError.Code, Message: intent.LastError.Message}
	}
	return in
}

func centsFromAmount(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}
