package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ajeenpos/internal/dispatch"
	"ajeenpos/internal/models"
	"ajeenpos/internal/payments"
	"ajeenpos/internal/store"
)

var (
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	ErrNotCompletable    = errors.New("orders: order cannot be completed from its current status")
	ErrNoItems           = errors.New("orders: order has no items")
	ErrNoTransactions    = errors.New("orders: completion requires at least one transaction")
)

// amountTolerance is the largest client/server money disagreement accepted
// silently. Anything above it is logged for review but does not block the
// sale.
var amountTolerance = decimal.NewFromFloat(0.01)

// Service owns the order lifecycle. Every mutation runs in one transaction
// and defers its side effects to after commit.
type Service struct {
	Store    store.Storage
	Dispatch *dispatch.Dispatcher
}

func NewService(st store.Storage, d *dispatch.Dispatcher) *Service {
	return &Service{Store: st, Dispatch: d}
}

type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type StartRequest struct {
	UserID *int64      `json:"user_id"`
	Items  []ItemInput `json:"items"`
}

// StartOrder opens a new in-progress POS order with the given items priced
// from the catalog.
func (s *Service) StartOrder(ctx context.Context, req StartRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}

	var order *models.Order
	var effects []dispatch.Effect
	err := s.Store.WithTx(ctx, func(st store.Storage) error {
		items, subtotal, err := priceItems(ctx, st, req.Items)
		if err != nil {
			return err
		}
		order = &models.Order{
			Reference:     uuid.NewString(),
			UserID:        req.UserID,
			Status:        models.OrderInProgress,
			PaymentStatus: models.OrderPaymentPending,
			Source:        models.SourcePOS,
			Subtotal:      subtotal,
			TotalPrice:    subtotal,
			CreatedAt:     time.Now().UTC(),
		}
		if err := st.CreateOrder(ctx, order, items); err != nil {
			return err
		}
		effects, err = s.Dispatch.Evaluate(ctx, st, order, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Dispatch.Run(ctx, effects)
	return order, nil
}

type CheckoutRequest struct {
	UserID  *int64      `json:"user_id"`
	GuestID *string     `json:"guest_id"`
	Items   []ItemInput `json:"items"`

	// Client-declared financials. The server recomputes the subtotal and
	// logs any disagreement beyond tolerance.
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	TipAmount  decimal.Decimal `json:"tip_amount"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// CheckoutWebsite creates a pending website order from a cart. Payment
// follows asynchronously through the provider; the cart is marked checked
// out when the order first reconciles to paid.
func (s *Service) CheckoutWebsite(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrNoItems
	}

	var order *models.Order
	var effects []dispatch.Effect
	err := s.Store.WithTx(ctx, func(st store.Storage) error {
		items, subtotal, err := priceItems(ctx, st, req.Items)
		if err != nil {
			return err
		}
		if req.Subtotal.Sub(subtotal).Abs().GreaterThan(amountTolerance) {
			log.Printf("checkout: client subtotal %s disagrees with catalog subtotal %s",
				req.Subtotal, subtotal)
		}
		order = &models.Order{
			Reference:     uuid.NewString(),
			UserID:        req.UserID,
			GuestID:       req.GuestID,
			Status:        models.OrderPending,
			PaymentStatus: models.OrderPaymentPending,
			Source:        models.SourceWebsite,
			Subtotal:      req.Subtotal,
			TaxAmount:     req.TaxAmount,
			TipAmount:     req.TipAmount,
			TotalPrice:    req.TotalPrice,
			CreatedAt:     time.Now().UTC(),
		}
		if err := st.CreateOrder(ctx, order, items); err != nil {
			return err
		}
		effects, err = s.Dispatch.Evaluate(ctx, st, order, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Dispatch.Run(ctx, effects)
	return order, nil
}

// UpdateStatus moves an order along its source's lifecycle. Voiding a POS
// order cascades to its payment; website orders cancel instead of void.
func (s *Service) UpdateStatus(ctx context.Context, id int64, next models.OrderStatus) (*models.Order, error) {
	var order *models.Order
	var effects []dispatch.Effect
	err := s.Store.WithTx(ctx, func(st store.Storage) error {
		var err error
		order, err = st.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == next {
			return nil
		}
		if !validTransition(order.Source, order.Status, next) {
			return fmt.Errorf("%w: %s order %s -> %s", ErrInvalidTransition, order.Source, order.Status, next)
		}
		if err := st.SetOrderStatus(ctx, id, next); err != nil {
			return err
		}
		order.Status = next

		if next == models.OrderVoided {
			if err := s.voidPayment(ctx, st, order); err != nil {
				return err
			}
		}
		effects, err = s.Dispatch.Evaluate(ctx, st, order, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Dispatch.Run(ctx, effects)
	return order, nil
}

func (s *Service) voidPayment(ctx context.Context, st store.Storage, order *models.Order) error {
	payment, err := st.GetPaymentByOrder(ctx, order.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Nothing was ever charged; only the order carries the void.
			if err := st.SetOrderPaymentStatus(ctx, order.ID, models.OrderPaymentVoided); err != nil {
				return err
			}
			order.PaymentStatus = models.OrderPaymentVoided
			return nil
		}
		return err
	}
	if err := st.SetPaymentStatus(ctx, payment.ID, models.PaymentVoided); err != nil {
		return err
	}
	if err := st.SetOrderPaymentStatus(ctx, order.ID, models.OrderPaymentVoided); err != nil {
		return err
	}
	order.PaymentStatus = models.OrderPaymentVoided
	log.Printf("order %d voided, payment %d voided with it", order.ID, payment.ID)
	return nil
}

type TransactionInput struct {
	Method       models.PaymentMethod `json:"method"`
	Amount       decimal.Decimal      `json:"amount"`
	ExternalID   string               `json:"external_id"`
	CardBrand    string               `json:"card_brand"`
	CardLast4    string               `json:"card_last4"`
	CashTendered *decimal.Decimal     `json:"cash_tendered"`
	Change       *decimal.Decimal     `json:"change"`
}

type CompletionRequest struct {
	Subtotal            decimal.Decimal `json:"subtotal"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	SurchargePercentage decimal.Decimal `json:"surcharge_percentage"`
	SurchargeAmount     decimal.Decimal `json:"surcharge_amount"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	TipAmount           decimal.Decimal `json:"tip_amount"`
	TotalPrice          decimal.Decimal `json:"total_price"`

	Transactions []TransactionInput `json:"transactions"`
}

// Complete settles a POS order: it records the financial snapshot, replaces
// the payment's ledger with the tendered transactions, reconciles, and marks
// the order completed. Completing an already-completed order is a no-op
// returning the current state, so a double-tapped checkout cannot double
// anything downstream.
func (s *Service) Complete(ctx context.Context, id int64, req CompletionRequest) (*models.Order, error) {
	if len(req.Transactions) == 0 {
		return nil, ErrNoTransactions
	}

	var order *models.Order
	var effects []dispatch.Effect
	err := s.Store.WithTx(ctx, func(st store.Storage) error {
		var err error
		order, err = st.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == models.OrderCompleted {
			log.Printf("order %d: completion replay ignored", id)
			return nil
		}
		if order.Status != models.OrderInProgress {
			return fmt.Errorf("%w: status %s", ErrNotCompletable, order.Status)
		}

		s.auditCompletion(ctx, st, order, req)

		order.Subtotal = req.Subtotal
		order.DiscountAmount = req.DiscountAmount
		order.SurchargePercentage = req.SurchargePercentage
		order.SurchargeAmount = req.SurchargeAmount
		order.TaxAmount = req.TaxAmount
		order.TipAmount = req.TipAmount
		order.TotalPrice = req.TotalPrice
		if err := st.UpdateOrderFinancials(ctx, order); err != nil {
			return err
		}

		payment, err := st.GetOrCreatePayment(ctx, order.ID, req.TotalPrice)
		if err != nil {
			return err
		}
		payment.Amount = req.TotalPrice
		payment.Method = dominantMethod(req.Transactions)
		payment.IsSplitPayment = len(req.Transactions) > 1
		if err := st.UpsertPayment(ctx, payment); err != nil {
			return err
		}

		// Completion owns the ledger: whatever a previous attempt recorded
		// is replaced by the transactions actually tendered.
		if err := st.DeleteTransactions(ctx, payment.ID); err != nil {
			return err
		}
		for _, in := range req.Transactions {
			externalID := in.ExternalID
			if externalID == "" {
				externalID = "pos_" + uuid.NewString()
			}
			txn := &models.PaymentTransaction{
				PaymentID:  payment.ID,
				Method:     in.Method,
				Amount:     in.Amount,
				Status:     models.TxnCompleted,
				ExternalID: externalID,
				Timestamp:  time.Now().UTC(),
				Metadata: models.TxnMetadata{
					CardBrand:    in.CardBrand,
					CardLast4:    in.CardLast4,
					CashTendered: in.CashTendered,
					Change:       in.Change,
				},
			}
			if _, err := st.GetOrCreateTransaction(ctx, txn); err != nil {
				return err
			}
		}

		if err := st.SetOrderStatus(ctx, id, models.OrderCompleted); err != nil {
			return err
		}
		order.Status = models.OrderCompleted

		if err := payments.Reconcile(ctx, st, payment, order, payments.Options{}); err != nil {
			return err
		}
		effects, err = s.Dispatch.Evaluate(ctx, st, order, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Dispatch.Run(ctx, effects)
	return order, nil
}

// auditCompletion cross-checks the client's snapshot against the catalog and
// the tendered transactions. Disagreements are logged only: the register is
// the source of truth at the counter.
func (s *Service) auditCompletion(ctx context.Context, st store.Storage, order *models.Order, req CompletionRequest) {
	items, err := st.ListOrderItems(ctx, order.ID)
	if err != nil {
		log.Printf("order %d: completion audit skipped: %v", order.ID, err)
		return
	}
	catalog := decimal.Zero
	for _, it := range items {
		catalog = catalog.Add(it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity)))
	}
	if req.Subtotal.Sub(catalog).Abs().GreaterThan(amountTolerance) {
		log.Printf("order %d: client subtotal %s disagrees with catalog subtotal %s",
			order.ID, req.Subtotal, catalog)
	}

	tendered := decimal.Zero
	for _, in := range req.Transactions {
		tendered = tendered.Add(in.Amount)
	}
	if tendered.Sub(req.TotalPrice).Abs().GreaterThan(amountTolerance) {
		log.Printf("order %d: tendered %s disagrees with total %s",
			order.ID, tendered, req.TotalPrice)
	}
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, []store.OrderItemDetail, error) {
	order, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.Store.ListOrderItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func priceItems(ctx context.Context, st store.Storage, inputs []ItemInput) ([]models.OrderItem, decimal.Decimal, error) {
	var items []models.OrderItem
	subtotal := decimal.Zero
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("product %d: quantity must be positive", in.ProductID)
		}
		product, err := st.GetProduct(ctx, in.ProductID)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("product %d: %w", in.ProductID, err)
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Quantity:  in.Quantity,
			UnitPrice: product.Price,
		})
		subtotal = subtotal.Add(product.Price.Mul(decimal.NewFromInt(in.Quantity)))
	}
	return items, subtotal, nil
}

// dominantMethod reduces a transaction set to the payment's headline method.
func dominantMethod(txns []TransactionInput) models.PaymentMethod {
	hasCredit := false
	hasCash := false
	for _, t := range txns {
		switch t.Method {
		case models.MethodCredit:
			hasCredit = true
		case models.MethodCash:
			hasCash = true
		}
	}
	switch {
	case hasCredit:
		return models.MethodCredit
	case hasCash:
		return models.MethodCash
	}
	return models.MethodOther
}

// validTransition encodes each source's lifecycle. Completion is not listed
// for POS here because it flows through Complete, which also settles money.
func validTransition(source models.OrderSource, from, to models.OrderStatus) bool {
	switch source {
	case models.SourcePOS:
		switch from {
		case models.OrderSaved:
			return to == models.OrderInProgress || to == models.OrderVoided
		case models.OrderInProgress:
			return to == models.OrderSaved || to == models.OrderVoided
		}
	case models.SourceWebsite:
		switch from {
		case models.OrderPending:
			return to == models.OrderPreparing || to == models.OrderCancelled
		case models.OrderPreparing:
			return to == models.OrderCompleted || to == models.OrderCancelled
		}
	}
	return false
}
