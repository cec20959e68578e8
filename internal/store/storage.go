package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"ajeenpos/internal/models"
)

// ErrNotFound is returned by Get* methods when the row does not exist.
// Find* methods return (nil, nil) instead so lookup-then-create chains read
// naturally.
var ErrNotFound = errors.New("store: not found")

// OrderItemDetail joins a line item with the product fields the side-effect
// rules and ticket builders need.
type OrderItemDetail struct {
	models.OrderItem
	ProductName   string
	Category      string
	IsGroceryItem bool
}

// Storage is the persistence surface of the reconciliation core. *Store is the
// Postgres implementation; *Memory backs tests and demo seeding.
type Storage interface {
	// WithTx runs fn inside one database transaction and passes a Storage
	// bound to it. All mutation flows of the core run through here; side
	// effects are deferred until after it returns.
	WithTx(ctx context.Context, fn func(Storage) error) error

	CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByReference(ctx context.Context, ref string) (*models.Order, error)
	SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error
	SetOrderPaymentStatus(ctx context.Context, id int64, status models.OrderPaymentStatus) error
	UpdateOrderFinancials(ctx context.Context, order *models.Order) error
	ListOrderItems(ctx context.Context, orderID int64) ([]OrderItemDetail, error)

	// Latch* flip a one-way flag and report whether this call won it. The
	// guarded UPDATE keeps the flag monotonic under concurrent writers.
	LatchKitchenTicket(ctx context.Context, orderID int64) (bool, error)
	LatchPOSPrintJobs(ctx context.Context, orderID int64) (bool, error)
	LatchInventoryProcessed(ctx context.Context, orderID int64) (bool, error)

	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByOrder(ctx context.Context, orderID int64) (*models.Payment, error)
	GetOrCreatePayment(ctx context.Context, orderID int64, amount decimal.Decimal) (*models.Payment, error)
	UpsertPayment(ctx context.Context, payment *models.Payment) error
	SetPaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) error

	FindTransactionByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error)
	GetOrCreateTransaction(ctx context.Context, txn *models.PaymentTransaction) (bool, error)
	UpdateTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	ListTransactions(ctx context.Context, paymentID int64) ([]models.PaymentTransaction, error)
	DeleteTransactions(ctx context.Context, paymentID int64) error

	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	DecrementStock(ctx context.Context, productID, qty int64) (int64, error)

	MarkCartCheckedOut(ctx context.Context, userID *int64, guestID *string) (bool, error)
}
