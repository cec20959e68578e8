package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderSaved      OrderStatus = "saved"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderVoided     OrderStatus = "voided"
	OrderPending    OrderStatus = "pending"
	OrderPreparing  OrderStatus = "preparing"
	OrderCancelled  OrderStatus = "cancelled"
)

type OrderPaymentStatus string

const (
	OrderPaymentPending           OrderPaymentStatus = "pending"
	OrderPaymentPaid              OrderPaymentStatus = "paid"
	OrderPaymentFailed            OrderPaymentStatus = "failed"
	OrderPaymentRefunded          OrderPaymentStatus = "refunded"
	OrderPaymentPartiallyRefunded OrderPaymentStatus = "partially_refunded"
	OrderPaymentDisputed          OrderPaymentStatus = "disputed"
	OrderPaymentCanceled          OrderPaymentStatus = "canceled"
	OrderPaymentRefundFailed      OrderPaymentStatus = "refund_failed"
	OrderPaymentVoided            OrderPaymentStatus = "voided"
)

type OrderSource string

const (
	SourcePOS     OrderSource = "pos"
	SourceWebsite OrderSource = "website"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentCompleted         PaymentStatus = "completed"
	PaymentFailed            PaymentStatus = "failed"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentVoided            PaymentStatus = "voided"
	PaymentDisputed          PaymentStatus = "disputed"
	PaymentCanceled          PaymentStatus = "canceled"
)

type TransactionStatus string

const (
	TxnPending   TransactionStatus = "pending"
	TxnCompleted TransactionStatus = "completed"
	TxnFailed    TransactionStatus = "failed"
	TxnRefunded  TransactionStatus = "refunded"
	TxnCanceled  TransactionStatus = "canceled"
)

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodCredit PaymentMethod = "credit"
	MethodOther  PaymentMethod = "other"
)

// Order tracks fulfillment (Status) and money movement (PaymentStatus) as two
// independent axes. The three bool fields are one-way latches guarding side
// effects; they only ever transition false -> true.
type Order struct {
	ID        int64
	Reference string
	UserID    *int64
	GuestID   *string

	Status        OrderStatus
	PaymentStatus OrderPaymentStatus
	Source        OrderSource

	Subtotal            decimal.Decimal
	DiscountAmount      decimal.Decimal
	SurchargePercentage decimal.Decimal
	SurchargeAmount     decimal.Decimal
	TaxAmount           decimal.Decimal
	TipAmount           decimal.Decimal
	TotalPrice          decimal.Decimal

	KitchenTicketPrinted bool
	POSPrintJobsSent     bool
	InventoryProcessed   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Payment is the 1:1 money aggregate for an Order. Status is a pure function
// of the transaction ledger except for dispute and void overrides.
type Payment struct {
	ID             int64
	OrderID        int64
	Method         PaymentMethod
	Amount         decimal.Decimal
	Status         PaymentStatus
	IsSplitPayment bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PaymentTransaction is one ledger entry against a Payment. ExternalID is the
// provider's charge or intent id and acts as the natural idempotency key: a
// given external id maps to at most one row.
type PaymentTransaction struct {
	ID         int64
	PaymentID  int64
	Method     PaymentMethod
	Amount     decimal.Decimal
	Status     TransactionStatus
	ExternalID string
	Metadata   TxnMetadata
	Timestamp  time.Time
}

type Product struct {
	ID                int64
	Name              string
	Category          string
	Price             decimal.Decimal
	IsGroceryItem     bool
	InventoryQuantity int64
}

type Cart struct {
	ID         int64
	UserID     *int64
	GuestID    *string
	CheckedOut bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
