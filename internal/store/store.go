package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ajeenpos/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so the same Store methods run
// inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(Storage) error) error {
	if s.pool == nil {
		// Already transaction-bound; join the enclosing transaction.
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(&Store{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const orderColumns = `
	id, reference, user_id, guest_id, status, payment_status, source,
	subtotal, discount_amount, surcharge_percentage, surcharge_amount,
	tax_amount, tip_amount, total_price,
	kitchen_ticket_printed, pos_print_jobs_sent, inventory_processed,
	created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	row := s.db.QueryRow(ctx, `
		INSERT INTO orders (
			reference, user_id, guest_id, status, payment_status, source,
			subtotal, discount_amount, surcharge_percentage, surcharge_amount,
			tax_amount, tip_amount, total_price
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at
	`,
		order.Reference,
		order.UserID,
		order.GuestID,
		order.Status,
		order.PaymentStatus,
		order.Source,
		order.Subtotal,
		order.DiscountAmount,
		order.SurchargePercentage,
		order.SurchargeAmount,
		order.TaxAmount,
		order.TipAmount,
		order.TotalPrice,
	)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return err
	}
	for i := range items {
		items[i].OrderID = order.ID
		row := s.db.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4)
			RETURNING id
		`, order.ID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice)
		if err := row.Scan(&items[i].ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (s *Store) GetOrderByReference(ctx context.Context, ref string) (*models.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE reference=$1`, ref)
}

func (s *Store) getOrder(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	var userID sql.NullInt64
	var guestID sql.NullString

	err := s.db.QueryRow(ctx, query, arg).Scan(
		&order.ID,
		&order.Reference,
		&userID,
		&guestID,
		&order.Status,
		&order.PaymentStatus,
		&order.Source,
		&order.Subtotal,
		&order.DiscountAmount,
		&order.SurchargePercentage,
		&order.SurchargeAmount,
		&order.TaxAmount,
		&order.TipAmount,
		&order.TotalPrice,
		&order.KitchenTicketPrinted,
		&order.POSPrintJobsSent,
		&order.InventoryProcessed,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if userID.Valid {
		order.UserID = &userID.Int64
	}
	if guestID.Valid {
		order.GuestID = &guestID.String
	}
	return &order, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	return err
}

func (s *Store) SetOrderPaymentStatus(ctx context.Context, id int64, status models.OrderPaymentStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE orders SET payment_status=$2, updated_at=now() WHERE id=$1`, id, status)
	return err
}

func (s *Store) UpdateOrderFinancials(ctx context.Context, order *models.Order) error {
	_, err := s.db.Exec(ctx, `
		UPDATE orders SET
			status=$2, payment_status=$3,
			subtotal=$4, discount_amount=$5, surcharge_percentage=$6,
			surcharge_amount=$7, tax_amount=$8, tip_amount=$9, total_price=$10,
			updated_at=now()
		WHERE id=$1
	`,
		order.ID,
		order.Status,
		order.PaymentStatus,
		order.Subtotal,
		order.DiscountAmount,
		order.SurchargePercentage,
		order.SurchargeAmount,
		order.TaxAmount,
		order.TipAmount,
		order.TotalPrice,
	)
	return err
}

func (s *Store) ListOrderItems(ctx context.Context, orderID int64) ([]OrderItemDetail, error) {
	rows, err := s.db.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, i.quantity, i.unit_price,
			p.name, p.category, p.is_grocery_item
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id=$1
		ORDER BY i.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItemDetail
	for rows.Next() {
		var it OrderItemDetail
		if err := rows.Scan(
			&it.ID,
			&it.OrderID,
			&it.ProductID,
			&it.Quantity,
			&it.UnitPrice,
			&it.ProductName,
			&it.Category,
			&it.IsGroceryItem,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) LatchKitchenTicket(ctx context.Context, orderID int64) (bool, error) {
	return s.latch(ctx, "kitchen_ticket_printed", orderID)
}

func (s *Store) LatchPOSPrintJobs(ctx context.Context, orderID int64) (bool, error) {
	return s.latch(ctx, "pos_print_jobs_sent", orderID)
}

func (s *Store) LatchInventoryProcessed(ctx context.Context, orderID int64) (bool, error) {
	return s.latch(ctx, "inventory_processed", orderID)
}

func (s *Store) latch(ctx context.Context, column string, orderID int64) (bool, error) {
	// column comes from the three fixed callers above, never from input.
	tag, err := s.db.Exec(ctx, fmt.Sprintf(
		`UPDATE orders SET %s=true, updated_at=now() WHERE id=$1 AND %s=false`,
		column, column), orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const paymentColumns = `id, order_id, payment_method, amount, status, is_split_payment, created_at, updated_at`

func (s *Store) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return s.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
}

func (s *Store) GetPaymentByOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	return s.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id=$1`, orderID)
}

func (s *Store) getPayment(ctx context.Context, query string, arg any) (*models.Payment, error) {
	var p models.Payment
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.OrderID,
		&p.Method,
		&p.Amount,
		&p.Status,
		&p.IsSplitPayment,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetOrCreatePayment returns the order's payment, creating a pending one if
// missing. An existing payment's amount is kept in sync with the charge amount
// seen on the latest event.
func (s *Store) GetOrCreatePayment(ctx context.Context, orderID int64, amount decimal.Decimal) (*models.Payment, error) {
	var p models.Payment
	err := s.db.QueryRow(ctx, `
		INSERT INTO payments (order_id, payment_method, amount, status)
		VALUES ($1, 'credit', $2, 'pending')
		ON CONFLICT (order_id) DO UPDATE SET amount=EXCLUDED.amount, updated_at=now()
		RETURNING `+paymentColumns+`
	`, orderID, amount).Scan(
		&p.ID,
		&p.OrderID,
		&p.Method,
		&p.Amount,
		&p.Status,
		&p.IsSplitPayment,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO payments (order_id, payment_method, amount, status, is_split_payment)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id) DO UPDATE SET
			payment_method=EXCLUDED.payment_method,
			amount=EXCLUDED.amount,
			status=EXCLUDED.status,
			is_split_payment=EXCLUDED.is_split_payment,
			updated_at=now()
		RETURNING id, created_at, updated_at
	`,
		payment.OrderID,
		payment.Method,
		payment.Amount,
		payment.Status,
		payment.IsSplitPayment,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
}

func (s *Store) SetPaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) error {
	_, err := s.db.Exec(ctx, `UPDATE payments SET status=$2, updated_at=now() WHERE id=$1`, id, status)
	return err
}

const txnColumns = `id, payment_id, payment_method, amount, status, external_id, metadata, created_at`

func (s *Store) FindTransactionByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	if externalID == "" {
		return nil, nil
	}
	txn, err := s.getTransaction(ctx, `SELECT `+txnColumns+` FROM payment_transactions WHERE external_id=$1`, externalID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return txn, err
}

func (s *Store) getTransaction(ctx context.Context, query string, arg any) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	var extID sql.NullString
	var meta []byte
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&t.ID,
		&t.PaymentID,
		&t.Method,
		&t.Amount,
		&t.Status,
		&extID,
		&meta,
		&t.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if extID.Valid {
		t.ExternalID = extID.String
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// GetOrCreateTransaction inserts the transaction unless one with the same
// external id exists, in which case the existing row is loaded into txn.
// Returns whether a new row was created.
func (s *Store) GetOrCreateTransaction(ctx context.Context, txn *models.PaymentTransaction) (bool, error) {
	if txn.ExternalID != "" {
		existing, err := s.FindTransactionByExternalID(ctx, txn.ExternalID)
		if err != nil {
			return false, err
		}
		if existing != nil {
			*txn = *existing
			return false, nil
		}
	}
	meta, err := json.Marshal(txn.Metadata)
	if err != nil {
		return false, err
	}
	var extID *string
	if txn.ExternalID != "" {
		extID = &txn.ExternalID
	}
	err = s.db.QueryRow(ctx, `
		INSERT INTO payment_transactions (payment_id, payment_method, amount, status, external_id, metadata)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at
	`,
		txn.PaymentID,
		txn.Method,
		txn.Amount,
		txn.Status,
		extID,
		meta,
	).Scan(&txn.ID, &txn.Timestamp)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	meta, err := json.Marshal(txn.Metadata)
	if err != nil {
		return err
	}
	var extID *string
	if txn.ExternalID != "" {
		extID = &txn.ExternalID
	}
	_, err = s.db.Exec(ctx, `
		UPDATE payment_transactions
		SET status=$2, external_id=$3, metadata=$4
		WHERE id=$1
	`, txn.ID, txn.Status, extID, meta)
	return err
}

func (s *Store) ListTransactions(ctx context.Context, paymentID int64) ([]models.PaymentTransaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+txnColumns+`
		FROM payment_transactions
		WHERE payment_id=$1
		ORDER BY created_at, id
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []models.PaymentTransaction
	for rows.Next() {
		var t models.PaymentTransaction
		var extID sql.NullString
		var meta []byte
		if err := rows.Scan(
			&t.ID,
			&t.PaymentID,
			&t.Method,
			&t.Amount,
			&t.Status,
			&extID,
			&meta,
			&t.Timestamp,
		); err != nil {
			return nil, err
		}
		if extID.Valid {
			t.ExternalID = extID.String
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &t.Metadata); err != nil {
				return nil, err
			}
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (s *Store) DeleteTransactions(ctx context.Context, paymentID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM payment_transactions WHERE payment_id=$1`, paymentID)
	return err
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := s.db.QueryRow(ctx, `
		SELECT id, name, category, price, is_grocery_item, inventory_quantity
		FROM products WHERE id=$1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.IsGroceryItem, &p.InventoryQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DecrementStock applies a pure arithmetic decrement; no row lock is needed
// beyond the UPDATE itself.
func (s *Store) DecrementStock(ctx context.Context, productID, qty int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE products
		SET inventory_quantity = inventory_quantity - $2
		WHERE id=$1 AND is_grocery_item
	`, productID, qty)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkCartCheckedOut closes the active cart for the order's owner. Returns
// false without error when no active cart exists (already checked out).
func (s *Store) MarkCartCheckedOut(ctx context.Context, userID *int64, guestID *string) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	switch {
	case userID != nil:
		tag, err = s.db.Exec(ctx, `
			UPDATE carts SET checked_out=true, updated_at=now()
			WHERE user_id=$1 AND NOT checked_out
		`, *userID)
	case guestID != nil:
		tag, err = s.db.Exec(ctx, `
			UPDATE carts SET checked_out=true, updated_at=now()
			WHERE guest_id=$1 AND NOT checked_out
		`, *guestID)
	default:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
