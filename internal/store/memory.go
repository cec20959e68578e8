package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ajeenpos/internal/models"
)

// Memory is an in-process Storage used by tests and demo seeding. WithTx runs
// the closure directly; it does not emulate rollback.
type Memory struct {
	mu sync.Mutex

	orders   map[int64]*models.Order
	items    map[int64][]OrderItemDetail
	payments map[int64]*models.Payment // keyed by order id
	txns     map[int64]*models.PaymentTransaction
	products map[int64]*models.Product
	carts    map[int64]*models.Cart

	nextOrder   int64
	nextPayment int64
	nextTxn     int64
	nextCart    int64
}

func NewMemory() *Memory {
	return &Memory{
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]OrderItemDetail),
		payments: make(map[int64]*models.Payment),
		txns:     make(map[int64]*models.PaymentTransaction),
		products: make(map[int64]*models.Product),
		carts:    make(map[int64]*models.Cart),
	}
}

func (m *Memory) WithTx(ctx context.Context, fn func(Storage) error) error {
	return fn(m)
}

func (m *Memory) CreateOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrder++
	order.ID = m.nextOrder
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	cp := *order
	m.orders[order.ID] = &cp
	for i := range items {
		items[i].ID = int64(i + 1)
		items[i].OrderID = order.ID
		detail := OrderItemDetail{OrderItem: items[i]}
		if p, ok := m.products[items[i].ProductID]; ok {
			detail.ProductName = p.Name
			detail.Category = p.Category
			detail.IsGroceryItem = p.IsGroceryItem
		}
		m.items[order.ID] = append(m.items[order.ID], detail)
	}
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *Memory) GetOrderByReference(ctx context.Context, ref string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Reference == ref {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) SetOrderStatus(ctx context.Context, id int64, status models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = status
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Memory) SetOrderPaymentStatus(ctx context.Context, id int64, status models.OrderPaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.PaymentStatus = status
		o.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Memory) UpdateOrderFinancials(ctx context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[order.ID]
	if !ok {
		return ErrNotFound
	}
	o.Status = order.Status
	o.PaymentStatus = order.PaymentStatus
	o.Subtotal = order.Subtotal
	o.DiscountAmount = order.DiscountAmount
	o.SurchargePercentage = order.SurchargePercentage
	o.SurchargeAmount = order.SurchargeAmount
	o.TaxAmount = order.TaxAmount
	o.TipAmount = order.TipAmount
	o.TotalPrice = order.TotalPrice
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ListOrderItems(ctx context.Context, orderID int64) ([]OrderItemDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrderItemDetail(nil), m.items[orderID]...), nil
}

// AddOrderItem seeds a line item directly; test/demo helper.
func (m *Memory) AddOrderItem(orderID int64, item OrderItemDetail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.OrderID = orderID
	m.items[orderID] = append(m.items[orderID], item)
}

func (m *Memory) LatchKitchenTicket(ctx context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.KitchenTicketPrinted {
		return false, nil
	}
	o.KitchenTicketPrinted = true
	return true, nil
}

func (m *Memory) LatchPOSPrintJobs(ctx context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.POSPrintJobsSent {
		return false, nil
	}
	o.POSPrintJobsSent = true
	return true, nil
}

func (m *Memory) LatchInventoryProcessed(ctx context.Context, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.InventoryProcessed {
		return false, nil
	}
	o.InventoryProcessed = true
	return true, nil
}

func (m *Memory) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetPaymentByOrder(ctx context.Context, orderID int64) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) GetOrCreatePayment(ctx context.Context, orderID int64, amount decimal.Decimal) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[orderID]; ok {
		p.Amount = amount
		cp := *p
		return &cp, nil
	}
	m.nextPayment++
	p := &models.Payment{
		ID:        m.nextPayment,
		OrderID:   orderID,
		Method:    models.MethodCredit,
		Amount:    amount,
		Status:    models.PaymentPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	m.payments[orderID] = p
	cp := *p
	return &cp, nil
}

func (m *Memory) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[payment.OrderID]; ok {
		payment.ID = p.ID
		payment.CreatedAt = p.CreatedAt
	} else {
		m.nextPayment++
		payment.ID = m.nextPayment
		payment.CreatedAt = time.Now().UTC()
	}
	payment.UpdatedAt = time.Now().UTC()
	cp := *payment
	m.payments[payment.OrderID] = &cp
	return nil
}

func (m *Memory) SetPaymentStatus(ctx context.Context, id int64, status models.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			p.Status = status
			p.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) FindTransactionByExternalID(ctx context.Context, externalID string) (*models.PaymentTransaction, error) {
	if externalID == "" {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns {
		if t.ExternalID == externalID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetOrCreateTransaction(ctx context.Context, txn *models.PaymentTransaction) (bool, error) {
	if txn.ExternalID != "" {
		existing, err := m.FindTransactionByExternalID(ctx, txn.ExternalID)
		if err != nil {
			return false, err
		}
		if existing != nil {
			*txn = *existing
			return false, nil
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxn++
	txn.ID = m.nextTxn
	if txn.Timestamp.IsZero() {
		txn.Timestamp = time.Now().UTC()
	}
	cp := *txn
	m.txns[txn.ID] = &cp
	return true, nil
}

func (m *Memory) UpdateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txns[txn.ID]; !ok {
		return ErrNotFound
	}
	cp := *txn
	m.txns[txn.ID] = &cp
	return nil
}

func (m *Memory) ListTransactions(ctx context.Context, paymentID int64) ([]models.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentTransaction
	for id := int64(1); id <= m.nextTxn; id++ {
		if t, ok := m.txns[id]; ok && t.PaymentID == paymentID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *Memory) DeleteTransactions(ctx context.Context, paymentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.txns {
		if t.PaymentID == paymentID {
			delete(m.txns, id)
		}
	}
	return nil
}

// AddProduct seeds a product; test/demo helper.
func (m *Memory) AddProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = &p
}

func (m *Memory) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) DecrementStock(ctx context.Context, productID, qty int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || !p.IsGroceryItem {
		return 0, nil
	}
	p.InventoryQuantity -= qty
	return 1, nil
}

// AddCart seeds an open cart; test/demo helper.
func (m *Memory) AddCart(cart models.Cart) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCart++
	cart.ID = m.nextCart
	m.carts[cart.ID] = &cart
	return cart.ID
}

func (m *Memory) GetCart(id int64) (models.Cart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[id]
	if !ok {
		return models.Cart{}, false
	}
	return *c, true
}

func (m *Memory) MarkCartCheckedOut(ctx context.Context, userID *int64, guestID *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.carts {
		if c.CheckedOut {
			continue
		}
		if userID != nil && c.UserID != nil && *c.UserID == *userID {
			c.CheckedOut = true
			return true, nil
		}
		if guestID != nil && c.GuestID != nil && *c.GuestID == *guestID {
			c.CheckedOut = true
			return true, nil
		}
	}
	return false, nil
}
