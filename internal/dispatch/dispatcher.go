package dispatch

import (
	"context"
	"log"

	"ajeenpos/internal/hub"
	"ajeenpos/internal/models"
	"ajeenpos/internal/printer"
	"ajeenpos/internal/store"
)

// Effect is a side effect deferred until after the transaction that produced
// it has committed.
type Effect func(ctx context.Context)

// Dispatcher evaluates which side effects an order state change should
// trigger. Evaluate runs inside the caller's transaction so that one-way
// flags are flipped atomically with the state change that earned them; the
// returned effects are executed by the caller after commit via Run.
type Dispatcher struct {
	Bus     *hub.Hub
	Printer *printer.Client
	// Fresh is pool-bound storage for post-commit work that must see
	// committed state rather than the producing transaction's view.
	Fresh    store.Storage
	Location string
}

func New(bus *hub.Hub, pr *printer.Client, fresh store.Storage, location string) *Dispatcher {
	return &Dispatcher{Bus: bus, Printer: pr, Fresh: fresh, Location: location}
}

// Evaluate inspects the order after a state change and returns the effects to
// run post-commit. created marks a brand-new order, which broadcasts as
// new_order and skips ticket printing (nothing is paid yet on creation).
func (d *Dispatcher) Evaluate(ctx context.Context, st store.Storage, order *models.Order, created bool) ([]Effect, error) {
	snapshot := *order
	items, err := st.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	var effects []Effect
	effects = append(effects, d.broadcastEffects(&snapshot, created)...)

	paid := snapshot.PaymentStatus == models.OrderPaymentPaid

	// Kitchen ticket: once per order, as soon as it is both printable and
	// paid. The latch is flipped in-transaction so concurrent events cannot
	// both win.
	if !created && !snapshot.KitchenTicketPrinted && paid && ticketPrintable(&snapshot) {
		won, err := st.LatchKitchenTicket(ctx, snapshot.ID)
		if err != nil {
			return nil, err
		}
		if won && d.Printer != nil {
			effects = append(effects, func(ctx context.Context) {
				d.Printer.PrintKitchenAndQC(ctx, &snapshot, items)
			})
		}
	}

	// POS agent print jobs: once per order, when the order reaches its
	// printable state. The flag is latched post-commit even if the job list
	// is empty, so an itemless order does not retry forever.
	if !snapshot.POSPrintJobsSent && paid && agentPrintable(&snapshot) {
		jobs := printer.BuildAgentPrintJobs(&snapshot, items)
		effects = append(effects, func(ctx context.Context) {
			won, err := d.Fresh.LatchPOSPrintJobs(ctx, snapshot.ID)
			if err != nil {
				log.Printf("order %d: latch pos print jobs: %v", snapshot.ID, err)
				return
			}
			if !won {
				return
			}
			if len(jobs) > 0 {
				d.Bus.Publish(hub.POSGroup(d.Location), map[string]any{
					"type":       "print_jobs",
					"order_id":   snapshot.ID,
					"print_jobs": jobs,
				})
			}
		})
	}

	// Inventory: deduct grocery stock exactly once when the order is
	// completed and paid. Runs post-commit against fresh state so the
	// deduction never rolls back with the producing transaction.
	if snapshot.Status == models.OrderCompleted && paid && !snapshot.InventoryProcessed {
		effects = append(effects, func(ctx context.Context) {
			d.processInventory(ctx, snapshot.ID)
		})
	}

	return effects, nil
}

// Run executes effects sequentially, isolating panics so one misbehaving
// effect cannot take down the request that committed the state change.
func (d *Dispatcher) Run(ctx context.Context, effects []Effect) {
	for _, fx := range effects {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("side effect panicked: %v", r)
				}
			}()
			fx(ctx)
		}()
	}
}

func (d *Dispatcher) broadcastEffects(order *models.Order, created bool) []Effect {
	event := "order_update"
	if created {
		event = "new_order"
	}
	payload := map[string]any{
		"type":           event,
		"order_id":       order.ID,
		"order_number":   order.Reference,
		"source":         order.Source,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"total":          order.TotalPrice,
	}

	var effects []Effect
	if order.Source == models.SourceWebsite {
		id := order.ID
		effects = append(effects, func(ctx context.Context) {
			d.Bus.Publish(hub.OrderGroup(id), payload)
		})
	}
	if kitchenRelevant(order) {
		effects = append(effects, func(ctx context.Context) {
			d.Bus.Publish(hub.KitchenGroup, payload)
		})
	}
	effects = append(effects, func(ctx context.Context) {
		d.Bus.Publish(hub.POSGroup(d.Location), payload)
	})
	return effects
}

func (d *Dispatcher) processInventory(ctx context.Context, orderID int64) {
	err := d.Fresh.WithTx(ctx, func(st store.Storage) error {
		order, err := st.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderCompleted || order.PaymentStatus != models.OrderPaymentPaid || order.InventoryProcessed {
			return nil
		}
		won, err := st.LatchInventoryProcessed(ctx, orderID)
		if err != nil || !won {
			return err
		}
		items, err := st.ListOrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if !it.IsGroceryItem {
				continue
			}
			rows, err := st.DecrementStock(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			if rows == 0 {
				log.Printf("order %d: stock not decremented for product %d", orderID, it.ProductID)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("order %d: inventory processing failed: %v", orderID, err)
	}
}

// kitchenRelevant reports whether the kitchen display cares about the order
// in its current state. Website orders only surface once paid, and terminal
// statuses stay relevant so the display can clear their tickets.
func kitchenRelevant(order *models.Order) bool {
	switch order.Source {
	case models.SourcePOS:
		switch order.Status {
		case models.OrderInProgress, models.OrderCompleted, models.OrderVoided:
			return true
		}
	case models.SourceWebsite:
		if order.PaymentStatus != models.OrderPaymentPaid {
			return false
		}
		switch order.Status {
		case models.OrderPending, models.OrderPreparing, models.OrderCompleted, models.OrderCancelled:
			return true
		}
	}
	return false
}

// ticketPrintable reports whether a paid order should get its kitchen and QC
// tickets. POS orders print in any state; website orders wait until the
// kitchen is working them.
func ticketPrintable(order *models.Order) bool {
	if order.Source == models.SourceWebsite {
		return order.Status == models.OrderPending || order.Status == models.OrderPreparing
	}
	return true
}

// agentPrintable reports whether the order has reached the state where the
// POS agent should receive its print jobs.
func agentPrintable(order *models.Order) bool {
	if order.Source == models.SourceWebsite {
		return order.Status == models.OrderPending || order.Status == models.OrderPreparing
	}
	return order.Status == models.OrderCompleted
}
