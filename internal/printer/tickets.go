package printer

import (
	"strings"
	"time"

	"ajeenpos/internal/models"
	"ajeenpos/internal/store"
)

// Ticket is the payload rendered by station and QC printers.
type Ticket struct {
	OrderID     int64        `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	Source      string       `json:"source"`
	PlacedAt    time.Time    `json:"placed_at"`
	Items       []TicketItem `json:"items"`
}

type TicketItem struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Category string `json:"category"`
}

// ReceiptPayload is the payload for a customer receipt print.
type ReceiptPayload struct {
	Printer     string `json:"printer"`
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Total       string `json:"total"`
	Method      string `json:"method"`
}

// AgentPrintJob is a print job forwarded to the POS agent, which owns the
// decision of which physical printer handles each ticket type.
type AgentPrintJob struct {
	PrinterID  string `json:"printer_id"`
	TicketType string `json:"ticket_type"`
	TicketData Ticket `json:"ticket_data"`
}

func BuildTicket(order *models.Order, items []store.OrderItemDetail) Ticket {
	t := Ticket{
		OrderID:     order.ID,
		OrderNumber: order.Reference,
		Source:      string(order.Source),
		PlacedAt:    order.CreatedAt,
	}
	for _, it := range items {
		t.Items = append(t.Items, TicketItem{
			Name:     it.ProductName,
			Quantity: it.Quantity,
			Category: it.Category,
		})
	}
	return t
}

// BuildAgentPrintJobs derives the POS agent job list for an order: a combined
// kitchen/QC ticket whenever the order has items, and a separate drinks ticket
// when any item belongs to a drink category. Returns nil for empty orders.
func BuildAgentPrintJobs(order *models.Order, items []store.OrderItemDetail) []AgentPrintJob {
	if len(items) == 0 {
		return nil
	}
	full := BuildTicket(order, items)
	jobs := []AgentPrintJob{{
		PrinterID:  "kitchen",
		TicketType: "kitchen_qc_ticket",
		TicketData: full,
	}}

	drinks := full
	drinks.Items = nil
	for _, it := range items {
		if isDrinkCategory(it.Category) {
			drinks.Items = append(drinks.Items, TicketItem{
				Name:     it.ProductName,
				Quantity: it.Quantity,
				Category: it.Category,
			})
		}
	}
	if len(drinks.Items) > 0 {
		jobs = append(jobs, AgentPrintJob{
			PrinterID:  "drinks",
			TicketType: "kitchen_drinks_ticket",
			TicketData: drinks,
		})
	}
	return jobs
}

func isDrinkCategory(category string) bool {
	c := strings.ToLower(category)
	return strings.Contains(c, "drink") || strings.Contains(c, "beverage")
}
