package printer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"ajeenpos/internal/models"
	"ajeenpos/internal/store"
)

// Printer roles, matching the hardware config vocabulary.
const (
	RoleStation        = "station"
	RoleQualityControl = "quality_control"
)

type PrinterConfig struct {
	Role    string
	Enabled bool
}

type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client talks to the hardware print agent over HTTP. Print calls run
// post-commit and are fire-and-log: a printer outage must never affect the
// order that triggered it.
type Client struct {
	AgentURL string
	Printers map[string]PrinterConfig
	HTTP     *http.Client
}

func NewClient(agentURL string, printers map[string]PrinterConfig) *Client {
	return &Client{
		AgentURL: agentURL,
		Printers: printers,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) PrintStationTicket(ctx context.Context, ticket Ticket, printerName string) (*Result, error) {
	return c.send(ctx, printerName, "station_ticket", ticket)
}

func (c *Client) PrintQCTicket(ctx context.Context, ticket Ticket, printerName string) (*Result, error) {
	return c.send(ctx, printerName, "qc_ticket", ticket)
}

func (c *Client) PrintTransactionReceipt(ctx context.Context, payload ReceiptPayload) (*Result, error) {
	return c.send(ctx, payload.Printer, "transaction_receipt", payload)
}

// PrintKitchenAndQC prints the order's ticket on every enabled station and QC
// printer. Individual printer failures are logged, not returned.
func (c *Client) PrintKitchenAndQC(ctx context.Context, order *models.Order, items []store.OrderItemDetail) {
	ticket := BuildTicket(order, items)
	for name, cfg := range c.Printers {
		if !cfg.Enabled {
			continue
		}
		var res *Result
		var err error
		switch cfg.Role {
		case RoleStation:
			res, err = c.PrintStationTicket(ctx, ticket, name)
		case RoleQualityControl:
			res, err = c.PrintQCTicket(ctx, ticket, name)
		default:
			continue
		}
		if err != nil {
			log.Printf("order %d: print to %s failed: %v", order.ID, name, err)
			continue
		}
		log.Printf("order %d: printer %s: %s - %s", order.ID, name, res.Status, res.Message)
	}
}

func (c *Client) send(ctx context.Context, printerName, ticketType string, data any) (*Result, error) {
	body, err := json.Marshal(map[string]any{
		"printer": printerName,
		"type":    ticketType,
		"data":    data,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.AgentURL+"/print", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return &res, fmt.Errorf("print agent returned %d: %s", resp.StatusCode, res.Message)
	}
	return &res, nil
}
