package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Group names. Customers subscribe to their own order, the kitchen display
// shares one group, and each POS hardware agent listens on its location.
const KitchenGroup = "kitchen_orders"

func OrderGroup(orderID int64) string {
	return fmt.Sprintf("website_order_%d", orderID)
}

func POSGroup(location string) string {
	return "pos_updates_location_" + location
}

// Hub fans JSON payloads out to websocket subscribers by group name.
// Delivery is at-most-once; dead connections are dropped on write failure.
type Hub struct {
	mu       sync.RWMutex
	groups   map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func New() *Hub {
	return &Hub{
		groups: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Publish sends payload to every subscriber of group. Broadcasting to an empty
// group is a no-op; write failures are logged and the connection removed.
func (h *Hub) Publish(group string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("hub publish group=%s: marshal failed: %v", group, err)
		return
	}

	h.mu.RLock()
	subs := make([]*client, 0, len(h.groups[group]))
	for c := range h.groups[group] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	for _, c := range subs {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Printf("hub publish group=%s: write failed, dropping subscriber: %v", group, err)
			h.remove(group, c)
		}
	}
}

// ServeGroup returns an HTTP handler that upgrades the connection and keeps it
// subscribed to group until the peer closes.
func (h *Hub) ServeGroup(group func(r *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := group(r)
		if name == "" {
			http.Error(w, "missing group", http.StatusBadRequest)
			return
		}
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("hub upgrade failed group=%s: %v", name, err)
			return
		}
		c := &client{conn: conn}
		h.add(name, c)
		defer func() {
			h.remove(name, c)
			_ = conn.Close()
		}()
		// Read loop only to observe the close; inbound frames are ignored.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(group string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[*client]struct{})
	}
	h.groups[group][c] = struct{}{}
}

func (h *Hub) remove(group string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups[group], c)
	if len(h.groups[group]) == 0 {
		delete(h.groups, group)
	}
}
