package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gprojets/gprojets/config"
	"github.com/gprojets/gprojets/globals"
	"github.com/gprojets/gprojets/persistence"
	"github.com/gprojets/gprojets/types"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 1000
)

// Hub is the realtime message-passing core: it tracks live connections and
// their group memberships, persists inbound chat messages and fans them out.
// There is a single hub for the whole application.
type Hub struct {
	// Registered clients by connection id.
	clients map[string]*Client

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// group memberships by connection id
	groups *Groups

	// global configuration
	Cfg *config.Config

	// persistence
	Persister persistence.Persister

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(cfg *config.Config, persister persistence.Persister) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		groups:     NewGroups(),
		Cfg:        cfg,
		Persister:  persister,
	}
}

// NoClients returns the number of clients registered.
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Groups exposes the membership registry (read-mostly, for handlers and
// tests).
func (h *Hub) Groups() *Groups {
	return h.groups
}

// Run is the main hub event loop handling register and unregister events.
// It exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[client.Id] = client
			h.Unlock()
			role := client.Identity.Role
			groups := GroupsForRole(role)
			if len(groups) == 0 {
				globals.AppLogger.Warn("unknown role, no group membership", "user", client.Identity.Email, "connection", client.Id)
			}
			for _, group := range groups {
				h.groups.Join(client.Id, group)
				globals.AppLogger.Info("added connection to group", "user", client.Identity.Email, "group", group, "connection", client.Id)
			}
			client.Done()
			go h.SendInfo(h.GetInfo())

		case client := <-h.Unregister:
			h.Lock()
			if _, ok := h.clients[client.Id]; ok {
				delete(h.clients, client.Id)
				h.groups.LeaveAll(client.Id)
				if client.conn != nil {
					// probably already closed, just to make sure
					client.conn.Close()
				}
				// wait for the loops and pending write operations before the
				// send channel may be closed
				client.Wait()
				close(client.Send)
				h.Unlock()
				globals.AppLogger.Info("unregistered connection", "user", client.Identity.Email, "connection", client.Id)
				go h.SendInfo(h.GetInfo())
			} else {
				h.Unlock()
			}

		case <-ctx.Done():
			globals.AppLogger.Info("hub stopping")
			return
		}
	}
}

// SendMessage persists the message and then broadcasts it to all connected
// clients. The order is fixed: a message that failed to persist is never
// broadcast, so reconnecting clients always see a history consistent with
// what was delivered live.
func (h *Hub) SendMessage(content, senderEmail, senderRole string) (*types.Message, error) {
	if h.Persister == nil {
		return nil, fmt.Errorf("no persistence configured")
	}
	msg := &types.Message{
		Content:     content,
		SenderEmail: senderEmail,
		SenderRole:  senderRole,
	}
	if err := h.Persister.StoreMessage(msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	globals.AppLogger.Info("message sent", "role", senderRole, "sender", senderEmail)
	data, err := json.Marshal(types.WireChatMessage{Message: msg})
	if err != nil {
		return msg, fmt.Errorf("marshal message: %w", err)
	}
	h.broadcast(data)
	return msg, nil
}

// Notify delivers a plain notification text to the current members of the
// given group, best-effort. Nothing is persisted and an empty group drops
// the notification silently.
func (h *Hub) Notify(group, text string) {
	data, err := json.Marshal(types.WireNotification{Text: text})
	if err != nil {
		globals.AppLogger.Error("could not marshal notification", "error", err)
		return
	}
	h.RLock()
	defer h.RUnlock()
	for _, id := range h.groups.Members(group) {
		if client, ok := h.clients[id]; ok {
			client.trySend(data)
		}
	}
}

// broadcast fans a frame out to every connected client regardless of group.
func (h *Hub) broadcast(data []byte) {
	h.RLock()
	defer h.RUnlock()
	for _, client := range h.clients {
		client.trySend(data)
	}
}

func (h *Hub) GetInfo() types.InfoMessage {
	return types.InfoMessage{NoConnections: h.NoClients()}
}

// SendInfo broadcasts hub statistics to all clients.
func (h *Hub) SendInfo(info types.InfoMessage) {
	data, err := json.Marshal(types.WireInfoMessage{InfoMessage: &info})
	if err != nil {
		globals.AppLogger.Error("could not marshal info", "error", err)
		return
	}
	h.broadcast(data)
}
