package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/gprojets/gprojets/auth"
	"github.com/gprojets/gprojets/globals"
	"github.com/gprojets/gprojets/types"
	"github.com/mitchellh/mapstructure"
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan []byte

	// Opaque connection identifier.
	Id string

	// Identity resolved from the connection credentials at connect time.
	Identity *auth.Identity

	doneChan chan struct{}

	// WaitGroup which keeps track of running read/write loops and write
	// access to Send. If the WaitGroup is done, it is safe to close the
	// channel.
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, identity *auth.Identity, doneChan chan struct{}) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		Id:       uuid.NewString(),
		Identity: identity,
		doneChan: doneChan,
	}
}

// trySend queues a frame without ever blocking the hub. A client whose send
// buffer is full is too far behind, the frame is dropped for it.
func (c *Client) trySend(data []byte) {
	select {
	case c.Send <- data:
	default:
		globals.AppLogger.Warn("send buffer full, dropping frame", "connection", c.Id)
	}
}

// sendError reports a failure of this client's own operation to this client
// only.
func (c *Client) sendError(msg string) {
	data, err := json.Marshal(types.WireErrorMessage{ErrorMessage: &types.ErrorMessage{Error: msg}})
	if err != nil {
		return
	}
	c.hub.RLock()
	if _, ok := c.hub.clients[c.Id]; ok {
		c.trySend(data)
	}
	c.hub.RUnlock()
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
		c.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Info("ws closed unexpectedly", "connection", c.Id, "error", err)
			}
			return
		}

		message := types.WebsocketMessage{}
		if err := json.Unmarshal(raw, &message); err != nil {
			globals.AppLogger.Warn("could not unmarshal ws message", "connection", c.Id, "error", err)
			return
		}

		switch message.Event {
		case types.EventSendMessage:
			payloadMap := make(map[string]interface{})
			if err := json.Unmarshal(message.Data, &payloadMap); err != nil {
				globals.AppLogger.Warn("could not unmarshal send payload", "connection", c.Id, "error", err)
				return
			}
			payload := types.SendMessagePayload{}
			if err := mapstructure.WeakDecode(payloadMap, &payload); err != nil {
				globals.AppLogger.Warn("could not decode send payload", "connection", c.Id, "error", err)
				return
			}
			if payload.SenderEmail == "" {
				payload.SenderEmail = c.Identity.Email
			}
			if payload.SenderRole == "" {
				payload.SenderRole = c.Identity.Role.String()
			}
			if _, err := c.hub.SendMessage(payload.Content, payload.SenderEmail, payload.SenderRole); err != nil {
				globals.AppLogger.Error("could not send message", "connection", c.Id, "error", err)
				c.sendError("message could not be delivered")
			}

		default:
			globals.AppLogger.Warn("unknown ws event", "event", message.Event, "connection", c.Id)
		}
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Done()
	}()
	for {
		select {
		case <-c.doneChan:
			return
		default:
		}
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
