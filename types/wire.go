package types

import "encoding/json"

// Event names of the websocket protocol. The outbound names match the
// methods the browser client subscribes to.
const (
	EventSendMessage         = "SendMessage"
	EventReceiveMessage      = "ReceiveMessage"
	EventReceiveNotification = "ReceiveNotification"
	EventInfo                = "info"
	EventError               = "error"
)

// JSON-serialized WebsocketMessage is what is actually sent via the
// websocket connection.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SendMessagePayload is the inbound payload of a SendMessage event.
type SendMessagePayload struct {
	Content     string `json:"content" mapstructure:"content"`
	SenderEmail string `json:"senderEmail" mapstructure:"senderEmail"`
	SenderRole  string `json:"senderRole" mapstructure:"senderRole"`
}

// WireChatMessage wraps a stored message into a ReceiveMessage frame.
type WireChatMessage struct {
	*Message
}

func (m WireChatMessage) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(m.Message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: EventReceiveMessage, Data: data})
}

// WireNotification wraps a notification text into a ReceiveNotification
// frame. The payload is the plain string, as the original clients expect.
type WireNotification struct {
	Text string
}

func (n WireNotification) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(n.Text)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: EventReceiveNotification, Data: data})
}

// InfoMessage carries hub statistics, broadcast on connect/disconnect.
type InfoMessage struct {
	NoConnections int `json:"no_connections"`
}

type WireInfoMessage struct {
	*InfoMessage
}

func (m WireInfoMessage) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(m.InfoMessage)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: EventInfo, Data: data})
}

// ErrorMessage is sent to a single client when its own operation failed.
type ErrorMessage struct {
	Error string `json:"error"`
}

type WireErrorMessage struct {
	*ErrorMessage
}

func (m WireErrorMessage) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(m.ErrorMessage)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: EventError, Data: data})
}
