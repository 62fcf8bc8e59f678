package types

import "encoding/json"

// Event names of the real-time protocol. The client sends join-report, typing,
// stop-typing and send-message; everything else is server to client.
const (
	EventJoinReport   = "join-report"
	EventChatHistory  = "chat-history"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
	EventSendMessage  = "send-message"
	EventNewMessage   = "new-message"
	EventMessageError = "message-error"
	EventNewReport    = "new-report"
	EventReportClosed = "report-closed"
	EventChatDeleted  = "chat-deleted"
)

// JSON-serialized WebsocketMessage is what is actually sent via the websocket
// connection.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewWireMessage wraps a payload in the websocket envelope.
func NewWireMessage(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: event, Data: data})
}

// SendMessage is the incoming payload of a send-message event.
type SendMessage struct {
	ReportId string `json:"reportId" mapstructure:"reportId"`
	Message  string `json:"message" mapstructure:"message"`
	IsAdmin  bool   `json:"isAdmin" mapstructure:"isAdmin"`
	Image    string `json:"image" mapstructure:"image"`
}

// NewMessage is the outgoing payload of a new-message event: the appended
// response plus the id of the report it belongs to.
type NewMessage struct {
	Response
	ReportId string `json:"reportId"`
}

// ErrorMessage is the payload of a message-error event.
type ErrorMessage struct {
	Error string `json:"error"`
}

// ReportRef is the payload of the report-closed and chat-deleted events.
type ReportRef struct {
	ReportId string `json:"reportId"`
}
