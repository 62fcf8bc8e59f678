package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/bpsreport/report-server/globals"
	"github.com/bpsreport/report-server/persistence"
	"github.com/bpsreport/report-server/types"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
)

const sendChannelSize = 1000

// Client is a middleman between the websocket connection and the hub. It is
// the per-connection session handler: it decodes inbound events, consults the
// room registry and the persister and hands outbound frames to the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	doneChan chan struct{}

	// WaitGroup which keeps track of running read/write loops and write
	// access to Send. If the WaitGroup is done, it is safe to close all
	// channels (all loops are done and there are no more write operations on
	// the channels)
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, doneChan chan struct{}) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		doneChan: doneChan,
	}
}

// trySend queues a frame without blocking. A client whose send buffer is
// full just misses the frame, delivery is best-effort.
func (c *Client) trySend(data []byte) {
	select {
	case c.Send <- data:
	default:
		globals.AppLogger.Warn("send buffer full, dropping frame")
	}
}

// sendEvent delivers an event to this client only. The hub's client map is
// consulted under the read lock so we never write to a closed Send channel.
func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := types.NewWireMessage(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal event", "event", event, "error", err)
		return
	}
	c.hub.RLock()
	if _, ok := c.hub.clients[c]; ok {
		c.trySend(data)
	}
	c.hub.RUnlock()
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Info("ws closed unexpected", "error", err)
			}
			return
		}

		message := types.WebsocketMessage{}
		err = json.Unmarshal(raw, &message)
		if err != nil {
			globals.AppLogger.Warn("could not unmarshal ws message", "error", err)
			continue
		}

		// a failure on a single event never terminates the connection, the
		// handlers log and carry on
		switch message.Event {
		case types.EventJoinReport:
			c.handleJoinReport(message.Data)

		case types.EventTyping, types.EventStopTyping:
			c.handleTyping(message.Event, message.Data)

		case types.EventSendMessage:
			c.handleSendMessage(message.Data)

		default:
			globals.AppLogger.Debug("ignoring unknown event", "event", message.Event)
		}
	}
}

// handleJoinReport switches this client into the report's room and replays
// the persisted conversation to this client only. A missing report is not an
// error: the room stays joined, there is just no history to send.
func (c *Client) handleJoinReport(data json.RawMessage) {
	var reportId string
	if err := json.Unmarshal(data, &reportId); err != nil || reportId == "" {
		globals.AppLogger.Warn("invalid join-report payload", "error", err)
		return
	}
	c.hub.Rooms.Join(c, reportId)
	globals.AppLogger.Debug("client joined report", "report", reportId)

	report, err := c.hub.Persister.GetReport(reportId)
	if err != nil {
		if err != persistence.ErrNotFound {
			globals.AppLogger.Error("could not load chat history", "report", reportId, "error", err)
		}
		return
	}
	responses := report.Responses
	if limit := c.hub.Cfg.HistoryConfig.ReplayLimit; limit > 0 && len(responses) > limit {
		responses = responses[len(responses)-limit:]
	}
	c.sendEvent(types.EventChatHistory, responses)
}

// handleTyping relays the payload verbatim to the rest of the room. Nothing
// is persisted and the sender never hears its own typing events.
func (c *Client) handleTyping(event string, data json.RawMessage) {
	payload := make(map[string]interface{})
	if err := json.Unmarshal(data, &payload); err != nil {
		globals.AppLogger.Warn("invalid typing payload", "error", err)
		return
	}
	reportId, _ := payload["reportId"].(string)
	if reportId == "" {
		return
	}
	frame, err := json.Marshal(types.WebsocketMessage{Event: event, Data: data})
	if err != nil {
		globals.AppLogger.Error("could not marshal typing event", "error", err)
		return
	}
	c.hub.RoomCast <- RoomMessage{RoomId: reportId, Data: frame, Exclude: c}
}

// handleSendMessage appends the response to the report's conversation and, on
// success, broadcasts it to the whole room including the sender. Unknown
// report ids are dropped silently, store failures go back to the sender only.
func (c *Client) handleSendMessage(data json.RawMessage) {
	payload := make(map[string]interface{})
	if err := json.Unmarshal(data, &payload); err != nil {
		globals.AppLogger.Warn("invalid send-message payload", "error", err)
		return
	}
	msg := types.SendMessage{}
	if err := mapstructure.WeakDecode(payload, &msg); err != nil {
		globals.AppLogger.Warn("could not decode send-message", "error", err)
		return
	}
	if msg.ReportId == "" {
		return
	}

	response := types.Response{
		Message:   msg.Message,
		IsAdmin:   msg.IsAdmin,
		Image:     msg.Image,
		CreatedAt: time.Now(),
		Read:      false,
	}
	err := c.hub.Persister.AppendResponse(msg.ReportId, response)
	if err == persistence.ErrNotFound {
		globals.AppLogger.Debug("send-message for unknown report", "report", msg.ReportId)
		return
	}
	if err != nil {
		globals.AppLogger.Error("could not persist message", "report", msg.ReportId, "error", err)
		c.sendEvent(types.EventMessageError, types.ErrorMessage{Error: "failed to send message"})
		return
	}

	// The append and the broadcast enqueue are two steps: two concurrent
	// senders can enqueue in the opposite order of their persisted appends.
	// All room members still observe one consistent order, the Run loop
	// fans out serially.
	c.hub.RoomEvent(msg.ReportId, types.EventNewMessage, types.NewMessage{
		Response: response,
		ReportId: msg.ReportId,
	})
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
