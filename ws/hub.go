package ws

import (
	"sync"
	"time"

	"github.com/bpsreport/report-server/config"
	"github.com/bpsreport/report-server/globals"
	"github.com/bpsreport/report-server/persistence"
	"github.com/bpsreport/report-server/room"
	"github.com/bpsreport/report-server/types"
)

const (
	maxMessageSize       = 4096
	pongWait             = 2 * time.Minute
	pingPeriod           = time.Minute
	writeWait            = 10 * time.Second
	broadcastChannelSize = 1000
)

// RoomMessage is one frame addressed to every member of a report's room,
// optionally excluding the sending client (typing relays exclude it, chat
// messages do not).
type RoomMessage struct {
	RoomId  string
	Data    []byte
	Exclude *Client
}

// Hub is the fan-out engine. It owns the set of registered clients and the
// room registry and delivers frames to three audiences: all clients, one
// room, or a single client (via its Send channel directly). Delivery is
// best-effort, at most once, a disconnected client simply misses frames.
//
// Room frames are fanned out serially by the Run loop, so all members of a
// room observe new-message frames in the same order they were appended.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Which client is viewing which report.
	Rooms *room.Registry[*Client]

	// Broadcast frames to all clients.
	Broadcast chan []byte

	// Broadcast frames to one room.
	RoomCast chan RoomMessage

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// global configuration
	Cfg *config.Config

	// persistence
	Persister persistence.Persister

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(cfg *config.Config, persister persistence.Persister) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		Rooms:      room.NewRegistry[*Client](),
		Broadcast:  make(chan []byte, broadcastChannelSize),
		RoomCast:   make(chan RoomMessage, broadcastChannelSize),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Cfg:        cfg,
		Persister:  persister,
	}
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Run is the main hub event loop handling register, unregister and broadcast
// events.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			globals.AppLogger.Debug("register new client")
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			// release the registration wait in the connection handler
			client.Done()

		case client := <-h.Unregister:
			go func() {
				h.RLock()
				_, ok := h.clients[client]
				h.RUnlock()
				if !ok {
					return
				}
				globals.AppLogger.Debug("unregister client")
				h.Rooms.Leave(client)
				h.Lock()
				delete(h.clients, client)
				h.Unlock()
				// no frame is queued for this client past this point: every
				// sender checks membership under the read lock, and the
				// delete above is a write barrier against all of them
				client.conn.Close()
				client.Wait()
				close(client.Send)
			}()

		case message := <-h.Broadcast:
			h.RLock()
			for client := range h.clients {
				client.trySend(message)
			}
			h.RUnlock()

		case message := <-h.RoomCast:
			h.RLock()
			for _, client := range h.Rooms.Members(message.RoomId) {
				if client == message.Exclude {
					continue
				}
				if _, ok := h.clients[client]; !ok {
					continue
				}
				client.trySend(message.Data)
			}
			h.RUnlock()
		}
	}
}

// BroadcastEvent wraps the payload in the wire envelope and delivers it to
// every connected client, regardless of room.
func (h *Hub) BroadcastEvent(event string, payload interface{}) {
	data, err := types.NewWireMessage(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal broadcast event", "event", event, "error", err)
		return
	}
	h.Broadcast <- data
}

// RoomEvent wraps the payload in the wire envelope and delivers it to every
// member of the given report's room.
func (h *Hub) RoomEvent(roomId string, event string, payload interface{}) {
	data, err := types.NewWireMessage(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal room event", "event", event, "error", err)
		return
	}
	h.RoomCast <- RoomMessage{RoomId: roomId, Data: data}
}
