package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/converse-im/converse/internal/config"
	"github.com/converse-im/converse/pkg/log"
)

// Hub is the single-process room registry. It maps conversation ids to
// the set of connections currently subscribed and fans events out to
// exactly the members registered at send time; there is no buffering or
// replay for late joiners.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	rooms      map[string]map[string]*Client // room -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// RoomMessage is one event bound for every current member of a room.
type RoomMessage struct {
	Room    string
	Message []byte
	Exclude string // client ID to exclude
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		config:     cfg,
	}
}

// UserRoom is the personal room key for a user, used for mention
// notification fan-out.
func UserRoom(userID string) string {
	return "user:" + userID
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for room, members := range h.rooms {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.rooms, room)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if members, ok := h.rooms[msg.Room]; ok {
				for clientID, client := range members {
					if clientID == msg.Exclude {
						continue
					}
					select {
					case client.Send <- msg.Message:
					default:
						// Slow consumer; drop the connection.
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister tears down the client and removes every room membership it
// holds, so no further broadcasts reach it.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom registers the client in a room. Joining an already-joined
// room is a no-op; a connection never holds more than one membership
// per room.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
	log.L().Info().Str(log.FieldConnectionID, client.ID).Str(log.FieldConversationID, room).Msg("client joined room")
}

// LeaveRoom removes the membership; it succeeds whether or not one
// existed.
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	log.L().Info().Str(log.FieldConnectionID, client.ID).Str(log.FieldConversationID, room).Msg("client left room")
}

// IsMember reports whether the client currently holds a membership in
// the room.
func (h *Hub) IsMember(clientID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[clientID]
	return ok
}

// RoomSize returns the number of connections currently in the room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

// BroadcastToRoom delivers the message to every current member of the
// room, optionally excluding one client id.
func (h *Hub) BroadcastToRoom(room string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &RoomMessage{
		Room:    room,
		Message: data,
		Exclude: exclude,
	}
	return nil
}

// BroadcastToUser delivers the message to every connection in the
// user's personal room. Best effort: an offline user simply has no
// members there.
func (h *Hub) BroadcastToUser(userID string, message interface{}) error {
	return h.BroadcastToRoom(UserRoom(userID), message, "")
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
