package domain

import (
	"sync"
	"time"
)

// Session is the per-connection state owned by the hub client. A
// session never outlives its transport.
type Session struct {
	ID            string // connection id
	UserID        string
	Username      string
	Authenticated bool
	CreatedAt     time.Time
	LastActiveAt  time.Time

	rooms map[string]struct{} // joined conversation ids
	mu    sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		LastActiveAt: now,
		rooms:        make(map[string]struct{}),
	}
}

func (s *Session) Authenticate(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.Username = username
	s.Authenticated = true
	s.LastActiveAt = time.Now()
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Authenticated
}

// JoinRoom records membership; joining an already-joined room is a no-op.
func (s *Session) JoinRoom(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[conversationID] = struct{}{}
	s.LastActiveAt = time.Now()
}

func (s *Session) LeaveRoom(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, conversationID)
	s.LastActiveAt = time.Now()
}

func (s *Session) InRoom(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[conversationID]
	return ok
}

func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (s *Session) GetUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID
}

func (s *Session) GetUsername() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Username
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()
}
