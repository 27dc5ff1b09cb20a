// Package client is the client-side connection manager for the
// converse WebSocket protocol. It owns a single live transport per
// manager, authenticates it, keeps it alive with heartbeats, and
// reconnects with bounded backoff when the transport drops.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/pkg/log"
)

// Status is the manager's connection state.
type Status string

const (
	StatusConnecting   Status = "CONNECTING"
	StatusConnected    Status = "CONNECTED"
	StatusDisconnected Status = "DISCONNECTED"
	// StatusError is terminal until the next explicit Connect: the
	// manager has exhausted its reconnect attempts.
	StatusError Status = "ERROR"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrAckTimeout   = errors.New("timed out waiting for ack")
	ErrAuthRejected = errors.New("authentication rejected")
)

// Config holds connection manager settings. Zero values fall back to
// defaults in NewManager.
type Config struct {
	URL string

	// ServerTimeout is the server-side presence TTL. The heartbeat
	// interval defaults to two thirds of it so a single lost beat does
	// not flap the user offline.
	ServerTimeout     time.Duration
	HeartbeatInterval time.Duration

	AckTimeout           time.Duration
	ReconnectDebounce    time.Duration
	ReconnectBackoff     time.Duration
	MaxReconnectAttempts int
}

// Event is a server-to-client frame handed to event subscribers.
type Event struct {
	Type string
	Data json.RawMessage
}

type readState int

const (
	readNone readState = iota
	readPending
	readDone
)

// Manager maintains one authenticated WebSocket session. A newer
// Connect supersedes any older transport; stale goroutines observe the
// epoch counter and exit without touching the replacement.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	conn     *websocket.Conn
	epoch    uint64
	status   Status
	token    string
	userID   string
	username string

	nextSubID  int
	statusSubs map[int]func(Status)
	eventSubs  map[int]func(Event)

	joinAcks map[string]chan bool
	authAck  chan *domain.AuthResultMessage

	// Read-receipt suppression state: message author ids learned from
	// message.new, and per-message read progress.
	authors map[string]string
	reads   map[string]readState

	debounce *time.Timer
	hbStop   chan struct{}
}

func NewManager(cfg Config) *Manager {
	if cfg.ServerTimeout <= 0 {
		cfg.ServerTimeout = 60 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = cfg.ServerTimeout * 2 / 3
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	if cfg.ReconnectDebounce <= 0 {
		cfg.ReconnectDebounce = 300 * time.Millisecond
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 500 * time.Millisecond
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}

	return &Manager{
		cfg:        cfg,
		status:     StatusDisconnected,
		statusSubs: make(map[int]func(Status)),
		eventSubs:  make(map[int]func(Event)),
		joinAcks:   make(map[string]chan bool),
		authors:    make(map[string]string),
		reads:      make(map[string]readState),
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// OnStatus registers a status observer and returns its unsubscribe
// function. Unsubscribing twice is harmless.
func (m *Manager) OnStatus(fn func(Status)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.statusSubs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.statusSubs, id)
	}
}

// OnEvent registers an observer for server-to-client frames and returns
// its unsubscribe function.
func (m *Manager) OnEvent(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.eventSubs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.eventSubs, id)
	}
}

// Connect dials, authenticates, and starts the heartbeat loop. Calling
// Connect while a session is live supersedes it: the old transport is
// closed and its goroutines retire.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.epoch++
	epoch := m.epoch
	m.stopHeartbeatLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.mu.Unlock()

	return m.dial(ctx, epoch)
}

func (m *Manager) dial(ctx context.Context, epoch uint64) error {
	m.setStatus(epoch, StatusConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		// Transport failures surface to observers, not just the caller.
		m.setStatus(epoch, StatusError)
		return fmt.Errorf("dial failed: %w", err)
	}

	m.mu.Lock()
	if epoch != m.epoch {
		// A newer Connect or Disconnect won the race.
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	authAck := make(chan *domain.AuthResultMessage, 1)
	m.authAck = authAck
	token := m.token
	m.mu.Unlock()

	go m.readLoop(epoch, conn)

	if err := m.send(epoch, &domain.AuthMessage{Type: domain.EventAuth, Token: token}); err != nil {
		m.setStatus(epoch, StatusError)
		return err
	}

	select {
	case result := <-authAck:
		if !result.Success {
			m.setStatus(epoch, StatusError)
			return ErrAuthRejected
		}
		m.mu.Lock()
		m.userID = result.UserID
		m.username = result.Username
		m.mu.Unlock()
	case <-time.After(m.cfg.AckTimeout):
		m.setStatus(epoch, StatusError)
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	m.setStatus(epoch, StatusConnected)

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	m.hbStop = stop
	m.mu.Unlock()

	go m.heartbeatLoop(epoch, stop)
	return nil
}

// Disconnect closes the session. It is idempotent; disconnecting an
// already-closed manager is a no-op. Heartbeats stop immediately and
// no reconnect is attempted.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	m.stopHeartbeatLocked()
	// A pending debounced reconnect must not resurrect the session
	// after an explicit disconnect.
	if m.debounce != nil {
		m.debounce.Stop()
		m.debounce = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.status == StatusDisconnected {
		return
	}
	m.status = StatusDisconnected
	m.notifyStatusLocked(StatusDisconnected)
}

// stopHeartbeatLocked retires the current heartbeat goroutine. Callers
// must hold m.mu.
func (m *Manager) stopHeartbeatLocked() {
	if m.hbStop != nil {
		close(m.hbStop)
		m.hbStop = nil
	}
}

// SetAuthToken installs a new token and schedules a debounced
// reconnect. A newer token change before the debounce fires supersedes
// the pending one; only the last token wins.
func (m *Manager) SetAuthToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.debounce = time.AfterFunc(m.cfg.ReconnectDebounce, func() {
		m.mu.Lock()
		token := m.token
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.AckTimeout)
		defer cancel()
		if err := m.Connect(ctx, token); err != nil {
			log.L().Warn().Err(err).Msg("debounced reconnect failed")
		}
	})
}

// Join subscribes to a conversation and waits for the server's ack.
// Joining an already-joined conversation acks again without a second
// membership.
func (m *Manager) Join(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	if m.status != StatusConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	epoch := m.epoch
	ack := make(chan bool, 1)
	m.joinAcks[conversationID] = ack
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.joinAcks, conversationID)
		m.mu.Unlock()
	}()

	err := m.send(epoch, &domain.JoinMessage{Type: domain.EventJoin, ConversationID: conversationID})
	if err != nil {
		return err
	}

	select {
	case ok := <-ack:
		if !ok {
			return fmt.Errorf("join rejected for conversation %s", conversationID)
		}
		return nil
	case <-time.After(m.cfg.AckTimeout):
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave unsubscribes from a conversation. There is no ack; leaving a
// conversation that was never joined succeeds.
func (m *Manager) Leave(conversationID string) error {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	return m.send(epoch, &domain.LeaveMessage{Type: domain.EventLeave, ConversationID: conversationID})
}

// SendMessage publishes a message to a joined conversation.
func (m *Manager) SendMessage(conversationID, text string, replyToID *string) error {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	return m.send(epoch, &domain.SendMessage{
		Type:           domain.EventMessageSend,
		ConversationID: conversationID,
		Text:           text,
		ReplyToID:      replyToID,
	})
}

// ToggleReaction flips the caller's reaction on a message.
func (m *Manager) ToggleReaction(messageID, emoji string) error {
	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()
	return m.send(epoch, &domain.ReactionToggleMessage{
		Type:      domain.EventReactionToggle,
		MessageID: messageID,
		Emoji:     emoji,
	})
}

// MarkRead reports the given messages as read, suppressing ids that
// need no round trip: the caller's own messages, ids already marked
// read, and ids with a mark still in flight.
func (m *Manager) MarkRead(messageIDs []string) error {
	m.mu.Lock()
	epoch := m.epoch
	targets := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if m.authors[id] == m.userID && m.userID != "" {
			continue
		}
		if m.reads[id] != readNone {
			continue
		}
		m.reads[id] = readPending
		targets = append(targets, id)
	}
	m.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	err := m.send(epoch, &domain.ReceiptMarkMessage{Type: domain.EventReceiptRead, MessageIDs: targets})
	if err != nil {
		// Roll back so a later call can retry.
		m.mu.Lock()
		for _, id := range targets {
			if m.reads[id] == readPending {
				delete(m.reads, id)
			}
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) send(epoch uint64, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch || m.conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

func (m *Manager) readLoop(epoch uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			stale := epoch != m.epoch
			m.mu.Unlock()
			if !stale {
				m.reconnect(epoch)
			}
			return
		}
		m.dispatch(epoch, data)
	}
}

func (m *Manager) dispatch(epoch uint64, data []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return
	}

	switch base.Type {
	case domain.EventAuthResult:
		var msg domain.AuthResultMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		m.mu.Lock()
		if m.authAck != nil {
			select {
			case m.authAck <- &msg:
			default:
			}
		}
		m.mu.Unlock()

	case domain.EventJoined:
		var msg domain.JoinAckMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		m.mu.Lock()
		if ack, ok := m.joinAcks[msg.ConversationID]; ok {
			select {
			case ack <- msg.Success:
			default:
			}
		}
		m.mu.Unlock()

	case domain.EventMessageNew:
		var msg domain.MessageNewOut
		if err := json.Unmarshal(data, &msg); err == nil && msg.Message != nil {
			m.mu.Lock()
			m.authors[msg.Message.ID] = msg.Message.UserID
			fromOther := m.userID != "" && msg.Message.UserID != m.userID
			m.mu.Unlock()

			// Delivery is acknowledged automatically; read is the
			// caller's call.
			if fromOther {
				m.send(epoch, &domain.ReceiptMarkMessage{
					Type:       domain.EventReceiptDelivered,
					MessageIDs: []string{msg.Message.ID},
				})
			}
		}

	case domain.EventReceiptUpdated:
		var msg domain.ReceiptUpdatedOut
		if err := json.Unmarshal(data, &msg); err == nil {
			m.mu.Lock()
			if msg.UserID == m.userID && msg.Status == domain.ReceiptRead {
				m.reads[msg.MessageID] = readDone
			}
			m.mu.Unlock()
		}
	}

	m.notifyEvent(Event{Type: base.Type, Data: data})
}

func (m *Manager) heartbeatLoop(epoch uint64, stop <-chan struct{}) {
	// First beat goes out immediately so the server's presence TTL is
	// armed before a full interval elapses.
	if err := m.send(epoch, &domain.HeartbeatMessage{Type: domain.EventHeartbeat}); err != nil {
		return
	}

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			live := epoch == m.epoch && m.status == StatusConnected
			m.mu.Unlock()
			if !live {
				return
			}
			if err := m.send(epoch, &domain.HeartbeatMessage{Type: domain.EventHeartbeat}); err != nil {
				return
			}
		}
	}
}

func (m *Manager) reconnect(oldEpoch uint64) {
	m.mu.Lock()
	if oldEpoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.epoch++
	epoch := m.epoch
	m.stopHeartbeatLocked()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	token := m.token
	m.mu.Unlock()

	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		time.Sleep(m.cfg.ReconnectBackoff * time.Duration(attempt))

		m.mu.Lock()
		stale := epoch != m.epoch
		m.mu.Unlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.AckTimeout)
		err := m.Connect(ctx, token)
		cancel()
		if err == nil {
			return
		}
		log.L().Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")

		m.mu.Lock()
		epoch = m.epoch
		m.mu.Unlock()
	}

	m.mu.Lock()
	finalEpoch := m.epoch
	m.mu.Unlock()
	m.setStatus(finalEpoch, StatusError)
}

func (m *Manager) setStatus(epoch uint64, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch || m.status == status {
		return
	}
	m.status = status
	m.notifyStatusLocked(status)
}

func (m *Manager) notifyStatusLocked(status Status) {
	for _, fn := range m.statusSubs {
		go fn(status)
	}
}

func (m *Manager) notifyEvent(ev Event) {
	m.mu.Lock()
	subs := make([]func(Event), 0, len(m.eventSubs))
	for _, fn := range m.eventSubs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
