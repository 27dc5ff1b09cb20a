package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/converse-im/converse/internal/config"
	"github.com/converse-im/converse/internal/domain"
	"github.com/converse-im/converse/internal/hub"
	"github.com/converse-im/converse/internal/mention"
	"github.com/converse-im/converse/internal/presence"
	"github.com/converse-im/converse/internal/reaction"
	"github.com/converse-im/converse/internal/receipt"
	"github.com/converse-im/converse/internal/repository"
	"github.com/converse-im/converse/pkg/jwt"
)

// In-memory collaborators.

type fakeVerifier struct {
	identities map[string]*jwt.Identity
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*jwt.Identity, error) {
	if id, ok := f.identities[token]; ok {
		return id, nil
	}
	return nil, jwt.ErrInvalidToken
}

type memStore struct {
	mu     sync.Mutex
	online map[string]bool
}

func (s *memStore) SetOnline(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = true
	return nil
}

func (s *memStore) SetOffline(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = false
	return nil
}

func (s *memStore) Get(ctx context.Context, userID string) (*domain.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := domain.PresenceOffline
	if s.online[userID] {
		status = domain.PresenceOnline
	}
	return &domain.Presence{UserID: userID, Status: status, LastSeenAt: time.Now()}, nil
}

func (s *memStore) GetMany(ctx context.Context, userIDs []string) ([]domain.Presence, error) {
	out := make([]domain.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		p, _ := s.Get(ctx, id)
		out = append(out, *p)
	}
	return out, nil
}

type memUsers struct {
	byName map[string]*domain.User
}

func (m *memUsers) Create(ctx context.Context, user *domain.User) error { return nil }

func (m *memUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	for _, u := range m.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUsers) GetByName(ctx context.Context, name string) (*domain.User, error) {
	if u, ok := m.byName[name]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

type memMessages struct {
	mu       sync.Mutex
	messages map[string]*domain.Message
}

func (m *memMessages) Create(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = msg
	return nil
}

func (m *memMessages) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[id]; ok {
		return msg, nil
	}
	return nil, repository.ErrMessageNotFound
}

func (m *memMessages) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*domain.Message)
	for _, id := range ids {
		if msg, ok := m.messages[id]; ok {
			out[id] = msg
		}
	}
	return out, nil
}

func (m *memMessages) ListByConversation(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	return nil, nil
}

type memMentions struct {
	mu   sync.Mutex
	rows map[string]map[string]bool
}

func (m *memMentions) Create(ctx context.Context, row *domain.Mention) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[row.MessageID] == nil {
		m.rows[row.MessageID] = make(map[string]bool)
	}
	if m.rows[row.MessageID][row.UserID] {
		return repository.ErrDuplicateMention
	}
	m.rows[row.MessageID][row.UserID] = true
	return nil
}

func (m *memMentions) ListByMessage(ctx context.Context, messageID string) ([]domain.Mention, error) {
	return nil, nil
}

type memReactions struct {
	mu      sync.Mutex
	present map[string]bool // messageID|userID|emoji
}

func (m *memReactions) key(messageID, userID, emoji string) string {
	return messageID + "|" + userID + "|" + emoji
}

func (m *memReactions) Create(ctx context.Context, r *domain.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(r.MessageID, r.UserID, r.Emoji)
	if m.present[k] {
		return repository.ErrDuplicateReaction
	}
	m.present[k] = true
	return nil
}

func (m *memReactions) Delete(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(messageID, userID, emoji)
	if !m.present[k] {
		return false, nil
	}
	delete(m.present, k)
	return true, nil
}

func (m *memReactions) ListByMessage(ctx context.Context, messageID string) ([]domain.Reaction, error) {
	return nil, nil
}

type memReceipts struct {
	mu   sync.Mutex
	rows map[string]*domain.MessageReceipt // messageID|userID
}

func (m *memReceipts) Upsert(ctx context.Context, messageID, userID string, status domain.ReceiptStatus, at time.Time) (*domain.MessageReceipt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := messageID + "|" + userID
	row, ok := m.rows[k]
	if !ok {
		row = &domain.MessageReceipt{MessageID: messageID, UserID: userID, Status: status}
		if status == domain.ReceiptRead {
			row.SeenAt = &at
		}
		m.rows[k] = row
		return row, true, nil
	}
	if status.Rank() <= row.Status.Rank() {
		return row, false, nil
	}
	row.Status = status
	if status == domain.ReceiptRead {
		row.SeenAt = &at
	}
	return row, true, nil
}

func (m *memReceipts) UpsertBatch(ctx context.Context, messageIDs []string, userID string, status domain.ReceiptStatus, at time.Time) ([]domain.MessageReceipt, error) {
	var changed []domain.MessageReceipt
	for _, id := range messageIDs {
		row, didChange, err := m.Upsert(ctx, id, userID, status, at)
		if err != nil {
			return nil, err
		}
		if didChange {
			changed = append(changed, *row)
		}
	}
	return changed, nil
}

func (m *memReceipts) Stats(ctx context.Context, messageID string) (*domain.ReceiptStats, error) {
	return &domain.ReceiptStats{MessageID: messageID}, nil
}

func (m *memReceipts) ListByMessage(ctx context.Context, messageID string) ([]domain.MessageReceipt, error) {
	return nil, nil
}

type recordingMirror struct {
	mu    sync.Mutex
	types []string
}

func (m *recordingMirror) Publish(ctx context.Context, eventType, conversationID string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, eventType)
	return nil
}

func (m *recordingMirror) Close() error { return nil }

// Harness.

type testEnv struct {
	hub      *hub.Hub
	svc      ChatService
	mirror   *recordingMirror
	store    *memStore
	messages *memMessages
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	h := hub.NewHub(config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	users := &memUsers{byName: map[string]*domain.User{
		"alice": {ID: "u-alice", Name: "alice"},
		"bob":   {ID: "u-bob", Name: "bob"},
	}}
	messages := &memMessages{messages: make(map[string]*domain.Message)}
	mirror := &recordingMirror{}
	store := &memStore{online: make(map[string]bool)}

	verifier := &fakeVerifier{identities: map[string]*jwt.Identity{
		"token-alice": {UserID: "u-alice", Username: "alice"},
		"token-bob":   {UserID: "u-bob", Username: "bob"},
	}}

	svc := NewChatService(
		h,
		verifier,
		messages,
		mention.NewProcessor(users, &memMentions{rows: make(map[string]map[string]bool)}),
		reaction.NewToggler(messages, &memReactions{present: make(map[string]bool)}),
		receipt.NewTracker(messages, &memReceipts{rows: make(map[string]*domain.MessageReceipt)}),
		presence.NewTracker(store, time.Minute),
		mirror,
	)

	return &testEnv{hub: h, svc: svc, mirror: mirror, store: store, messages: messages}
}

func (e *testEnv) newClient(id string) *hub.Client {
	c := &hub.Client{
		ID:      id,
		Hub:     e.hub,
		Send:    make(chan []byte, 32),
		Session: domain.NewSession(id),
	}
	e.hub.Register(c)
	return c
}

func (e *testEnv) connect(t *testing.T, id, token string) *hub.Client {
	t.Helper()
	c := e.newClient(id)
	require.NoError(t, e.svc.HandleAuth(context.Background(), c, token))
	res := receiveAs[domain.AuthResultMessage](t, c, domain.EventAuthResult)
	require.True(t, res.Success)
	return c
}

func receiveAs[T any](t *testing.T, c *hub.Client, wantType string) *T {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case data := <-c.Send:
			var base domain.BaseMessage
			require.NoError(t, json.Unmarshal(data, &base))
			if base.Type != wantType {
				continue
			}
			out := new(T)
			require.NoError(t, json.Unmarshal(data, out))
			return out
		case <-deadline:
			t.Fatalf("timed out waiting for %s", wantType)
			return nil
		}
	}
}

func expectSilence(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token authenticates and marks presence", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		c := env.connect(t, "c1", "token-alice")

		req.True(c.Session.IsAuthenticated())
		req.Equal("u-alice", c.Session.GetUserID())
		req.True(env.store.online["u-alice"])
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		c := env.newClient("c1")

		err := env.svc.HandleAuth(ctx, c, "bogus")
		req.Error(err)
		res := receiveAs[domain.AuthResultMessage](t, c, domain.EventAuthResult)
		req.False(res.Success)
		req.False(c.Session.IsAuthenticated())
	})
}

func TestHandleJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("requires auth", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		c := env.newClient("c1")

		req.NoError(env.svc.HandleJoin(ctx, c, "conv-1"))
		errMsg := receiveAs[domain.ErrorMessage](t, c, domain.EventError)
		req.Equal(domain.ErrCodeUnauthorized, errMsg.Code)
	})

	t.Run("double join acks twice with one membership", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		c := env.connect(t, "c1", "token-alice")

		req.NoError(env.svc.HandleJoin(ctx, c, "conv-1"))
		ack := receiveAs[domain.JoinAckMessage](t, c, domain.EventJoined)
		req.True(ack.Success)

		req.NoError(env.svc.HandleJoin(ctx, c, "conv-1"))
		ack = receiveAs[domain.JoinAckMessage](t, c, domain.EventJoined)
		req.True(ack.Success)

		req.Equal(1, env.hub.RoomSize("conv-1"))
	})
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("requires membership", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		c := env.connect(t, "c1", "token-alice")

		req.NoError(env.svc.HandleMessage(ctx, c, "conv-1", "hi", nil))
		errMsg := receiveAs[domain.ErrorMessage](t, c, domain.EventError)
		req.Equal(domain.ErrCodeNotInRoom, errMsg.Code)
	})

	t.Run("broadcasts to members and mirrors", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		alice := env.connect(t, "c1", "token-alice")
		bob := env.connect(t, "c2", "token-bob")
		req.NoError(env.svc.HandleJoin(ctx, alice, "conv-1"))
		req.NoError(env.svc.HandleJoin(ctx, bob, "conv-1"))

		req.NoError(env.svc.HandleMessage(ctx, alice, "conv-1", "hello", nil))

		got := receiveAs[domain.MessageNewOut](t, bob, domain.EventMessageNew)
		req.Equal("hello", got.Message.Text)
		req.Equal("u-alice", got.Message.UserID)

		// Sender receives their own message too.
		receiveAs[domain.MessageNewOut](t, alice, domain.EventMessageNew)

		env.mirror.mu.Lock()
		defer env.mirror.mu.Unlock()
		req.Contains(env.mirror.types, domain.EventMessageNew)
	})

	t.Run("mention fans out to the user room only", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		alice := env.connect(t, "c1", "token-alice")
		bob := env.connect(t, "c2", "token-bob")
		req.NoError(env.svc.HandleJoin(ctx, alice, "conv-1"))

		// Bob is not in conv-1 but is mentioned.
		req.NoError(env.svc.HandleMessage(ctx, alice, "conv-1", "hey @bob", nil))

		note := receiveAs[domain.MentionNewOut](t, bob, domain.EventMentionNew)
		req.Equal("mention", note.Notification.NotifType)
		req.Equal("conv-1", note.Notification.ConversationID)
		req.Equal("hey @bob", note.Notification.Body)
	})

	t.Run("unresolved mention notifies nobody", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		alice := env.connect(t, "c1", "token-alice")
		bob := env.connect(t, "c2", "token-bob")
		req.NoError(env.svc.HandleJoin(ctx, alice, "conv-1"))

		req.NoError(env.svc.HandleMessage(ctx, alice, "conv-1", "hey @ghost", nil))
		receiveAs[domain.MessageNewOut](t, alice, domain.EventMessageNew)
		expectSilence(t, bob)
	})
}

func TestHandleReaction(t *testing.T) {
	ctx := context.Background()

	t.Run("missing message", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		c := env.connect(t, "c1", "token-alice")

		req.NoError(env.svc.HandleReaction(ctx, c, "ghost", "👍"))
		errMsg := receiveAs[domain.ErrorMessage](t, c, domain.EventError)
		req.Equal(domain.ErrCodeNotFound, errMsg.Code)
	})

	t.Run("toggle cycle broadcasts to the conversation", func(t *testing.T) {
		req := require.New(t)
		env := newTestEnv(t)
		alice := env.connect(t, "c1", "token-alice")
		req.NoError(env.svc.HandleJoin(ctx, alice, "conv-1"))
		req.NoError(env.svc.HandleMessage(ctx, alice, "conv-1", "hello", nil))
		got := receiveAs[domain.MessageNewOut](t, alice, domain.EventMessageNew)

		req.NoError(env.svc.HandleReaction(ctx, alice, got.Message.ID, "👍"))
		changed := receiveAs[domain.ReactionChangedOut](t, alice, domain.EventReactionChanged)
		req.Equal(domain.ToggleAdded, changed.Action)

		req.NoError(env.svc.HandleReaction(ctx, alice, got.Message.ID, "👍"))
		changed = receiveAs[domain.ReactionChangedOut](t, alice, domain.EventReactionChanged)
		req.Equal(domain.ToggleRemoved, changed.Action)
	})
}

func TestHandleReceipts(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.connect(t, "c1", "token-alice")
	bob := env.connect(t, "c2", "token-bob")
	req.NoError(env.svc.HandleJoin(ctx, alice, "conv-1"))
	req.NoError(env.svc.HandleJoin(ctx, bob, "conv-1"))

	req.NoError(env.svc.HandleMessage(ctx, alice, "conv-1", "hello", nil))
	got := receiveAs[domain.MessageNewOut](t, bob, domain.EventMessageNew)

	req.NoError(env.svc.HandleReceipts(ctx, bob, []string{got.Message.ID}, string(domain.ReceiptRead)))
	update := receiveAs[domain.ReceiptUpdatedOut](t, alice, domain.EventReceiptUpdated)
	req.Equal("u-bob", update.UserID)
	req.Equal(domain.ReceiptRead, update.Status)
	req.NotNil(update.SeenAt)
	// The reader's own connection sees the room-wide update too.
	receiveAs[domain.ReceiptUpdatedOut](t, bob, domain.EventReceiptUpdated)

	// Re-marking produces no further updates.
	req.NoError(env.svc.HandleReceipts(ctx, bob, []string{got.Message.ID}, string(domain.ReceiptRead)))
	expectSilence(t, alice)

	// Authors never receive receipts for their own reads.
	req.NoError(env.svc.HandleReceipts(ctx, alice, []string{got.Message.ID}, string(domain.ReceiptRead)))
	expectSilence(t, bob)
}

func TestHandleDisconnect(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.connect(t, "c1", "token-alice")
	bob := env.connect(t, "c2", "token-bob")
	req.NoError(env.svc.HandleJoin(ctx, alice, "conv-1"))
	req.NoError(env.svc.HandleJoin(ctx, bob, "conv-1"))

	env.svc.HandleDisconnect(ctx, alice)

	change := receiveAs[domain.PresenceChangedOut](t, bob, domain.EventPresenceChanged)
	req.Equal("u-alice", change.UserID)
	req.Equal(domain.PresenceOffline, change.Status)
	req.False(env.store.online["u-alice"])
}

func TestHandleHeartbeatRequiresAuth(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	c := env.newClient("c1")

	req.NoError(env.svc.HandleHeartbeat(context.Background(), c))
	errMsg := receiveAs[domain.ErrorMessage](t, c, domain.EventError)
	req.Equal(domain.ErrCodeUnauthorized, errMsg.Code)
}
