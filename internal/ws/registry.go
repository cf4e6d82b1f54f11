package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
)

var (
	ErrUnauthenticated = errors.New("no authenticated user on connection")
	ErrForbidden       = errors.New("user is not a participant of chat")
	ErrRegistryClosed  = errors.New("registry closed")
	ErrConnectionLimit = errors.New("connection limit reached")
)

// ChatStore is the slice of chat persistence the registry and router need.
// Implemented by repository.ChatRepository.
type ChatStore interface {
	GetByID(ctx context.Context, id string) (*model.Chat, error)
	IsParticipant(ctx context.Context, chatID, userID string) (bool, error)
	GetParticipantIDs(ctx context.Context, chatID string) ([]string, error)
}

// Registry tracks live connections and which chats each has joined.
// A connection's joined set is always a subset of the chats its user is a
// participant of: Join is the only way in and it checks membership.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]map[*Client]struct{}
	byChat   map[string]map[*Client]struct{}
	total    int
	maxConns int
	closed   bool

	chats ChatStore
}

func NewRegistry(chats ChatStore, maxConns int) *Registry {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Registry{
		byUser:   make(map[string]map[*Client]struct{}),
		byChat:   make(map[string]map[*Client]struct{}),
		maxConns: maxConns,
		chats:    chats,
	}
}

// Register binds a fresh connection to its authenticated user.
func (r *Registry) Register(c *Client) error {
	if c.userID == "" {
		return ErrUnauthenticated
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if r.total >= r.maxConns {
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", r.maxConns, c.userID)
		return ErrConnectionLimit
	}
	if _, ok := r.byUser[c.userID]; !ok {
		r.byUser[c.userID] = make(map[*Client]struct{})
	}
	r.byUser[c.userID][c] = struct{}{}
	r.total++
	return nil
}

// Join adds the connection to a chat's recipient set. Fails with ErrForbidden
// unless the bound user is a participant of the chat.
func (r *Registry) Join(ctx context.Context, c *Client, chatID string) error {
	isMember, err := r.chats.IsParticipant(ctx, chatID, c.userID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrForbidden
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, registered := r.byUser[c.userID][c]; !registered {
		return ErrRegistryClosed
	}
	if _, ok := r.byChat[chatID]; !ok {
		r.byChat[chatID] = make(map[*Client]struct{})
	}
	r.byChat[chatID][c] = struct{}{}
	c.joined[chatID] = struct{}{}
	return nil
}

// Leave removes the connection from one chat. Safe when not joined.
func (r *Registry) Leave(c *Client, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c, chatID)
}

func (r *Registry) leaveLocked(c *Client, chatID string) {
	if clients, ok := r.byChat[chatID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(r.byChat, chatID)
		}
	}
	delete(c.joined, chatID)
}

// Unregister removes the connection from every chat and from the user index.
// Invoked from the read pump on transport teardown; idempotent.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	clients, ok := r.byUser[c.userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		r.mu.Unlock()
		return
	}
	for chatID := range c.joined {
		r.leaveLocked(c, chatID)
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(r.byUser, c.userID)
	}
	r.total--
	r.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// IsJoined reports whether the connection has joined the chat.
func (r *Registry) IsJoined(c *Client, chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byChat[chatID][c]
	return ok
}

// RecipientsOf returns a snapshot of the live connections joined to a chat.
// A completed Unregister never leaves a stale entry here.
func (r *Registry) RecipientsOf(chatID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := r.byChat[chatID]
	out := make([]*Client, 0, len(clients))
	for c := range clients {
		out = append(out, c)
	}
	return out
}

// UserOnline reports whether the user has at least one live connection.
func (r *Registry) UserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ConnectionsOf returns a snapshot of all live connections of one user.
func (r *Registry) ConnectionsOf(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := r.byUser[userID]
	out := make([]*Client, 0, len(clients))
	for c := range clients {
		out = append(out, c)
	}
	return out
}

// Close rejects new registrations and closes every live connection.
// Collect under the lock, do NOT perform I/O under mutex.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]*Client, 0, r.total)
	for _, clients := range r.byUser {
		for c := range clients {
			all = append(all, c)
		}
	}
	r.byUser = make(map[string]map[*Client]struct{})
	r.byChat = make(map[string]map[*Client]struct{})
	r.total = 0
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}
