package ws

import (
	"context"
	"sync"

	"github.com/linguachat/internal/model"
)

// MessageStore is the slice of message persistence the router needs.
// Implemented by repository.MessageRepository.
type MessageStore interface {
	Append(ctx context.Context, m *model.ChatMessage) error
	LastSeq(ctx context.Context, chatID string) (int64, error)
}

type chatSeq struct {
	mu     sync.Mutex
	last   int64
	loaded bool
}

// Sequencer is the single assignment point for per-chat sequence numbers.
// All mutual exclusion for message ordering lives here, scoped per chat id;
// no lock is ever taken across chats.
type Sequencer struct {
	store MessageStore

	mu    sync.Mutex
	chats map[string]*chatSeq
}

func NewSequencer(store MessageStore) *Sequencer {
	return &Sequencer{store: store, chats: make(map[string]*chatSeq)}
}

// Do runs fn with the next sequence number for the chat, holding the chat's
// lock for the duration. The number is consumed only if fn returns nil, so a
// failed persist leaves no gap. Enqueueing recipients inside fn guarantees
// per-chat delivery in non-decreasing seq order (send buffers are FIFO).
func (s *Sequencer) Do(ctx context.Context, chatID string, fn func(seq int64) error) error {
	cs := s.chatFor(chatID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.loaded {
		last, err := s.store.LastSeq(ctx, chatID)
		if err != nil {
			return err
		}
		cs.last = last
		cs.loaded = true
	}

	seq := cs.last + 1
	if err := fn(seq); err != nil {
		return err
	}
	cs.last = seq
	return nil
}

func (s *Sequencer) chatFor(chatID string) *chatSeq {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.chats[chatID]
	if !ok {
		cs = &chatSeq{}
		s.chats[chatID] = cs
	}
	return cs
}
