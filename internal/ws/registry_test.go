package ws

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/model"
)

// fakeChats backs the registry with an in-memory membership table.
type fakeChats struct {
	chats        map[string]*model.Chat
	participants map[string]map[string]bool // chatID -> userID
	err          error
}

func newFakeChats() *fakeChats {
	return &fakeChats{
		chats:        make(map[string]*model.Chat),
		participants: make(map[string]map[string]bool),
	}
}

func (f *fakeChats) addChat(chatID string, mode model.ChatMode, lang string, userIDs ...string) {
	f.chats[chatID] = &model.Chat{ID: chatID, Mode: mode, LanguageCode: lang}
	members := make(map[string]bool)
	for _, uid := range userIDs {
		members[uid] = true
	}
	f.participants[chatID] = members
}

func (f *fakeChats) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.chats[id]
	if !ok {
		return nil, errors.New("chat not found")
	}
	return c, nil
}

func (f *fakeChats) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.participants[chatID][userID], nil
}

func (f *fakeChats) GetParticipantIDs(ctx context.Context, chatID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, 0, len(f.participants[chatID]))
	for uid := range f.participants[chatID] {
		out = append(out, uid)
	}
	return out, nil
}

func testClient(r *Registry, userID string) *Client {
	return NewClient(r, nil, nil, userID)
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(newFakeChats(), 0)

	c := testClient(reg, "user-1")
	req.NoError(reg.Register(c))
	req.True(reg.UserOnline("user-1"))
	req.Len(reg.ConnectionsOf("user-1"), 1)

	reg.Unregister(c)
	req.False(reg.UserOnline("user-1"))
	req.Empty(reg.ConnectionsOf("user-1"))

	// Second unregister is a no-op, not an error.
	reg.Unregister(c)
	req.False(reg.UserOnline("user-1"))
}

func TestRegistry_Register_RequiresUser(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(newFakeChats(), 0)

	err := reg.Register(testClient(reg, ""))
	req.ErrorIs(err, ErrUnauthenticated)
}

func TestRegistry_Register_ConnectionLimit(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry(newFakeChats(), 2)

	req.NoError(reg.Register(testClient(reg, "user-1")))
	req.NoError(reg.Register(testClient(reg, "user-2")))
	err := reg.Register(testClient(reg, "user-3"))
	req.ErrorIs(err, ErrConnectionLimit)
}

func TestRegistry_Join_MembershipEnforced(t *testing.T) {
	req := require.New(t)
	chats := newFakeChats()
	chats.addChat("chat-1", model.ChatModeGroup, "en", "user-1")
	reg := NewRegistry(chats, 0)
	ctx := context.Background()

	member := testClient(reg, "user-1")
	outsider := testClient(reg, "user-2")
	req.NoError(reg.Register(member))
	req.NoError(reg.Register(outsider))

	req.NoError(reg.Join(ctx, member, "chat-1"))
	req.True(reg.IsJoined(member, "chat-1"))

	err := reg.Join(ctx, outsider, "chat-1")
	req.ErrorIs(err, ErrForbidden)
	req.False(reg.IsJoined(outsider, "chat-1"))

	recipients := reg.RecipientsOf("chat-1")
	req.Len(recipients, 1)
	req.Equal("user-1", recipients[0].UserID())
}

func TestRegistry_Join_MultipleConnectionsSameUser(t *testing.T) {
	req := require.New(t)
	chats := newFakeChats()
	chats.addChat("chat-1", model.ChatModeGroup, "en", "user-1")
	reg := NewRegistry(chats, 0)
	ctx := context.Background()

	c1 := testClient(reg, "user-1")
	c2 := testClient(reg, "user-1")
	req.NoError(reg.Register(c1))
	req.NoError(reg.Register(c2))
	req.NoError(reg.Join(ctx, c1, "chat-1"))
	req.NoError(reg.Join(ctx, c2, "chat-1"))

	// Both connections of the same user receive independently.
	req.Len(reg.RecipientsOf("chat-1"), 2)

	reg.Unregister(c1)
	req.Len(reg.RecipientsOf("chat-1"), 1)
	req.True(reg.UserOnline("user-1"))

	reg.Unregister(c2)
	req.False(reg.UserOnline("user-1"))
	req.Empty(reg.RecipientsOf("chat-1"))
}

func TestRegistry_Leave(t *testing.T) {
	req := require.New(t)
	chats := newFakeChats()
	chats.addChat("chat-1", model.ChatModeGroup, "en", "user-1")
	reg := NewRegistry(chats, 0)
	ctx := context.Background()

	c := testClient(reg, "user-1")
	req.NoError(reg.Register(c))
	req.NoError(reg.Join(ctx, c, "chat-1"))

	reg.Leave(c, "chat-1")
	req.False(reg.IsJoined(c, "chat-1"))
	req.Empty(reg.RecipientsOf("chat-1"))
	// Still registered, just not joined anywhere.
	req.True(reg.UserOnline("user-1"))

	// Leaving a chat that was never joined is safe.
	reg.Leave(c, "chat-2")
}

func TestRegistry_Unregister_RemovesFromAllChats(t *testing.T) {
	req := require.New(t)
	chats := newFakeChats()
	chats.addChat("chat-1", model.ChatModeGroup, "en", "user-1")
	chats.addChat("chat-2", model.ChatModeGroup, "en", "user-1")
	reg := NewRegistry(chats, 0)
	ctx := context.Background()

	c := testClient(reg, "user-1")
	req.NoError(reg.Register(c))
	req.NoError(reg.Join(ctx, c, "chat-1"))
	req.NoError(reg.Join(ctx, c, "chat-2"))

	reg.Unregister(c)
	req.Empty(reg.RecipientsOf("chat-1"))
	req.Empty(reg.RecipientsOf("chat-2"))
}

func TestRegistry_Close_RejectsNewRegistrations(t *testing.T) {
	req := require.New(t)
	chats := newFakeChats()
	chats.addChat("chat-1", model.ChatModeGroup, "en", "user-1")
	reg := NewRegistry(chats, 0)

	c := testClient(reg, "user-1")
	req.NoError(reg.Register(c))

	reg.Close()
	req.False(reg.UserOnline("user-1"))

	err := reg.Register(testClient(reg, "user-2"))
	req.ErrorIs(err, ErrRegistryClosed)

	// Closing twice is safe.
	reg.Close()
}
