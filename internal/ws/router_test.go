package ws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/model"
)

type fakeMsgs struct {
	mu        sync.Mutex
	appended  []*model.ChatMessage
	last      map[string]int64
	appendErr error
}

func newFakeMsgs() *fakeMsgs {
	return &fakeMsgs{last: make(map[string]int64)}
}

func (f *fakeMsgs) Append(ctx context.Context, m *model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	cp := *m
	f.appended = append(f.appended, &cp)
	return nil
}

func (f *fakeMsgs) LastSeq(ctx context.Context, chatID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last[chatID], nil
}

func (f *fakeMsgs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

func (f *fakeMsgs) at(i int) model.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.appended[i]
}

type fakeUsers struct {
	users map[string]*model.User
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTranslator) Translate(ctx context.Context, text, fromCode, toCode string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return toCode + ":" + text, nil
}

func (f *fakeTranslator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAI struct {
	reply string
	err   error
}

func (f *fakeAI) Reply(ctx context.Context, chatID, languageCode, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string // userIDs
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, userID)
}

func (f *fakeNotifier) notified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type routerFixture struct {
	chats    *fakeChats
	msgs     *fakeMsgs
	users    *fakeUsers
	tr       *fakeTranslator
	ai       *fakeAI
	notifier *fakeNotifier
	registry *Registry
	router   *Router
}

func newRouterFixture() *routerFixture {
	fx := &routerFixture{
		chats: newFakeChats(),
		msgs:  newFakeMsgs(),
		users: &fakeUsers{users: map[string]*model.User{
			"user-en":  {ID: "user-en", Username: "alice", LanguageCode: "en"},
			"user-fr":  {ID: "user-fr", Username: "bernard", LanguageCode: "fr"},
			AISenderID: {ID: AISenderID, Username: "AI Assistant", LanguageCode: "en"},
		}},
		tr:       &fakeTranslator{},
		ai:       &fakeAI{reply: "bonjour"},
		notifier: &fakeNotifier{},
	}
	fx.registry = NewRegistry(fx.chats, 0)
	fx.router = NewRouter(fx.registry, fx.chats, fx.msgs, fx.users, fx.tr, fx.ai, fx.notifier)
	return fx
}

func (fx *routerFixture) join(t *testing.T, userID, chatID string) *Client {
	t.Helper()
	c := testClient(fx.registry, userID)
	require.NoError(t, fx.registry.Register(c))
	require.NoError(t, fx.registry.Join(context.Background(), c, chatID))
	// Drop nothing: Join itself does not enqueue events, only handleJoin does.
	return c
}

// recv pops one outgoing message with a timeout.
func recv(t *testing.T, c *Client) OutgoingMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return OutgoingMessage{}
	}
}

func noMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouter_HandleJoinAndLeave(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.chats.addChat("chat-1", model.ChatModeGroup, "en", "user-en")
	ctx := context.Background()

	c := testClient(fx.registry, "user-en")
	req.NoError(fx.registry.Register(c))

	fx.router.HandleInbound(ctx, c, IncomingMessage{Type: EventJoinChat, ChatID: "chat-1"})
	msg := recv(t, c)
	req.Equal(EventChatJoined, msg.Type)
	req.True(fx.registry.IsJoined(c, "chat-1"))

	fx.router.HandleInbound(ctx, c, IncomingMessage{Type: EventLeaveChat, ChatID: "chat-1"})
	msg = recv(t, c)
	req.Equal(EventChatLeft, msg.Type)
	req.False(fx.registry.IsJoined(c, "chat-1"))
}

func TestRouter_Join_ForbiddenForOutsider(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.chats.addChat("chat-1", model.ChatModeGroup, "en", "user-en")

	outsider := testClient(fx.registry, "user-fr")
	req.NoError(fx.registry.Register(outsider))

	fx.router.HandleInbound(context.Background(), outsider, IncomingMessage{Type: EventJoinChat, ChatID: "chat-1"})
	msg := recv(t, outsider)
	req.Equal(EventError, msg.Type)
	payload := msg.Payload.(ErrorPayload)
	req.Equal("forbidden", payload.Error)
}

func TestRouter_UnknownEventType(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()

	c := testClient(fx.registry, "user-en")
	req.NoError(fx.registry.Register(c))

	fx.router.HandleInbound(context.Background(), c, IncomingMessage{Type: "dance"})
	msg := recv(t, c)
	req.Equal(EventError, msg.Type)
}

func TestRouter_NewMessage_RejectedWhenNotJoined(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.chats.addChat("chat-1", model.ChatModeGroup, "en", "user-en")

	// A participant who never joined on this connection is still rejected.
	c := testClient(fx.registry, "user-en")
	req.NoError(fx.registry.Register(c))

	fx.router.HandleInbound(context.Background(), c, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-1", Content: "hello",
	})
	msg := recv(t, c)
	req.Equal(EventError, msg.Type)
	req.Equal("forbidden", msg.Payload.(ErrorPayload).Error)
	req.Zero(fx.msgs.count())
}

func TestRouter_NewMessage_FanOutWithPerRecipientTranslation(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.chats.addChat("chat-1", model.ChatModeGroup, "en", "user-en", "user-fr")

	sender := fx.join(t, "user-en", "chat-1")
	recipient := fx.join(t, "user-fr", "chat-1")

	fx.router.HandleInbound(context.Background(), sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-1", Content: "hello", LanguageCode: "en",
	})

	senderMsg := recv(t, sender)
	req.Equal(EventNewMessage, senderMsg.Type)
	senderPayload := senderMsg.Payload.(MessagePayload)
	req.Equal("hello", senderPayload.Content)
	req.False(senderPayload.Translated)
	req.Equal(int64(1), senderPayload.Seq)
	req.NotNil(senderPayload.Sender)
	req.Equal("alice", senderPayload.Sender.Username)

	recipientMsg := recv(t, recipient)
	recipientPayload := recipientMsg.Payload.(MessagePayload)
	req.Equal("fr:hello", recipientPayload.Content)
	req.True(recipientPayload.Translated)
	req.Equal("en", recipientPayload.SourceLanguage)
	req.Equal("fr", recipientPayload.RenderedLanguage)
	req.Equal(senderPayload.ID, recipientPayload.ID)

	req.Equal(1, fx.msgs.count())
	stored := fx.msgs.at(0)
	req.Equal("hello", stored.Content)
	req.Equal(int64(1), stored.Seq)
}

func TestRouter_NewMessage_OneTranslationPerTargetLanguage(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.users.users["user-fr2"] = &model.User{ID: "user-fr2", Username: "claire", LanguageCode: "fr"}
	fx.chats.addChat("chat-1", model.ChatModeGroup, "en", "user-en", "user-fr", "user-fr2")

	sender := fx.join(t, "user-en", "chat-1")
	fx.join(t, "user-fr", "chat-1")
	fx.join(t, "user-fr2", "chat-1")

	fx.router.HandleInbound(context.Background(), sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-1", Content: "hello", LanguageCode: "en",
	})
	recv(t, sender)

	// Two French recipients share a single translation call.
	req.Equal(1, fx.tr.callCount())
}

func TestRouter_NewMessage_TranslationFailureDegradesToOriginal(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.tr.err = errors.New("upstream down")
	fx.chats.addChat("chat-1", model.ChatModeGroup, "en", "user-en", "user-fr")

	sender := fx.join(t, "user-en", "chat-1")
	recipient := fx.join(t, "user-fr", "chat-1")

	fx.router.HandleInbound(context.Background(), sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-1", Content: "hello", LanguageCode: "en",
	})
	recv(t, sender)

	msg := recv(t, recipient)
	payload := msg.Payload.(MessagePayload)
	req.Equal("hello", payload.Content)
	req.False(payload.Translated)
	req.Equal("en", payload.RenderedLanguage)
}

func TestRouter_NewMessage_UnknownLanguageFallsBackToChatLanguage(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.chats.addChat("chat-1", model.ChatModeGroup, "de", "user-en")

	sender := fx.join(t, "user-en", "chat-1")

	// Too short to detect, no declared language: the chat language is assumed.
	fx.router.HandleInbound(context.Background(), sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-1", Content: "ok",
	})
	recv(t, sender)

	req.Equal(1, fx.msgs.count())
	req.Equal("de", fx.msgs.at(0).LanguageCode)
}

func TestRouter_NewMessage_PersistFailureLeavesNoSeqGap(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.chats.addChat("chat-1", model.ChatModeGroup, "en", "user-en")

	sender := fx.join(t, "user-en", "chat-1")
	ctx := context.Background()

	fx.msgs.appendErr = errors.New("db down")
	fx.router.HandleInbound(ctx, sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-1", Content: "first", LanguageCode: "en",
	})
	msg := recv(t, sender)
	req.Equal(EventDeliveryFailed, msg.Type)
	req.Equal("chat-1", msg.Payload.(DeliveryFailedPayload).ChatID)

	// The failed attempt consumed no sequence number.
	fx.msgs.appendErr = nil
	fx.router.HandleInbound(ctx, sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-1", Content: "second", LanguageCode: "en",
	})
	msg = recv(t, sender)
	req.Equal(EventNewMessage, msg.Type)
	req.Equal(int64(1), msg.Payload.(MessagePayload).Seq)
}

func TestRouter_AIChat_EchoThenReply(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.chats.addChat("chat-ai", model.ChatModeAI, "en", "user-en", AISenderID)

	sender := fx.join(t, "user-en", "chat-ai")

	fx.router.HandleInbound(context.Background(), sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-ai", Content: "hello", LanguageCode: "en",
	})

	echo := recv(t, sender)
	req.Equal(EventNewMessage, echo.Type)
	req.Equal("user-en", echo.Payload.(MessagePayload).SenderID)
	req.Equal(int64(1), echo.Payload.(MessagePayload).Seq)

	reply := recv(t, sender)
	replyPayload := reply.Payload.(MessagePayload)
	req.Equal(AISenderID, replyPayload.SenderID)
	req.Equal("bonjour", replyPayload.Content)
	req.Equal(int64(2), replyPayload.Seq)

	req.Eventually(func() bool { return fx.msgs.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	req.Equal(AISenderID, fx.msgs.at(1).SenderID)
}

func TestRouter_AIChat_ResponderFailureReportedToSender(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.ai.err = errors.New("model overloaded")
	fx.chats.addChat("chat-ai", model.ChatModeAI, "en", "user-en", AISenderID)

	sender := fx.join(t, "user-en", "chat-ai")

	fx.router.HandleInbound(context.Background(), sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-ai", Content: "hello", LanguageCode: "en",
	})

	echo := recv(t, sender)
	req.Equal(EventNewMessage, echo.Type)

	errMsg := recv(t, sender)
	req.Equal(EventError, errMsg.Type)
	req.Equal("ai_reply", errMsg.Payload.(ErrorPayload).Operation)
	req.Equal(1, fx.msgs.count())
}

func TestRouter_NewMessage_NotifiesOfflineParticipants(t *testing.T) {
	req := require.New(t)
	fx := newRouterFixture()
	fx.users.users["user-off"] = &model.User{ID: "user-off", Username: "dara", LanguageCode: "en"}
	fx.chats.addChat("chat-1", model.ChatModeGroup, "en", "user-en", "user-fr", "user-off")

	sender := fx.join(t, "user-en", "chat-1")
	fx.join(t, "user-fr", "chat-1")

	fx.router.HandleInbound(context.Background(), sender, IncomingMessage{
		Type: EventNewMessage, ChatID: "chat-1", Content: "hello", LanguageCode: "en",
	})
	recv(t, sender)

	// Only the participant with no live connection is pushed.
	req.Eventually(func() bool {
		return len(fx.notifier.notified()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	req.Equal([]string{"user-off"}, fx.notifier.notified())
}

func TestSequencer_ContinuesFromStore(t *testing.T) {
	req := require.New(t)
	msgs := newFakeMsgs()
	msgs.last["chat-1"] = 41
	seq := NewSequencer(msgs)
	ctx := context.Background()

	var got int64
	req.NoError(seq.Do(ctx, "chat-1", func(s int64) error { got = s; return nil }))
	req.Equal(int64(42), got)

	// Fresh chats start at 1.
	req.NoError(seq.Do(ctx, "chat-2", func(s int64) error { got = s; return nil }))
	req.Equal(int64(1), got)
}

func TestSequencer_ConcurrentAssignmentsAreDense(t *testing.T) {
	req := require.New(t)
	seq := NewSequencer(newFakeMsgs())
	ctx := context.Background()

	const n = 64
	results := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := seq.Do(ctx, "chat-1", func(s int64) error {
				results <- s
				return nil
			})
			if err != nil {
				results <- -1
			}
		}()
	}
	wg.Wait()
	close(results)

	// Concurrent sends get exactly the numbers 1..n, no duplicates, no gaps.
	var seqs []int64
	for s := range results {
		req.NotEqual(int64(-1), s)
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, s := range seqs {
		req.Equal(int64(i+1), s, fmt.Sprintf("position %d", i))
	}
}

func TestSequencer_FailedFnDoesNotConsume(t *testing.T) {
	req := require.New(t)
	seq := NewSequencer(newFakeMsgs())
	ctx := context.Background()

	err := seq.Do(ctx, "chat-1", func(s int64) error { return errors.New("nope") })
	req.Error(err)

	var got int64
	req.NoError(seq.Do(ctx, "chat-1", func(s int64) error { got = s; return nil }))
	req.Equal(int64(1), got)
}
