package invite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/storage/memory"
)

type fakeAdder struct {
	mu    sync.Mutex
	added map[string][]string // chatID -> userIDs
	err   error
}

func newFakeAdder() *fakeAdder {
	return &fakeAdder{added: make(map[string][]string)}
}

func (f *fakeAdder) AddParticipant(ctx context.Context, chatID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.added[chatID] = append(f.added[chatID], userID)
	return nil
}

func (f *fakeAdder) participants(chatID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added[chatID]...)
}

func TestService_IssueAndValidate(t *testing.T) {
	req := require.New(t)
	store := memory.New()
	svc := NewService(store, newFakeAdder(), time.Hour)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "chat-1", model.ChatModeGroup)
	req.NoError(err)
	req.NotEmpty(token)

	// Tokens are unguessable and unique per issue.
	token2, err := svc.Issue(ctx, "chat-1", model.ChatModeGroup)
	req.NoError(err)
	req.NotEqual(token, token2)

	chatID, err := svc.Validate(ctx, token)
	req.NoError(err)
	req.Equal("chat-1", chatID)
}

func TestService_Validate_UnknownToken(t *testing.T) {
	req := require.New(t)
	svc := NewService(memory.New(), newFakeAdder(), time.Hour)

	_, err := svc.Validate(context.Background(), "no-such-token")
	req.ErrorIs(err, ErrInvalidToken)
}

func TestService_Validate_ExpiredToken(t *testing.T) {
	req := require.New(t)
	store := memory.New()
	svc := NewService(store, newFakeAdder(), time.Hour)
	ctx := context.Background()

	expired := &model.InviteToken{
		Token:     "expired-token",
		ChatID:    "chat-1",
		Mode:      model.ChatModeGroup,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	req.NoError(store.PutInvite(ctx, expired, 0))

	_, err := svc.Validate(ctx, "expired-token")
	req.ErrorIs(err, ErrInvalidToken)

	_, err = svc.Consume(ctx, "expired-token", "user-1")
	req.ErrorIs(err, ErrInvalidToken)
}

func TestService_Consume_AddsParticipant(t *testing.T) {
	req := require.New(t)
	adder := newFakeAdder()
	svc := NewService(memory.New(), adder, time.Hour)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "chat-1", model.ChatModeGroup)
	req.NoError(err)

	chatID, err := svc.Consume(ctx, token, "user-1")
	req.NoError(err)
	req.Equal("chat-1", chatID)
	req.Equal([]string{"user-1"}, adder.participants("chat-1"))
}

func TestService_Consume_GroupTokenIsMultiUse(t *testing.T) {
	req := require.New(t)
	adder := newFakeAdder()
	svc := NewService(memory.New(), adder, time.Hour)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "chat-1", model.ChatModeGroup)
	req.NoError(err)

	for _, uid := range []string{"user-1", "user-2", "user-3"} {
		chatID, err := svc.Consume(ctx, token, uid)
		req.NoError(err)
		req.Equal("chat-1", chatID)
	}
	req.Len(adder.participants("chat-1"), 3)

	// Still valid after several joins.
	_, err = svc.Validate(ctx, token)
	req.NoError(err)
}

func TestService_Consume_OneOnOneSingleUse(t *testing.T) {
	req := require.New(t)
	adder := newFakeAdder()
	svc := NewService(memory.New(), adder, time.Hour)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "chat-1", model.ChatModeOneOnOne)
	req.NoError(err)

	_, err = svc.Consume(ctx, token, "user-1")
	req.NoError(err)

	// The same user retrying is idempotent.
	chatID, err := svc.Consume(ctx, token, "user-1")
	req.NoError(err)
	req.Equal("chat-1", chatID)

	// A different user is rejected, and validation now fails too.
	_, err = svc.Consume(ctx, token, "user-2")
	req.ErrorIs(err, ErrAlreadyConsumed)
	_, err = svc.Validate(ctx, token)
	req.ErrorIs(err, ErrInvalidToken)

	req.Equal([]string{"user-1", "user-1"}, adder.participants("chat-1"))
}

func TestService_Consume_ConcurrentSingleUse(t *testing.T) {
	req := require.New(t)
	adder := newFakeAdder()
	svc := NewService(memory.New(), adder, time.Hour)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "chat-1", model.ChatModeOneOnOne)
	req.NoError(err)

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		uid := string(rune('a' + i))
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, token, "user-"+uid)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	// Exactly one racer wins a single-use token.
	var wins, rejections int
	for err := range results {
		if err == nil {
			wins++
		} else {
			req.ErrorIs(err, ErrAlreadyConsumed)
			rejections++
		}
	}
	req.Equal(1, wins)
	req.Equal(racers-1, rejections)
	req.Len(adder.participants("chat-1"), 1)
}
