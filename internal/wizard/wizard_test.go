package wizard

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/language"
	"github.com/linguachat/internal/model"
)

type fakeFlow struct {
	created    int
	failCreate error
	failLink   error
	lastLang   string
	lastMode   model.ChatMode
	sentEmails []string
	failEmails []string
	inviteErr  error
}

func (f *fakeFlow) CreateChat(ctx context.Context, languageCode string, mode model.ChatMode, inviteEmails []string) (string, error) {
	if f.failCreate != nil {
		return "", f.failCreate
	}
	f.created++
	f.lastLang = languageCode
	f.lastMode = mode
	return fmt.Sprintf("chat-%d", f.created), nil
}

func (f *fakeFlow) InviteLink(ctx context.Context, chatID string, mode model.ChatMode) (string, error) {
	if f.failLink != nil {
		return "", f.failLink
	}
	return "http://localhost/chat/join?token=tok-" + chatID, nil
}

func (f *fakeFlow) SendInvites(ctx context.Context, chatID string, emails []string, mode model.ChatMode) ([]string, error) {
	f.sentEmails = append(f.sentEmails, emails...)
	return f.failEmails, f.inviteErr
}

func newWizard(f *fakeFlow) *Wizard {
	return New(f, f, f)
}

func mustLang(t *testing.T, code string) language.Language {
	t.Helper()
	l, err := language.ByCode(code)
	require.NoError(t, err)
	return l
}

func TestWizard_AIFlow_TerminalAtModeStep(t *testing.T) {
	req := require.New(t)
	flow := &fakeFlow{}
	w := newWizard(flow)
	ctx := context.Background()

	req.Equal(StepSelectLanguage, w.Step())
	w.SelectLanguage(mustLang(t, "sw"))
	intent, err := w.Next(ctx)
	req.NoError(err)
	req.Equal(DestinationNone, intent.Destination)
	req.Equal(StepSelectMode, w.Step())

	req.NoError(w.SelectMode(model.ChatModeAI))
	req.True(w.IsLastStep())
	intent, err = w.Next(ctx)
	req.NoError(err)
	req.Equal(DestinationAI, intent.Destination)
	req.Equal("chat-1", intent.ChatID)
	req.Equal(1, flow.created)
	req.Equal("sw", flow.lastLang)

	// The run is finished; another forward transition is rejected.
	_, err = w.Next(ctx)
	req.ErrorIs(err, ErrFinished)
}

func TestWizard_GroupFlow_InviteStepThenDone(t *testing.T) {
	req := require.New(t)
	flow := &fakeFlow{}
	w := newWizard(flow)
	ctx := context.Background()

	w.SelectLanguage(mustLang(t, "fr"))
	_, err := w.Next(ctx)
	req.NoError(err)
	req.NoError(w.SelectMode(model.ChatModeGroup))
	req.False(w.IsLastStep())

	intent, err := w.Next(ctx)
	req.NoError(err)
	req.Equal(DestinationNone, intent.Destination)
	req.Equal(StepAwaitInvite, w.Step())
	req.Equal("chat-1", w.ChatID())
	req.Equal("http://localhost/chat/join?token=tok-chat-1", w.InviteLink())

	req.True(w.IsLastStep())
	intent, err = w.Next(ctx)
	req.NoError(err)
	req.Equal(DestinationGroup, intent.Destination)
	req.Equal("chat-1", intent.ChatID)
	req.Equal(1, flow.created)
}

func TestWizard_OneOnOneFlow_ConversationDestination(t *testing.T) {
	req := require.New(t)
	w := newWizard(&fakeFlow{})
	ctx := context.Background()

	w.SelectLanguage(mustLang(t, "en"))
	_, err := w.Next(ctx)
	req.NoError(err)
	req.NoError(w.SelectMode(model.ChatModeOneOnOne))
	_, err = w.Next(ctx)
	req.NoError(err)

	intent, err := w.Next(ctx)
	req.NoError(err)
	req.Equal(DestinationConversation, intent.Destination)
}

func TestWizard_Next_RequiresLanguageAndMode(t *testing.T) {
	req := require.New(t)
	flow := &fakeFlow{}
	w := newWizard(flow)
	ctx := context.Background()

	_, err := w.Next(ctx)
	req.ErrorIs(err, ErrNoLanguage)
	req.Equal(StepSelectLanguage, w.Step())

	w.SelectLanguage(mustLang(t, "de"))
	_, err = w.Next(ctx)
	req.NoError(err)

	_, err = w.Next(ctx)
	req.ErrorIs(err, ErrNoMode)
	req.Equal(StepSelectMode, w.Step())
	req.Zero(flow.created)
}

func TestWizard_SelectMode_RejectsUnknown(t *testing.T) {
	req := require.New(t)
	w := newWizard(&fakeFlow{})

	req.Error(w.SelectMode(model.ChatMode("broadcast")))
	req.NoError(w.SelectMode(model.ChatModeGroup))
}

func TestWizard_CreateFailure_DoesNotAdvance(t *testing.T) {
	req := require.New(t)
	flow := &fakeFlow{failCreate: errors.New("db down")}
	w := newWizard(flow)
	ctx := context.Background()

	w.SelectLanguage(mustLang(t, "es"))
	_, err := w.Next(ctx)
	req.NoError(err)
	req.NoError(w.SelectMode(model.ChatModeGroup))

	_, err = w.Next(ctx)
	req.Error(err)
	req.Equal(StepSelectMode, w.Step())
	req.Empty(w.ChatID())

	// Creation recovers; the same transition can be retried.
	flow.failCreate = nil
	_, err = w.Next(ctx)
	req.NoError(err)
	req.Equal(StepAwaitInvite, w.Step())
	req.Equal("chat-1", w.ChatID())
}

func TestWizard_Back_NeverRollsBackCreatedChat(t *testing.T) {
	req := require.New(t)
	flow := &fakeFlow{}
	w := newWizard(flow)
	ctx := context.Background()

	w.SelectLanguage(mustLang(t, "ar"))
	_, err := w.Next(ctx)
	req.NoError(err)
	req.NoError(w.SelectMode(model.ChatModeGroup))
	_, err = w.Next(ctx)
	req.NoError(err)
	req.Equal("chat-1", w.ChatID())

	w.Back()
	req.Equal(StepSelectMode, w.Step())
	req.Equal("chat-1", w.ChatID())

	w.Back()
	w.Back() // already at first step, no-op
	req.Equal(StepSelectLanguage, w.Step())
	req.Equal("chat-1", w.ChatID())

	// A second forward pass creates a new chat; the first one persists.
	w.SelectLanguage(mustLang(t, "pt"))
	_, err = w.Next(ctx)
	req.NoError(err)
	_, err = w.Next(ctx)
	req.NoError(err)
	req.Equal("chat-2", w.ChatID())
	req.Equal(2, flow.created)
}

func TestWizard_InviteEmails_AddRemoveDedup(t *testing.T) {
	req := require.New(t)
	w := newWizard(&fakeFlow{})

	w.AddInviteEmail("a@example.com")
	w.AddInviteEmail("b@example.com")
	w.AddInviteEmail("a@example.com")
	req.Equal([]string{"a@example.com", "b@example.com"}, w.Snapshot().InviteEmails)

	w.RemoveInviteEmail("a@example.com")
	req.Equal([]string{"b@example.com"}, w.Snapshot().InviteEmails)

	w.RemoveInviteEmail("missing@example.com")
	req.Equal([]string{"b@example.com"}, w.Snapshot().InviteEmails)
}

func TestWizard_SendInvitations(t *testing.T) {
	req := require.New(t)
	flow := &fakeFlow{}
	w := newWizard(flow)
	ctx := context.Background()

	// No chat yet.
	_, err := w.SendInvitations(ctx)
	req.Error(err)

	w.SelectLanguage(mustLang(t, "en"))
	_, err = w.Next(ctx)
	req.NoError(err)
	req.NoError(w.SelectMode(model.ChatModeGroup))
	_, err = w.Next(ctx)
	req.NoError(err)

	// Empty list is a no-op.
	failed, err := w.SendInvitations(ctx)
	req.NoError(err)
	req.Empty(failed)
	req.Empty(flow.sentEmails)

	w.AddInviteEmail("a@example.com")
	w.AddInviteEmail("b@example.com")
	flow.failEmails = []string{"b@example.com"}
	failed, err = w.SendInvitations(ctx)
	req.NoError(err)
	req.Equal([]string{"b@example.com"}, failed)
	req.Equal([]string{"a@example.com", "b@example.com"}, flow.sentEmails)
}

func TestWizard_Snapshot(t *testing.T) {
	req := require.New(t)
	w := newWizard(&fakeFlow{})
	ctx := context.Background()

	snap := w.Snapshot()
	req.Equal(StepSelectLanguage, snap.Step)
	req.Nil(snap.Language)
	req.False(snap.Done)

	w.SelectLanguage(mustLang(t, "zh"))
	_, err := w.Next(ctx)
	req.NoError(err)
	req.NoError(w.SelectMode(model.ChatModeAI))

	snap = w.Snapshot()
	req.Equal("zh", snap.Language.Code)
	req.Equal(model.ChatModeAI, snap.Mode)
	req.True(snap.IsLastStep)

	_, err = w.Next(ctx)
	req.NoError(err)
	snap = w.Snapshot()
	req.True(snap.Done)
	req.NotEmpty(snap.ChatID)
}
