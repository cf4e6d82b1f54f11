// Package wizard drives the three-step chat creation flow:
// select language -> select mode -> (ai: done) | (group/oneOnOne: await invite).
//
// The wizard is an explicit state value owned by the calling context and is
// advanced only through Next/Back. It performs no redirects itself: terminal
// transitions return a NavigationIntent for the caller to deliver.
package wizard

import (
	"context"
	"errors"
	"fmt"

	"github.com/linguachat/internal/language"
	"github.com/linguachat/internal/model"
)

type Step int

const (
	StepSelectLanguage Step = iota + 1
	StepSelectMode
	StepAwaitInvite
)

var (
	ErrNoLanguage = errors.New("wizard: language not selected")
	ErrNoMode     = errors.New("wizard: chat mode not selected")
	ErrFinished   = errors.New("wizard: already finished")
)

type Destination string

const (
	DestinationNone         Destination = ""
	DestinationAI           Destination = "ai"
	DestinationGroup        Destination = "group"
	DestinationConversation Destination = "conversation"
)

// NavigationIntent tells the caller where to take the user next.
// Destination is empty for non-terminal transitions.
type NavigationIntent struct {
	Destination Destination `json:"destination"`
	ChatID      string      `json:"chat_id,omitempty"`
}

// Creator is the external chat creation collaborator.
type Creator interface {
	CreateChat(ctx context.Context, languageCode string, mode model.ChatMode, inviteEmails []string) (chatID string, err error)
}

// Linker derives a shareable invite link for a created chat.
type Linker interface {
	InviteLink(ctx context.Context, chatID string, mode model.ChatMode) (string, error)
}

// Inviter delivers invitations. Failed addresses are reported without
// failing invitations that were already sent.
type Inviter interface {
	SendInvites(ctx context.Context, chatID string, emails []string, mode model.ChatMode) (failed []string, err error)
}

type Wizard struct {
	creator Creator
	linker  Linker
	inviter Inviter

	step         Step
	language     *language.Language
	mode         model.ChatMode
	inviteEmails []string
	inviteLink   string
	chatID       string
	done         bool
}

func New(creator Creator, linker Linker, inviter Inviter) *Wizard {
	return &Wizard{creator: creator, linker: linker, inviter: inviter, step: StepSelectLanguage}
}

func (w *Wizard) Step() Step         { return w.step }
func (w *Wizard) ChatID() string     { return w.chatID }
func (w *Wizard) InviteLink() string { return w.inviteLink }

// SelectLanguage sets the chat language. No side effect, no step change.
func (w *Wizard) SelectLanguage(l language.Language) {
	w.language = &l
}

// SelectMode sets the chat mode. Unknown modes are rejected.
func (w *Wizard) SelectMode(mode model.ChatMode) error {
	if !mode.Valid() {
		return fmt.Errorf("wizard: unknown chat mode %q", mode)
	}
	w.mode = mode
	return nil
}

// AddInviteEmail appends an address to the pending invite list (deduplicated).
func (w *Wizard) AddInviteEmail(email string) {
	for _, e := range w.inviteEmails {
		if e == email {
			return
		}
	}
	w.inviteEmails = append(w.inviteEmails, email)
}

func (w *Wizard) RemoveInviteEmail(email string) {
	kept := w.inviteEmails[:0]
	for _, e := range w.inviteEmails {
		if e != email {
			kept = append(kept, e)
		}
	}
	w.inviteEmails = kept
}

// IsLastStep reports whether the next forward transition is terminal.
func (w *Wizard) IsLastStep() bool {
	return (w.step == StepAwaitInvite && w.mode != model.ChatModeAI) ||
		(w.step == StepSelectMode && w.mode == model.ChatModeAI)
}

// Next advances the wizard one step.
//
// The creation collaborator is called exactly once per forward pass, at the
// mode transition and only when language and mode are set. If creation fails
// the step does not advance and the error is returned to the caller.
func (w *Wizard) Next(ctx context.Context) (NavigationIntent, error) {
	if w.done {
		return NavigationIntent{}, ErrFinished
	}
	switch w.step {
	case StepSelectLanguage:
		if w.language == nil {
			return NavigationIntent{}, ErrNoLanguage
		}
		w.step = StepSelectMode
		return NavigationIntent{}, nil

	case StepSelectMode:
		if w.mode == "" {
			return NavigationIntent{}, ErrNoMode
		}
		// A chat created in an earlier pass stays as it is; re-firing this
		// transition after Back creates a new chat (see DESIGN.md).
		chatID, err := w.creator.CreateChat(ctx, w.language.Code, w.mode, nil)
		if err != nil {
			return NavigationIntent{}, fmt.Errorf("wizard: create chat: %w", err)
		}
		w.chatID = chatID
		if w.mode == model.ChatModeAI {
			w.done = true
			return NavigationIntent{Destination: DestinationAI, ChatID: chatID}, nil
		}
		link, err := w.linker.InviteLink(ctx, chatID, w.mode)
		if err != nil {
			// The chat already exists; surface the error but keep the step so
			// the user can retry the invite link.
			return NavigationIntent{}, fmt.Errorf("wizard: invite link: %w", err)
		}
		w.inviteLink = link
		w.step = StepAwaitInvite
		return NavigationIntent{}, nil

	case StepAwaitInvite:
		w.done = true
		if w.mode == model.ChatModeGroup {
			return NavigationIntent{Destination: DestinationGroup, ChatID: w.chatID}, nil
		}
		return NavigationIntent{Destination: DestinationConversation, ChatID: w.chatID}, nil
	}
	return NavigationIntent{}, fmt.Errorf("wizard: invalid step %d", w.step)
}

// Back moves one step back. It never rolls back an already-created chat:
// the record persists even if the user navigates away (known non-idempotent
// edge of the flow, kept deliberately).
func (w *Wizard) Back() {
	if w.done || w.step <= StepSelectLanguage {
		return
	}
	w.step--
}

// SendInvitations delivers pending invites for the created chat. Returns the
// addresses that failed; already-sent invitations stand.
func (w *Wizard) SendInvitations(ctx context.Context) ([]string, error) {
	if w.chatID == "" {
		return nil, errors.New("wizard: no chat created yet")
	}
	if len(w.inviteEmails) == 0 {
		return nil, nil
	}
	return w.inviter.SendInvites(ctx, w.chatID, w.inviteEmails, w.mode)
}

// Snapshot is the wire representation of wizard state for the HTTP surface.
type Snapshot struct {
	Step         Step               `json:"step"`
	Language     *language.Language `json:"language,omitempty"`
	Mode         model.ChatMode     `json:"mode,omitempty"`
	InviteEmails []string           `json:"invite_emails,omitempty"`
	InviteLink   string             `json:"invite_link,omitempty"`
	ChatID       string             `json:"chat_id,omitempty"`
	IsLastStep   bool               `json:"is_last_step"`
	Done         bool               `json:"done"`
}

func (w *Wizard) Snapshot() Snapshot {
	return Snapshot{
		Step:         w.step,
		Language:     w.language,
		Mode:         w.mode,
		InviteEmails: append([]string(nil), w.inviteEmails...),
		InviteLink:   w.inviteLink,
		ChatID:       w.chatID,
		IsLastStep:   w.IsLastStep(),
		Done:         w.done,
	}
}
