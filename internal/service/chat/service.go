// Package chat runs the widget's behavior: identity capture, the send/respond
// cycle against the webhook, and endpoint configuration.
package chat

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/conversation"
	"github.com/zhouzirui/mira-chat/internal/events"
	"github.com/zhouzirui/mira-chat/internal/model/chat"
	"github.com/zhouzirui/mira-chat/internal/model/persona"
	"github.com/zhouzirui/mira-chat/internal/storage"
	"github.com/zhouzirui/mira-chat/internal/webhook"
)

var (
	ErrEmptyName       = errors.New("display name is empty")
	ErrNameRequired    = errors.New("display name must be set before sending")
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrBusy            = errors.New("a message is already being sent")
	ErrInvalidEndpoint = errors.New("invalid webhook endpoint")
)

// Options tunes the response cycle. Zero values fall back to the defaults.
type Options struct {
	ReplyMode webhook.Mode
	MinDelay  time.Duration
	MaxDelay  time.Duration

	Sleep func(time.Duration)
	Rand  func() float64
	Now   func() time.Time
}

const (
	DefaultMinDelay = time.Second
	DefaultMaxDelay = 3 * time.Second
)

func (o Options) withDefaults() Options {
	if o.ReplyMode == "" {
		o.ReplyMode = webhook.ModeReply
	}
	if o.MinDelay <= 0 && o.MaxDelay <= 0 {
		o.MinDelay, o.MaxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service coordinates the session store, the conversations and the webhook.
type Service struct {
	repo      storage.Repository
	registry  *conversation.Registry
	publisher events.Publisher
	poster    webhook.Poster
	persona   persona.Persona
	opts      Options

	mu      sync.RWMutex
	session chat.Session
	busy    map[string]bool

	inflight sync.WaitGroup
}

// NewService wires the chat service. publisher may be nil when nobody renders
// notifications or busy changes.
func NewService(repo storage.Repository, registry *conversation.Registry, publisher events.Publisher, poster webhook.Poster, p persona.Persona, opts Options) *Service {
	return &Service{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		poster:    poster,
		persona:   p,
		opts:      opts.withDefaults(),
		session:   chat.Session{WebhookEndpoint: chat.DefaultWebhookEndpoint},
		busy:      make(map[string]bool),
	}
}

// Start reads the persisted session. Call it once before serving.
func (s *Service) Start(ctx context.Context) error {
	session, err := s.repo.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load session")
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	log.Info().
		Bool("has_name", session.HasName()).
		Str("webhook", session.WebhookEndpoint).
		Str("reply_mode", string(s.opts.ReplyMode)).
		Msg("[chat] session restored")
	return nil
}

// Session returns the current session.
func (s *Service) Session() chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// NeedsName reports whether the name prompt must be shown.
func (s *Service) NeedsName() bool {
	return !s.Session().HasName()
}

// Persona returns the assistant persona.
func (s *Service) Persona() persona.Persona {
	return s.persona
}

// ReplyMode reports how webhook responses are turned into assistant messages.
func (s *Service) ReplyMode() webhook.Mode {
	return s.opts.ReplyMode
}

// OpenConversation starts a conversation with the persona's welcome line.
func (s *Service) OpenConversation(ctx context.Context) (*conversation.Conversation, error) {
	conv := s.registry.Open(ctx)
	if _, err := conv.Append("welcome", chat.Message{Text: s.persona.OpeningLine, Author: chat.AuthorAssistant}); err != nil {
		return nil, err
	}
	log.Debug().Str("conversation", conv.ID()).Msg("[chat] conversation opened")
	return conv, nil
}

// Conversation looks up an open conversation.
func (s *Service) Conversation(ctx context.Context, conversationID string) (*conversation.Conversation, error) {
	return s.registry.Get(ctx, conversationID)
}

// CloseConversation forgets a conversation.
func (s *Service) CloseConversation(ctx context.Context, conversationID string) error {
	if err := s.registry.Close(ctx, conversationID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.busy, conversationID)
	s.mu.Unlock()
	return nil
}

// SetDisplayName persists name and greets the user in conversationID.
// Whitespace-only names are rejected and nothing is appended.
func (s *Service) SetDisplayName(ctx context.Context, conversationID, name string) (chat.Message, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Message{}, ErrEmptyName
	}

	conv, err := s.registry.Get(ctx, conversationID)
	if err != nil {
		return chat.Message{}, err
	}

	s.mu.Lock()
	if err := s.repo.SaveName(ctx, name); err != nil {
		s.mu.Unlock()
		return chat.Message{}, errors.Wrap(err, "save display name")
	}
	s.session.DisplayName = name
	s.mu.Unlock()

	log.Info().Str("conversation", conversationID).Str("user", name).Msg("[chat] display name set")
	return conv.Append("greeting", chat.Message{Text: s.persona.Greeting(name), Author: chat.AuthorAssistant})
}

// ResetName forgets the persisted display name. The next widget load prompts again.
func (s *Service) ResetName(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.SaveName(ctx, ""); err != nil {
		return errors.Wrap(err, "reset display name")
	}
	s.session.DisplayName = ""
	return nil
}

func (s *Service) raise(conversationID string, n chat.Notification) {
	if s.publisher == nil || conversationID == "" {
		return
	}
	if err := s.publisher.Publish(events.Raised(conversationID, n)); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("[chat] publish notification failed")
	}
}

// Wait blocks until every in-flight send has produced its assistant message.
func (s *Service) Wait() {
	s.inflight.Wait()
}
