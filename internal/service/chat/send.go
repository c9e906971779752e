package chat

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/conversation"
	"github.com/zhouzirui/mira-chat/internal/events"
	"github.com/zhouzirui/mira-chat/internal/model/chat"
	"github.com/zhouzirui/mira-chat/internal/webhook"
)

// Send appends the user's message and starts the respond cycle in the
// background. It returns once the user message is in the conversation.
//
// The cycle is not tied to ctx: once started, neither the webhook call nor the
// reply delay can be aborted. At most one cycle runs per conversation.
func (s *Service) Send(ctx context.Context, conversationID, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	conv, err := s.registry.Get(ctx, conversationID)
	if err != nil {
		return chat.Message{}, err
	}

	session := s.Session()
	if !session.HasName() {
		return chat.Message{}, ErrNameRequired
	}
	if !s.acquire(conversationID) {
		return chat.Message{}, ErrBusy
	}

	userMsg, err := conv.Append("user", chat.Message{Text: text, Author: chat.AuthorUser})
	if err != nil {
		s.release(conversationID)
		return chat.Message{}, err
	}
	s.publishBusy(conversationID, true)

	log.Info().
		Str("conversation", conversationID).
		Str("webhook", session.WebhookEndpoint).
		Str("user", session.DisplayName).
		Msg("[chat] sending message to webhook")

	s.inflight.Add(1)
	go s.respond(context.WithoutCancel(ctx), conv, session, userMsg)

	return userMsg, nil
}

// Busy reports whether a send is in flight for the conversation.
func (s *Service) Busy(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.busy[conversationID]
}

func (s *Service) acquire(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[conversationID] {
		return false
	}
	s.busy[conversationID] = true
	return true
}

func (s *Service) release(conversationID string) {
	s.mu.Lock()
	delete(s.busy, conversationID)
	s.mu.Unlock()
}

func (s *Service) publishBusy(conversationID string, busy bool) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(events.Busy(conversationID, busy)); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("[chat] publish busy state failed")
	}
}

func (s *Service) respond(ctx context.Context, conv *conversation.Conversation, session chat.Session, userMsg chat.Message) {
	defer s.inflight.Done()
	defer func() {
		s.release(conv.ID())
		s.publishBusy(conv.ID(), false)
	}()

	result, err := s.poster.Post(ctx, session.WebhookEndpoint, webhook.Payload{
		Message:   userMsg.Text,
		User:      session.DisplayName,
		Timestamp: s.opts.Now(),
	})
	if err != nil {
		s.fail(conv, err)
		return
	}

	log.Info().Str("conversation", conv.ID()).Int("status", result.StatusCode).Msg("[chat] webhook delivered")
	s.opts.Sleep(s.replyDelay())

	if _, err := conv.Append("ai", chat.Message{Text: s.replyText(result), Author: chat.AuthorAssistant}); err != nil {
		log.Error().Err(err).Str("conversation", conv.ID()).Msg("[chat] append reply failed")
	}
}

func (s *Service) fail(conv *conversation.Conversation, err error) {
	log.Error().Err(err).Str("conversation", conv.ID()).Msg("[chat] webhook send failed")

	if _, appendErr := conv.Append("error", chat.Message{Text: s.persona.Apology(err), Author: chat.AuthorAssistant}); appendErr != nil {
		log.Error().Err(appendErr).Str("conversation", conv.ID()).Msg("[chat] append apology failed")
	}
	s.raise(conv.ID(), chat.Notification{
		Title:       s.persona.ErrorToastTitle,
		Description: s.persona.ErrorToast(err),
		Variant:     chat.VariantDestructive,
	})
}

func (s *Service) replyText(result webhook.Result) string {
	if s.opts.ReplyMode == webhook.ModeAck {
		return s.persona.AckLine
	}
	if result.HasReply {
		return result.Reply
	}
	return s.persona.FallbackReply
}

// replyDelay is uniform in [MinDelay, MaxDelay).
func (s *Service) replyDelay() time.Duration {
	span := s.opts.MaxDelay - s.opts.MinDelay
	if span <= 0 {
		return s.opts.MinDelay
	}
	return s.opts.MinDelay + time.Duration(s.opts.Rand()*float64(span))
}
