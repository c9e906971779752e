package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

var validate = validator.New()

// ValidateEndpoint checks that raw is an absolute http(s) URL.
func ValidateEndpoint(raw string) error {
	if err := validate.Var(strings.TrimSpace(raw), "required,http_url"); err != nil {
		return errors.Wrapf(ErrInvalidEndpoint, "%q", raw)
	}
	return nil
}

// Endpoint returns the saved webhook endpoint used by sends.
func (s *Service) Endpoint() string {
	return s.Session().WebhookEndpoint
}

// SaveEndpoint validates and persists a new webhook endpoint, then raises the
// confirmation notification on conversationID (if any) and returns it.
func (s *Service) SaveEndpoint(ctx context.Context, conversationID, raw string) (chat.Notification, error) {
	endpoint := strings.TrimSpace(raw)
	if err := ValidateEndpoint(endpoint); err != nil {
		return chat.Notification{}, err
	}

	s.mu.Lock()
	if err := s.repo.SaveEndpoint(ctx, endpoint); err != nil {
		s.mu.Unlock()
		return chat.Notification{}, errors.Wrap(err, "save webhook endpoint")
	}
	s.session.WebhookEndpoint = endpoint
	s.mu.Unlock()

	log.Info().Str("webhook", endpoint).Msg("[chat] webhook endpoint saved")

	n := chat.Notification{
		Title:       s.persona.SavedToastTitle,
		Description: s.persona.SavedToastDescription,
		Variant:     chat.VariantDefault,
	}
	s.raise(conversationID, n)
	return n, nil
}

// EndpointEditor holds an unsaved edit of the webhook endpoint. Sends keep
// using the saved value until Save succeeds; Cancel reverts to it.
type EndpointEditor struct {
	svc            *Service
	conversationID string

	mu    sync.Mutex
	draft string
}

// EditEndpoint starts an edit seeded with the saved endpoint.
func (s *Service) EditEndpoint(conversationID string) *EndpointEditor {
	return &EndpointEditor{svc: s, conversationID: conversationID, draft: s.Endpoint()}
}

// Draft returns the value being edited.
func (e *EndpointEditor) Draft() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// Edit replaces the draft.
func (e *EndpointEditor) Edit(value string) {
	e.mu.Lock()
	e.draft = value
	e.mu.Unlock()
}

// Save commits the draft.
func (e *EndpointEditor) Save(ctx context.Context) (chat.Notification, error) {
	return e.svc.SaveEndpoint(ctx, e.conversationID, e.Draft())
}

// Cancel discards the draft and returns the saved endpoint.
func (e *EndpointEditor) Cancel() string {
	saved := e.svc.Endpoint()
	e.Edit(saved)
	return saved
}
