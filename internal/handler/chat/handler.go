package chat

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/conversation"
	chatService "github.com/zhouzirui/mira-chat/internal/service/chat"
	"github.com/zhouzirui/mira-chat/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session", h.handleGetSession)
	r.Post("/session/name", h.handleSetName)
	r.Delete("/session/name", h.handleResetName)

	r.Get("/settings/webhook", h.handleGetWebhook)
	r.Put("/settings/webhook", h.handleSaveWebhook)

	r.Post("/conversations", h.handleOpenConversation)
	r.Delete("/conversations/{conversationID}", h.handleCloseConversation)
	r.Get("/conversations/{conversationID}/messages", h.handleListMessages)
	r.Post("/conversations/{conversationID}/messages", h.handleSendMessage)
}

type sessionResponse struct {
	DisplayName     string `json:"displayName,omitempty"`
	WebhookEndpoint string `json:"webhookEndpoint"`
	NeedsName       bool   `json:"needsName"`
	ReplyMode       string `json:"replyMode"`
}

func (h *Handler) sessionView() sessionResponse {
	session := h.chatSvc.Session()
	return sessionResponse{
		DisplayName:     session.DisplayName,
		WebhookEndpoint: session.WebhookEndpoint,
		NeedsName:       !session.HasName(),
		ReplyMode:       string(h.chatSvc.ReplyMode()),
	}
}

// handleGetSession 返回当前会话身份
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.sessionView())
}

// handleSetName 设置显示名称
func (h *Handler) handleSetName(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ConversationID string `json:"conversationId"`
		Name           string `json:"name"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	greeting, err := h.chatSvc.SetDisplayName(r.Context(), payload.ConversationID, payload.Name)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session":  h.sessionView(),
		"greeting": greeting,
	})
}

func (h *Handler) handleResetName(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.ResetName(r.Context()); err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handler) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"url": h.chatSvc.Endpoint()})
}

func (h *Handler) handleSaveWebhook(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		URL            string `json:"url"`
		ConversationID string `json:"conversationId"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notification, err := h.chatSvc.SaveEndpoint(r.Context(), payload.ConversationID, payload.URL)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"url":          h.chatSvc.Endpoint(),
		"notification": notification,
	})
}

// handleOpenConversation 创建会话
func (h *Handler) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatSvc.OpenConversation(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"conversationId": conv.ID(),
		"createdAt":      conv.CreatedAt(),
		"messages":       conv.Messages(),
		"session":        h.sessionView(),
	})
}

func (h *Handler) handleCloseConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseConversation(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	conv, err := h.chatSvc.Conversation(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"conversationId": id,
		"messages":       conv.Messages(),
		"busy":           h.chatSvc.Busy(id),
	})
}

// handleSendMessage 发送消息
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatSvc.Send(r.Context(), chi.URLParam(r, "conversationID"), payload.Text)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, msg)
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrEmptyName),
		errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, chatService.ErrInvalidEndpoint):
		return http.StatusBadRequest
	case errors.Is(err, chatService.ErrNameRequired):
		return http.StatusPreconditionFailed
	case errors.Is(err, chatService.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("[chat] request failed")
		utils.RespondError(w, status, "internal error")
		return
	}
	utils.RespondError(w, status, errors.Cause(err).Error())
}
