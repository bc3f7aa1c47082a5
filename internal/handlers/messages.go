package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zuhreplanet/sohbet/internal/chat"
	"github.com/zuhreplanet/sohbet/internal/models"
	"github.com/zuhreplanet/sohbet/internal/store"
	apperrors "github.com/zuhreplanet/sohbet/pkg/errors"
)

// OnlineChecker reports live-connection state for previews.
type OnlineChecker interface {
	IsUserOnline(userID int) bool
}

// Broadcaster pushes chat events to connected WebSocket clients.
type Broadcaster interface {
	OnlineChecker
	BroadcastNewMessage(msg *models.Message, receiverID int, clientMsgID string)
	BroadcastMessagesRead(conversationID, readerID, peerID int)
	BroadcastMessageDeleted(conversationID, messageID, senderID, peerID int)
	BroadcastTimerUpdate(conversationID int, hours *int, participantA, participantB int)
}

// PushNotifier mirrors push.Notifier; nil disables web push.
type PushNotifier interface {
	SendNewMessageNotification(receiverID int, senderUsername string)
}

type ChatHandler struct {
	svc      *chat.Service
	store    *store.Store
	hub      Broadcaster
	notifier PushNotifier
}

func NewChatHandler(svc *chat.Service, st *store.Store, hub Broadcaster, notifier PushNotifier) *ChatHandler {
	return &ChatHandler{svc: svc, store: st, hub: hub, notifier: notifier}
}

// ConversationPreview is the conversation-list entry: the peer's
// identity plus unread and activity bookkeeping.
type ConversationPreview struct {
	ID                  int        `json:"id"`
	UserID              int        `json:"user_id"`
	Username            string     `json:"username"`
	DisplayName         *string    `json:"display_name,omitempty"`
	AvatarURL           *string    `json:"avatar_url,omitempty"`
	IsOnline            bool       `json:"is_online"`
	DisappearAfterHours *int       `json:"disappear_after_hours"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
	UnreadCount         int        `json:"unread_count"`
}

// CreateConversation returns the single conversation with the given
// user, creating it on first contact.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	var req struct {
		OtherUserID int `json:"other_user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	ctx := c.Request.Context()
	conv, err := h.svc.GetOrCreateConversation(ctx, requesterID, req.OtherUserID)
	if err != nil {
		fail(c, err)
		return
	}

	preview, err := h.preview(ctx, conv, requesterID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// GetConversations lists the caller's conversations, most recently
// active first.
func (h *ChatHandler) GetConversations(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	ctx := c.Request.Context()
	conversations, err := h.svc.ListConversations(ctx, requesterID)
	if err != nil {
		fail(c, err)
		return
	}

	previews := make([]*ConversationPreview, 0, len(conversations))
	for _, conv := range conversations {
		preview, err := h.preview(ctx, conv, requesterID)
		if err != nil {
			fail(c, err)
			return
		}
		previews = append(previews, preview)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": previews})
}

func (h *ChatHandler) preview(ctx context.Context, conv *models.Conversation, requesterID int) (*ConversationPreview, error) {
	peerID := conv.OtherParticipant(requesterID)
	peer, err := h.store.GetUser(ctx, peerID)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	if peer == nil {
		return nil, apperrors.ErrUserNotFound
	}

	unread, err := h.store.UnreadCount(ctx, conv.ID, requesterID)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}

	return &ConversationPreview{
		ID:                  conv.ID,
		UserID:              peer.ID,
		Username:            peer.Username,
		DisplayName:         peer.DisplayName,
		AvatarURL:           peer.AvatarURL,
		IsOnline:            h.hub != nil && h.hub.IsUserOnline(peer.ID),
		DisappearAfterHours: conv.DisappearAfterHours,
		LastMessageAt:       conv.LastMessageAt,
		UnreadCount:         unread,
	}, nil
}

// GetMessages returns one page of a conversation, oldest first.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid conversation id")})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	beforeID, _ := strconv.Atoi(c.DefaultQuery("before_id", "0"))

	messages, err := h.svc.ListMessages(c.Request.Context(), requesterID, conversationID, limit, beforeID)
	if err != nil {
		fail(c, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type sendMessageRequest struct {
	Content     string  `json:"content"`
	Type        string  `json:"type"`
	MediaURL    *string `json:"media_url"`
	ClientMsgID string  `json:"client_message_id"`
}

// SendMessage stores the message and notifies the other participant
// over WebSocket and, when offline, over web push.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid conversation id")})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	ctx := c.Request.Context()
	conv, err := h.svc.GetConversation(ctx, requesterID, conversationID)
	if err != nil {
		fail(c, err)
		return
	}

	msg, flagged, err := h.svc.SendMessage(ctx, requesterID, conversationID, req.Content, req.Type, req.MediaURL)
	if err != nil {
		fail(c, err)
		return
	}

	receiverID := conv.OtherParticipant(requesterID)
	if h.hub != nil {
		h.hub.BroadcastNewMessage(msg, receiverID, req.ClientMsgID)
	}
	if h.notifier != nil && (h.hub == nil || !h.hub.IsUserOnline(receiverID)) {
		go h.notifier.SendNewMessageNotification(receiverID, currentUsername(c))
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg, "flagged": flagged})
}

// MarkAsRead marks everything the other participant sent as read.
func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid conversation id")})
		return
	}

	ctx := c.Request.Context()
	conv, err := h.svc.GetConversation(ctx, requesterID, conversationID)
	if err != nil {
		fail(c, err)
		return
	}

	if err := h.svc.MarkAsRead(ctx, requesterID, conversationID); err != nil {
		fail(c, err)
		return
	}

	if h.hub != nil {
		h.hub.BroadcastMessagesRead(conversationID, requesterID, conv.OtherParticipant(requesterID))
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetTimer updates the conversation's disappearing-message timer.
func (h *ChatHandler) SetTimer(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	conversationID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid conversation id")})
		return
	}

	var req struct {
		Hours *int `json:"hours"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	ctx := c.Request.Context()
	confirmation, err := h.svc.SetDisappearTimer(ctx, requesterID, conversationID, req.Hours)
	if err != nil {
		fail(c, err)
		return
	}

	if h.hub != nil {
		if conv, err := h.svc.GetConversation(ctx, requesterID, conversationID); err == nil {
			h.hub.BroadcastTimerUpdate(conversationID, req.Hours, conv.ParticipantLow, conv.ParticipantHigh)
		}
	}

	c.JSON(http.StatusOK, gin.H{"confirmation": confirmation})
}

// DeleteMessage soft-deletes the caller's own message.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	messageID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid message id")})
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.DeleteMessage(ctx, requesterID, messageID); err != nil {
		fail(c, err)
		return
	}

	// The row survives the soft delete, so it still tells us where to
	// send the deletion event.
	if h.hub != nil {
		if msg, err := h.store.GetMessage(ctx, messageID); err == nil && msg != nil {
			if conv, err := h.store.GetConversation(ctx, msg.ConversationID); err == nil && conv != nil {
				h.hub.BroadcastMessageDeleted(conv.ID, msg.ID, requesterID, conv.OtherParticipant(requesterID))
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetFlaggedMessages lists moderation-flagged messages for admin
// review, newest first.
func (h *ChatHandler) GetFlaggedMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.svc.ListFlagged(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
