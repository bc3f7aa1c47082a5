// Package chat orchestrates the message lifecycle: conversation
// lookup, moderation, expiry bookkeeping, read receipts and soft
// deletion. Persistence and classification are injected so transports
// (HTTP, WebSocket, CLI) all route through the same rules.
package chat

import (
	"context"
	"log"
	"time"
	"unicode/utf8"

	"github.com/zuhreplanet/sohbet/internal/models"
	"github.com/zuhreplanet/sohbet/internal/moderation"
	apperrors "github.com/zuhreplanet/sohbet/pkg/errors"
	"github.com/zuhreplanet/sohbet/pkg/i18n"
)

// ConversationStore is the persistence the service drives.
type ConversationStore interface {
	FindConversationByParticipants(ctx context.Context, userA, userB int) (*models.Conversation, error)
	CreateConversation(ctx context.Context, userA, userB int) (*models.Conversation, error)
	GetConversation(ctx context.Context, id int) (*models.Conversation, error)
	UpdateConversationTimer(ctx context.Context, conversationID int, hours *int) error
	ListConversationsForUser(ctx context.Context, userID int) ([]*models.Conversation, error)
	UserExists(ctx context.Context, userID int) (bool, error)
	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id int) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID, limit, beforeID int) ([]*models.Message, error)
	MarkMessagesExpired(ctx context.Context, conversationID int, asOf time.Time) (int64, error)
	MarkRead(ctx context.Context, conversationID, excludeSenderID int, asOf time.Time) error
	SoftDeleteMessage(ctx context.Context, messageID int, asOf time.Time) error
	ListFlaggedMessages(ctx context.Context, limit int) ([]*models.Message, error)
}

// Moderator classifies outgoing text before anything is stored.
type Moderator interface {
	Classify(text string) moderation.Verdict
}

// ReputationStore awards experience points for activity. A failed
// award never fails the operation that triggered it.
type ReputationStore interface {
	IncrementExperience(ctx context.Context, userID, amount int) error
}

// DisappearOptions are the timer values callers may choose from,
// keyed by hours. Off is represented by a null timer, not an entry.
var DisappearOptions = map[int]string{
	1:   "1 hour",
	24:  "24 hours",
	168: "7 days",
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type Service struct {
	store        ConversationStore
	moderator    Moderator
	reputation   ReputationStore
	xpPerMessage int
}

func NewService(store ConversationStore, moderator Moderator, reputation ReputationStore, xpPerMessage int) *Service {
	if xpPerMessage <= 0 {
		xpPerMessage = 5
	}
	return &Service{
		store:        store,
		moderator:    moderator,
		reputation:   reputation,
		xpPerMessage: xpPerMessage,
	}
}

// GetOrCreateConversation returns the single conversation between the
// requester and the other user, creating it on first contact. Repeated
// and concurrent calls for the same pair resolve to the same row.
func (s *Service) GetOrCreateConversation(ctx context.Context, requesterID, otherUserID int) (*models.Conversation, error) {
	if requesterID == otherUserID {
		return nil, apperrors.ErrSelfConversation
	}

	exists, err := s.store.UserExists(ctx, otherUserID)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	if !exists {
		return nil, apperrors.ErrUserNotFound
	}

	conv, err := s.store.FindConversationByParticipants(ctx, requesterID, otherUserID)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	if conv != nil {
		return conv, nil
	}

	conv, err = s.store.CreateConversation(ctx, requesterID, otherUserID)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	return conv, nil
}

// GetConversation returns the conversation if the requester belongs to it.
func (s *Service) GetConversation(ctx context.Context, requesterID, conversationID int) (*models.Conversation, error) {
	return s.conversationForParticipant(ctx, requesterID, conversationID)
}

// ListMessages returns one page of messages, oldest first. Expired
// messages are swept before the page is read, so a caller never sees a
// message past its expiry.
func (s *Service) ListMessages(ctx context.Context, requesterID, conversationID, limit, beforeID int) ([]*models.Message, error) {
	if _, err := s.conversationForParticipant(ctx, requesterID, conversationID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	swept, err := s.store.MarkMessagesExpired(ctx, conversationID, time.Now().UTC())
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	if swept > 0 {
		log.Printf("chat: swept %d expired message(s) from conversation %d", swept, conversationID)
	}

	messages, err := s.store.ListMessages(ctx, conversationID, limit, beforeID)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	return messages, nil
}

// SendMessage moderates, stamps expiry from the conversation's current
// timer and persists. A BLOCKED verdict stores nothing; a WARN verdict
// stores the message flagged. The returned bool reports the flag.
func (s *Service) SendMessage(ctx context.Context, requesterID, conversationID int, content, msgType string, mediaURL *string) (*models.Message, bool, error) {
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !models.ValidMessageType(msgType) {
		return nil, false, apperrors.ErrInvalidMessageType
	}
	if msgType == models.MessageTypeText && content == "" {
		return nil, false, apperrors.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return nil, false, apperrors.ErrContentTooLong
	}
	if msgType != models.MessageTypeText && (mediaURL == nil || *mediaURL == "") {
		return nil, false, apperrors.ErrMediaURLRequired
	}

	conv, err := s.conversationForParticipant(ctx, requesterID, conversationID)
	if err != nil {
		return nil, false, err
	}

	// Moderation runs before any write so a blocked send leaves no trace
	verdict := s.moderator.Classify(content)
	if verdict.Status == moderation.StatusBlocked {
		log.Printf("chat: blocked message from user %d in conversation %d: %s (term %q)",
			requesterID, conversationID, verdict.Reason, verdict.Term)
		return nil, false, apperrors.ErrBlockedContent(verdict.Reason)
	}

	now := time.Now().UTC()
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       requesterID,
		Content:        content,
		Type:           msgType,
		MediaURL:       mediaURL,
		CreatedAt:      now,
	}

	// Expiry is snapshotted at send time; later timer changes leave it alone
	if conv.DisappearAfterHours != nil {
		expiresAt := now.Add(time.Duration(*conv.DisappearAfterHours) * time.Hour)
		msg.ExpiresAt = &expiresAt
	}

	if verdict.Status == moderation.StatusWarn {
		reason := verdict.Reason
		msg.IsFlagged = true
		msg.FlagReason = &reason
		log.Printf("chat: flagged message from user %d in conversation %d: %s (term %q)",
			requesterID, conversationID, verdict.Reason, verdict.Term)
	}

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, false, apperrors.ErrStorage(err)
	}

	// Award is best effort; the message is already sent
	if s.reputation != nil {
		if err := s.reputation.IncrementExperience(ctx, requesterID, s.xpPerMessage); err != nil {
			log.Printf("chat: failed to award experience to user %d: %v", requesterID, err)
		}
	}

	return msg, msg.IsFlagged, nil
}

// SetDisappearTimer updates the conversation's timer and returns the
// localized confirmation label. Existing messages keep their expiry.
func (s *Service) SetDisappearTimer(ctx context.Context, requesterID, conversationID int, hours *int) (string, error) {
	if _, err := s.conversationForParticipant(ctx, requesterID, conversationID); err != nil {
		return "", err
	}

	label := "off"
	if hours != nil {
		name, ok := DisappearOptions[*hours]
		if !ok {
			return "", apperrors.ErrInvalidTimer
		}
		label = name
	}

	if err := s.store.UpdateConversationTimer(ctx, conversationID, hours); err != nil {
		return "", apperrors.ErrStorage(err)
	}

	return i18n.Translate(label), nil
}

// MarkAsRead marks everything the other participant sent as read.
// Calling it again changes nothing.
func (s *Service) MarkAsRead(ctx context.Context, requesterID, conversationID int) error {
	if _, err := s.conversationForParticipant(ctx, requesterID, conversationID); err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, conversationID, requesterID, time.Now().UTC()); err != nil {
		return apperrors.ErrStorage(err)
	}
	return nil
}

// DeleteMessage soft-deletes the requester's own message. Nobody else
// may delete it, and a second delete reports the message as gone.
func (s *Service) DeleteMessage(ctx context.Context, requesterID, messageID int) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return apperrors.ErrStorage(err)
	}
	if msg == nil || msg.IsDeleted {
		return apperrors.ErrMessageNotFound
	}
	if msg.SenderID != requesterID {
		return apperrors.ErrNotSender
	}
	if err := s.store.SoftDeleteMessage(ctx, messageID, time.Now().UTC()); err != nil {
		return apperrors.ErrStorage(err)
	}
	return nil
}

// ListConversations returns the requester's conversations, most
// recently active first.
func (s *Service) ListConversations(ctx context.Context, requesterID int) ([]*models.Conversation, error) {
	conversations, err := s.store.ListConversationsForUser(ctx, requesterID)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	return conversations, nil
}

// ListFlagged returns moderation-flagged messages for review.
func (s *Service) ListFlagged(ctx context.Context, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	messages, err := s.store.ListFlaggedMessages(ctx, limit)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	return messages, nil
}

func (s *Service) conversationForParticipant(ctx context.Context, requesterID, conversationID int) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, apperrors.ErrStorage(err)
	}
	if conv == nil {
		return nil, apperrors.ErrConversationNotFound
	}
	if !conv.HasParticipant(requesterID) {
		return nil, apperrors.ErrNotParticipant
	}
	return conv, nil
}
