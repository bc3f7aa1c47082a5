package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zuhreplanet/sohbet/internal/db"
	"github.com/zuhreplanet/sohbet/internal/models"
	"github.com/zuhreplanet/sohbet/internal/moderation"
	"github.com/zuhreplanet/sohbet/internal/reputation"
	"github.com/zuhreplanet/sohbet/internal/store"
	apperrors "github.com/zuhreplanet/sohbet/pkg/errors"
)

const (
	testAyse   = 1
	testMehmet = 2
	testZeynep = 3
)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()

	database, err := db.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conn := database.GetConn()
	for _, username := range []string{"ayse", "mehmet", "zeynep"} {
		if _, err := conn.Exec(
			`INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, "x",
		); err != nil {
			t.Fatalf("Failed to seed user %s: %v", username, err)
		}
	}

	svc := NewService(store.New(conn), moderation.NewFilter(), reputation.New(conn), 5)
	return svc, conn
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error with code %s, got nil", want)
	}
	if got := apperrors.CodeOf(err); got != want {
		t.Fatalf("Expected code %s, got %s (%v)", want, got, err)
	}
}

func TestGetOrCreateConversationIdempotent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	if first.ParticipantLow != testAyse || first.ParticipantHigh != testMehmet {
		t.Errorf("Expected canonical pair (1,2), got (%d,%d)", first.ParticipantLow, first.ParticipantHigh)
	}

	// The other side asking resolves to the same conversation
	second, err := svc.GetOrCreateConversation(ctx, testMehmet, testAyse)
	if err != nil {
		t.Fatalf("Failed to get conversation from other side: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected same conversation %d, got %d", first.ID, second.ID)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		t.Fatalf("Failed to count conversations: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected exactly 1 conversation, got %d", count)
	}
}

func TestGetOrCreateConversationRejectsSelf(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetOrCreateConversation(context.Background(), testAyse, testAyse)
	assertCode(t, err, apperrors.CodeValidation)
}

func TestGetOrCreateConversationUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetOrCreateConversation(context.Background(), testAyse, 99)
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestOutsiderIsDeniedEverywhere(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	if _, err := svc.ListMessages(ctx, testZeynep, conv.ID, 50, 0); err == nil {
		t.Errorf("Expected ListMessages to deny outsider")
	} else {
		assertCode(t, err, apperrors.CodeAccessDenied)
	}

	if _, _, err := svc.SendMessage(ctx, testZeynep, conv.ID, "selam", models.MessageTypeText, nil); err == nil {
		t.Errorf("Expected SendMessage to deny outsider")
	} else {
		assertCode(t, err, apperrors.CodeAccessDenied)
	}

	hours := 1
	if _, err := svc.SetDisappearTimer(ctx, testZeynep, conv.ID, &hours); err == nil {
		t.Errorf("Expected SetDisappearTimer to deny outsider")
	} else {
		assertCode(t, err, apperrors.CodeAccessDenied)
	}

	if err := svc.MarkAsRead(ctx, testZeynep, conv.ID); err == nil {
		t.Errorf("Expected MarkAsRead to deny outsider")
	} else {
		assertCode(t, err, apperrors.CodeAccessDenied)
	}
}

func TestMissingConversationIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ListMessages(context.Background(), testAyse, 999, 50, 0)
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestBlockedContentIsNeverStored(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	_, _, err = svc.SendMessage(ctx, testAyse, conv.ID, "beni ara 0532 123 45 67", models.MessageTypeText, nil)
	assertCode(t, err, apperrors.CodeContentRejected)

	messages, err := svc.ListMessages(ctx, testMehmet, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected no stored messages after a blocked send, got %d", len(messages))
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("Failed to count messages: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty messages table, got %d rows", count)
	}
}

func TestWarnedContentIsStoredFlagged(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	msg, flagged, err := svc.SendMessage(ctx, testAyse, conv.ID, "whatsapp üzerinden yazalım", models.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("Expected warned send to succeed, got: %v", err)
	}
	if !flagged {
		t.Errorf("Expected the send to report the flag")
	}
	if !msg.IsFlagged || msg.FlagReason == nil || *msg.FlagReason != "contains a suspicious term" {
		t.Errorf("Expected flagged message with reason, got %+v", msg)
	}

	// The message is still delivered to the other side
	messages, err := svc.ListMessages(ctx, testMehmet, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 delivered message, got %d", len(messages))
	}

	flaggedList, err := svc.ListFlagged(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list flagged messages: %v", err)
	}
	if len(flaggedList) != 1 || flaggedList[0].ID != msg.ID {
		t.Errorf("Expected the flagged message in the review list, got %d", len(flaggedList))
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	mediaURL := "/api/files/abc.jpg"

	tests := []struct {
		name     string
		content  string
		msgType  string
		mediaURL *string
		wantErr  bool
	}{
		{name: "empty text rejected", content: "", msgType: models.MessageTypeText, wantErr: true},
		{name: "oversized content rejected", content: strings.Repeat("a", models.MaxContentLength+1), msgType: models.MessageTypeText, wantErr: true},
		{name: "unknown type rejected", content: "selam", msgType: "sticker", wantErr: true},
		{name: "media without url rejected", content: "", msgType: models.MessageTypeImage, wantErr: true},
		{name: "media with url accepted", content: "", msgType: models.MessageTypeImage, mediaURL: &mediaURL, wantErr: false},
		{name: "content at limit accepted", content: strings.Repeat("a", models.MaxContentLength), msgType: models.MessageTypeText, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SendMessage(ctx, testAyse, conv.ID, tt.content, tt.msgType, tt.mediaURL)
			if tt.wantErr {
				assertCode(t, err, apperrors.CodeValidation)
			} else if err != nil {
				t.Fatalf("Expected send to succeed, got: %v", err)
			}
		})
	}
}

func TestExpiredMessageDisappearsOnRead(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	hours := 1
	if _, err := svc.SetDisappearTimer(ctx, testAyse, conv.ID, &hours); err != nil {
		t.Fatalf("Failed to set timer: %v", err)
	}

	msg, _, err := svc.SendMessage(ctx, testAyse, conv.ID, "bu mesaj kaybolacak", models.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if msg.ExpiresAt == nil {
		t.Fatalf("Expected expiry to be stamped")
	}
	if got := msg.ExpiresAt.Sub(msg.CreatedAt); got != time.Hour {
		t.Errorf("Expected expiry one hour after send, got %v", got)
	}

	// Before the expiry instant the message is visible
	visible, err := svc.ListMessages(ctx, testMehmet, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(visible) != 1 {
		t.Fatalf("Expected the fresh message to be visible, got %d", len(visible))
	}

	// Simulate the hour passing
	past := time.Now().UTC().Add(-time.Second)
	if _, err := conn.Exec(`UPDATE messages SET expires_at = ? WHERE id = ?`, past, msg.ID); err != nil {
		t.Fatalf("Failed to age message: %v", err)
	}

	after, err := svc.ListMessages(ctx, testMehmet, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages after expiry: %v", err)
	}
	if len(after) != 0 {
		t.Errorf("Expected expired message to be excluded, got %d", len(after))
	}

	// The sweep soft-deleted the row, it was not removed
	var isDeleted bool
	if err := conn.QueryRow(`SELECT is_deleted FROM messages WHERE id = ?`, msg.ID).Scan(&isDeleted); err != nil {
		t.Fatalf("Failed to inspect expired row: %v", err)
	}
	if !isDeleted {
		t.Errorf("Expected expired message to be marked deleted")
	}
}

func TestTimerChangeIsNotRetroactive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	hours24 := 24
	if _, err := svc.SetDisappearTimer(ctx, testAyse, conv.ID, &hours24); err != nil {
		t.Fatalf("Failed to set 24h timer: %v", err)
	}
	first, _, err := svc.SendMessage(ctx, testAyse, conv.ID, "uzun ömürlü", models.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("Failed to send first message: %v", err)
	}

	hours1 := 1
	if _, err := svc.SetDisappearTimer(ctx, testAyse, conv.ID, &hours1); err != nil {
		t.Fatalf("Failed to set 1h timer: %v", err)
	}
	second, _, err := svc.SendMessage(ctx, testAyse, conv.ID, "kısa ömürlü", models.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("Failed to send second message: %v", err)
	}

	if got := first.ExpiresAt.Sub(first.CreatedAt); got != 24*time.Hour {
		t.Errorf("Expected first message to keep its 24h expiry, got %v", got)
	}
	if got := second.ExpiresAt.Sub(second.CreatedAt); got != time.Hour {
		t.Errorf("Expected second message to use the 1h timer, got %v", got)
	}
}

func TestSetDisappearTimerLabelsAndValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	set := func(hours *int) (string, error) {
		return svc.SetDisappearTimer(ctx, testAyse, conv.ID, hours)
	}

	one, day, week := 1, 24, 168
	for _, tt := range []struct {
		hours *int
		want  string
	}{
		{&one, "1 Saat"},
		{&day, "24 Saat"},
		{&week, "7 Gün"},
		{nil, "Kapalı"},
	} {
		got, err := set(tt.hours)
		if err != nil {
			t.Fatalf("Failed to set timer %v: %v", tt.hours, err)
		}
		if got != tt.want {
			t.Errorf("Expected confirmation %q, got %q", tt.want, got)
		}
	}

	invalid := 5
	_, err = set(&invalid)
	assertCode(t, err, apperrors.CodeValidation)
}

func TestDeleteMessageSoftAndSenderOnly(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	msg, _, err := svc.SendMessage(ctx, testAyse, conv.ID, "yanlış gönderdim", models.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}

	// The receiver may not delete it
	err = svc.DeleteMessage(ctx, testMehmet, msg.ID)
	assertCode(t, err, apperrors.CodeAccessDenied)

	still, err := svc.ListMessages(ctx, testMehmet, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(still) != 1 {
		t.Fatalf("Expected message to survive the denied delete, got %d", len(still))
	}

	// The sender may
	if err := svc.DeleteMessage(ctx, testAyse, msg.ID); err != nil {
		t.Fatalf("Failed to delete own message: %v", err)
	}

	after, err := svc.ListMessages(ctx, testMehmet, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages after delete: %v", err)
	}
	if len(after) != 0 {
		t.Errorf("Expected deleted message to be excluded, got %d", len(after))
	}

	// Soft delete only: the row survives
	var isDeleted bool
	if err := conn.QueryRow(`SELECT is_deleted FROM messages WHERE id = ?`, msg.ID).Scan(&isDeleted); err != nil {
		t.Fatalf("Failed to inspect deleted row: %v", err)
	}
	if !isDeleted {
		t.Errorf("Expected row to be marked deleted, not removed")
	}

	// Deleting again reports the message as gone
	err = svc.DeleteMessage(ctx, testAyse, msg.ID)
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestMarkAsReadIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	if _, _, err := svc.SendMessage(ctx, testMehmet, conv.ID, "selam", models.MessageTypeText, nil); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}

	if err := svc.MarkAsRead(ctx, testAyse, conv.ID); err != nil {
		t.Fatalf("Failed to mark as read: %v", err)
	}

	first, err := svc.ListMessages(ctx, testAyse, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(first) != 1 || !first[0].IsRead || first[0].ReadAt == nil {
		t.Fatalf("Expected message to be read, got %+v", first[0])
	}

	// Second call is a no-op
	if err := svc.MarkAsRead(ctx, testAyse, conv.ID); err != nil {
		t.Fatalf("Failed to re-run mark as read: %v", err)
	}
	second, err := svc.ListMessages(ctx, testAyse, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages again: %v", err)
	}
	if !second[0].ReadAt.Equal(*first[0].ReadAt) {
		t.Errorf("Expected read_at to stay %v, got %v", first[0].ReadAt, second[0].ReadAt)
	}
}

type failingReputation struct{}

func (failingReputation) IncrementExperience(ctx context.Context, userID, amount int) error {
	return errors.New("reputation store is down")
}

func TestFailedAwardDoesNotFailSend(t *testing.T) {
	svc, conn := newTestService(t)
	svc.reputation = failingReputation{}
	ctx := context.Background()

	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	msg, _, err := svc.SendMessage(ctx, testAyse, conv.ID, "selam", models.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("Expected send to succeed despite award failure, got: %v", err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM messages WHERE id = ?`, msg.ID).Scan(&count); err != nil {
		t.Fatalf("Failed to check stored message: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected the message to be stored")
	}
}

func TestEndToEndScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// First contact creates the conversation
	conv, err := svc.GetOrCreateConversation(ctx, testAyse, testMehmet)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	// Ayşe sends a clean greeting
	msg, flagged, err := svc.SendMessage(ctx, testAyse, conv.ID, "Merhaba", models.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("Failed to send greeting: %v", err)
	}
	if msg.Content != "Merhaba" || flagged {
		t.Errorf("Expected clean greeting, got content=%q flagged=%v", msg.Content, flagged)
	}
	if msg.ExpiresAt != nil {
		t.Errorf("Expected no expiry with the timer off, got %v", msg.ExpiresAt)
	}

	got, err := svc.GetConversation(ctx, testAyse, conv.ID)
	if err != nil {
		t.Fatalf("Failed to get conversation: %v", err)
	}
	if got.LastMessageAt == nil || !got.LastMessageAt.Equal(msg.CreatedAt) {
		t.Errorf("Expected last_message_at to track the send, got %v", got.LastMessageAt)
	}

	// Mehmet sees one unread message
	messages, err := svc.ListMessages(ctx, testMehmet, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].IsRead {
		t.Fatalf("Expected one unread message, got %d", len(messages))
	}

	// Mehmet reads it
	if err := svc.MarkAsRead(ctx, testMehmet, conv.ID); err != nil {
		t.Fatalf("Failed to mark as read: %v", err)
	}
	messages, err = svc.ListMessages(ctx, testMehmet, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to re-list messages: %v", err)
	}
	if !messages[0].IsRead {
		t.Errorf("Expected message to be read")
	}

	// Ayşe turns on disappearing messages
	hours := 1
	confirmation, err := svc.SetDisappearTimer(ctx, testAyse, conv.ID, &hours)
	if err != nil {
		t.Fatalf("Failed to set timer: %v", err)
	}
	if confirmation != "1 Saat" {
		t.Errorf("Expected confirmation %q, got %q", "1 Saat", confirmation)
	}

	// The next message expires in an hour; the first one never does
	second, _, err := svc.SendMessage(ctx, testAyse, conv.ID, "bu kaybolur", models.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("Failed to send second message: %v", err)
	}
	if second.ExpiresAt == nil || second.ExpiresAt.Sub(second.CreatedAt) != time.Hour {
		t.Errorf("Expected second message to expire in an hour, got %+v", second.ExpiresAt)
	}

	firstAgain, err := svc.ListMessages(ctx, testAyse, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("Failed to list both messages: %v", err)
	}
	if len(firstAgain) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(firstAgain))
	}
	if firstAgain[0].ExpiresAt != nil {
		t.Errorf("Expected the earlier message to keep its null expiry")
	}

	// Two successful sends earned Ayşe experience points
	rep := reputation.New(connOf(t, svc))
	xp, err := rep.Experience(ctx, testAyse)
	if err != nil {
		t.Fatalf("Failed to read experience: %v", err)
	}
	if xp != 10 {
		t.Errorf("Expected 10 experience points after two sends, got %d", xp)
	}
}

// connOf digs the *sql.DB back out of the service's store for
// assertions that need raw SQL.
func connOf(t *testing.T, svc *Service) *sql.DB {
	t.Helper()
	st, ok := svc.store.(*store.Store)
	if !ok {
		t.Fatalf("Expected service to be backed by *store.Store")
	}
	return st.Conn()
}
