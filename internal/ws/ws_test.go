package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zuhreplanet/sohbet/internal/auth"
	"github.com/zuhreplanet/sohbet/internal/chat"
	"github.com/zuhreplanet/sohbet/internal/db"
	"github.com/zuhreplanet/sohbet/internal/models"
	"github.com/zuhreplanet/sohbet/internal/moderation"
	"github.com/zuhreplanet/sohbet/internal/reputation"
	"github.com/zuhreplanet/sohbet/internal/store"
)

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()

	client := &Client{userID: 7, username: "ayse", send: make(chan *Event, 8), hub: hub}
	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	if !hub.IsUserOnline(7) {
		t.Errorf("Expected user 7 to be online after register")
	}
	if hub.IsUserOnline(8) {
		t.Errorf("User 8 never connected")
	}
	if ids := hub.OnlineUserIDs(); len(ids) != 1 || ids[0] != 7 {
		t.Errorf("OnlineUserIDs = %v, want [7]", ids)
	}

	hub.unregister <- client
	time.Sleep(50 * time.Millisecond)

	if hub.IsUserOnline(7) {
		t.Errorf("Expected user 7 to be offline after unregister")
	}
	if _, open := <-client.send; open {
		t.Errorf("Expected send channel to be closed on unregister")
	}
}

func TestDeliverTargetsAndDedupes(t *testing.T) {
	hub := NewHub(nil, nil)

	sender := &Client{userID: 1, send: make(chan *Event, 8), hub: hub}
	receiver := &Client{userID: 2, send: make(chan *Event, 8), hub: hub}
	bystander := &Client{userID: 3, send: make(chan *Event, 8), hub: hub}
	hub.clients[1] = sender
	hub.clients[2] = receiver
	hub.clients[3] = bystander

	// An envelope may list the same id twice
	hub.deliver(envelope{
		userIDs: []int{2, 1, 2},
		event:   &Event{Type: "message", ConversationID: 5},
	})

	if got := len(sender.send); got != 1 {
		t.Errorf("Sender received %d events, want 1", got)
	}
	if got := len(receiver.send); got != 1 {
		t.Errorf("Receiver received %d events, want 1 after dedupe", got)
	}
	if got := len(bystander.send); got != 0 {
		t.Errorf("Bystander received %d events, want 0", got)
	}

	// Offline targets are skipped without blocking
	hub.deliver(envelope{userIDs: []int{99}, event: &Event{Type: "message"}})
}

type wsEnv struct {
	server *httptest.Server
	svc    *chat.Service
	ayseID int
	mehID  int
	convID int
}

// newWSEnv stands up the full socket path: a real chat service over a
// temp database, with a stub auth layer that trusts a user query param.
func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	conn := database.GetConn()
	authSvc := auth.New(conn, "test-secret")
	st := store.New(conn)
	svc := chat.NewService(st, moderation.NewFilter(), reputation.New(conn), 5)

	ayseID, err := authSvc.Register("ayse", "password123")
	if err != nil {
		t.Fatalf("Failed to register ayse: %v", err)
	}
	mehID, err := authSvc.Register("mehmet", "password123")
	if err != nil {
		t.Fatalf("Failed to register mehmet: %v", err)
	}
	conv, err := svc.GetOrCreateConversation(context.Background(), ayseID, mehID)
	if err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}

	hub := NewHub(svc, nil)
	go hub.Run()

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Query("user"))
		if err != nil {
			c.AbortWithStatus(401)
			return
		}
		c.Set("user_id", id)
		c.Set("username", c.Query("name"))
		hub.HandleWebSocket(c)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &wsEnv{server: server, svc: svc, ayseID: ayseID, mehID: mehID, convID: conv.ID}
}

func (e *wsEnv) dial(t *testing.T, userID int, username string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") +
		"/ws?user=" + strconv.Itoa(userID) + "&name=" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket as %s: %v", username, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) *Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("Failed to decode event %q: %v", data, err)
	}
	return &event
}

func TestSocketMessageRoundTrip(t *testing.T) {
	env := newWSEnv(t)
	ayse := env.dial(t, env.ayseID, "ayse")
	mehmet := env.dial(t, env.mehID, "mehmet")
	time.Sleep(50 * time.Millisecond)

	frame := Event{
		Type:           "message",
		ClientMsgID:    "tmp-1",
		ConversationID: env.convID,
		Message:        &models.Message{Content: "Merhaba"},
	}
	if err := ayse.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	// Receiver gets the stored row
	got := readEvent(t, mehmet)
	if got.Type != "message" {
		t.Fatalf("Receiver event type = %q, want message", got.Type)
	}
	if got.Message == nil || got.Message.Content != "Merhaba" {
		t.Fatalf("Receiver event missing message body: %+v", got)
	}
	if got.Message.ID == 0 {
		t.Errorf("Expected a persisted message id")
	}

	// Sender gets the echo carrying its client id
	echo := readEvent(t, ayse)
	if echo.Type != "message" || echo.ClientMsgID != "tmp-1" {
		t.Errorf("Sender echo = %+v, want message with client id tmp-1", echo)
	}

	// The row is actually in the store
	messages, err := env.svc.ListMessages(context.Background(), env.mehID, env.convID, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "Merhaba" {
		t.Errorf("Expected the socket message persisted, got %d rows", len(messages))
	}
}

func TestSocketRejectsBlockedContent(t *testing.T) {
	env := newWSEnv(t)
	ayse := env.dial(t, env.ayseID, "ayse")
	time.Sleep(50 * time.Millisecond)

	frame := Event{
		Type:           "message",
		ClientMsgID:    "tmp-2",
		ConversationID: env.convID,
		Message:        &models.Message{Content: "iban numaram şu"},
	}
	if err := ayse.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	got := readEvent(t, ayse)
	if got.Type != "error" {
		t.Fatalf("Event type = %q, want error", got.Type)
	}
	if got.Code != "CONTENT_REJECTED" {
		t.Errorf("Error code = %q, want CONTENT_REJECTED", got.Code)
	}
	if got.ClientMsgID != "tmp-2" {
		t.Errorf("Error must carry the client id, got %q", got.ClientMsgID)
	}

	messages, err := env.svc.ListMessages(context.Background(), env.ayseID, env.convID, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Blocked content must not be stored, found %d rows", len(messages))
	}
}

func TestSocketOutsiderDenied(t *testing.T) {
	env := newWSEnv(t)
	intruderID := env.ayseID + env.mehID + 100 // never a participant

	conn := env.dial(t, intruderID, "intruder")
	time.Sleep(50 * time.Millisecond)

	frame := Event{
		Type:           "message",
		ConversationID: env.convID,
		Message:        &models.Message{Content: "selam"},
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	got := readEvent(t, conn)
	if got.Type != "error" || got.Code != "ACCESS_DENIED" {
		t.Errorf("Event = %+v, want error with ACCESS_DENIED", got)
	}
}

func TestSocketMarkRead(t *testing.T) {
	env := newWSEnv(t)

	if _, _, err := env.svc.SendMessage(context.Background(), env.ayseID, env.convID, "selam", models.MessageTypeText, nil); err != nil {
		t.Fatalf("Failed to seed message: %v", err)
	}

	ayse := env.dial(t, env.ayseID, "ayse")
	mehmet := env.dial(t, env.mehID, "mehmet")
	time.Sleep(50 * time.Millisecond)

	if err := mehmet.WriteJSON(Event{Type: "mark_read", ConversationID: env.convID}); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}

	got := readEvent(t, ayse)
	if got.Type != "messages_read" {
		t.Fatalf("Event type = %q, want messages_read", got.Type)
	}
	if got.ConversationID != env.convID || got.ReaderID != env.mehID {
		t.Errorf("Read receipt = %+v, want conversation %d reader %d", got, env.convID, env.mehID)
	}

	messages, err := env.svc.ListMessages(context.Background(), env.ayseID, env.convID, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(messages) != 1 || !messages[0].IsRead {
		t.Errorf("Expected the seeded message marked read")
	}
}
