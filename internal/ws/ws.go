// Package ws keeps one live connection per signed-in user and fans
// chat events out to conversation participants. Inbound frames go
// through the chat service, so the socket cannot skip moderation or
// expiry stamping.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zuhreplanet/sohbet/internal/models"
	apperrors "github.com/zuhreplanet/sohbet/pkg/errors"
	"github.com/zuhreplanet/sohbet/pkg/i18n"
)

// ChatService is the slice of the chat core the hub drives for
// inbound frames.
type ChatService interface {
	GetConversation(ctx context.Context, requesterID, conversationID int) (*models.Conversation, error)
	SendMessage(ctx context.Context, requesterID, conversationID int, content, msgType string, mediaURL *string) (*models.Message, bool, error)
	MarkAsRead(ctx context.Context, requesterID, conversationID int) error
}

// PushNotifier mirrors push.Notifier; nil means push is disabled.
type PushNotifier interface {
	SendNewMessageNotification(receiverID int, senderUsername string)
}

// Event is the frame exchanged over the socket, inbound and outbound.
type Event struct {
	Type           string          `json:"type"`
	ClientMsgID    string          `json:"client_message_id,omitempty"`
	ConversationID int             `json:"conversation_id,omitempty"`
	MessageID      int             `json:"message_id,omitempty"`
	ReaderID       int             `json:"reader_id,omitempty"`
	Hours          *int            `json:"hours,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	Code           string          `json:"code,omitempty"`
}

type envelope struct {
	userIDs []int
	event   *Event
}

type Hub struct {
	clients    map[int]*Client
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	chat       ChatService
	push       PushNotifier
	mu         sync.RWMutex
}

type Client struct {
	userID   int
	username string
	conn     *websocket.Conn
	hub      *Hub
	send     chan *Event
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin
		return true
	},
}

func NewHub(chat ChatService, push PushNotifier) *Hub {
	return &Hub{
		clients:    make(map[int]*Client),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		chat:       chat,
		push:       push,
	}
}

// IsUserOnline checks if a user is currently connected.
func (h *Hub) IsUserOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// OnlineUserIDs lists the ids of currently connected users.
func (h *Hub) OnlineUserIDs() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// BroadcastNewMessage delivers a stored message to the receiver and
// echoes it to the sender so both sides get the canonical row.
func (h *Hub) BroadcastNewMessage(msg *models.Message, receiverID int, clientMsgID string) {
	h.broadcast <- envelope{
		userIDs: []int{receiverID, msg.SenderID},
		event: &Event{
			Type:           "message",
			ClientMsgID:    clientMsgID,
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Message:        msg,
		},
	}
}

// BroadcastMessagesRead tells the peer their messages were read.
func (h *Hub) BroadcastMessagesRead(conversationID, readerID, peerID int) {
	h.broadcast <- envelope{
		userIDs: []int{peerID},
		event: &Event{
			Type:           "messages_read",
			ConversationID: conversationID,
			ReaderID:       readerID,
		},
	}
}

// BroadcastMessageDeleted tells both participants a message is gone.
func (h *Hub) BroadcastMessageDeleted(conversationID, messageID, senderID, peerID int) {
	h.broadcast <- envelope{
		userIDs: []int{senderID, peerID},
		event: &Event{
			Type:           "message_deleted",
			ConversationID: conversationID,
			MessageID:      messageID,
		},
	}
}

// BroadcastTimerUpdate tells both participants the disappear timer
// changed. A nil Hours means the timer was turned off.
func (h *Hub) BroadcastTimerUpdate(conversationID int, hours *int, participantA, participantB int) {
	h.broadcast <- envelope{
		userIDs: []int{participantA, participantB},
		event: &Event{
			Type:           "timer_update",
			ConversationID: conversationID,
			Hours:          hours,
		},
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.userID] = client
			h.mu.Unlock()
			log.Printf("ws: user %d connected (total: %d)", client.userID, len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.userID]; ok {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("ws: user %d disconnected (total: %d)", client.userID, len(h.clients))

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[int]bool, len(env.userIDs))
	for _, userID := range env.userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		client, ok := h.clients[userID]
		if !ok {
			continue
		}
		select {
		case client.send <- env.event:
		default:
			log.Printf("ws: send channel full for user %d, dropping %s event", userID, env.event.Type)
		}
	}
}

func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": i18n.Translate("unauthorized")})
		return
	}
	username, _ := c.Get("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": i18n.Translate("websocket upgrade failed")})
		return
	}

	client := &Client{
		userID:   userID.(int),
		username: username.(string),
		conn:     conn,
		hub:      h,
		send:     make(chan *Event, 256),
	}

	h.register <- client

	go client.readPump()
	go client.writePump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read error: %v", err)
			}
			break
		}

		var frame Event
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "message":
			c.handleMessageFrame(&frame)
		case "mark_read":
			c.handleMarkReadFrame(&frame)
		}
	}
}

// handleMessageFrame runs the inbound text through the chat service,
// then fans the stored message out and pings the receiver over push.
// A rejected send comes back to the sender as an error event.
func (c *Client) handleMessageFrame(frame *Event) {
	ctx := context.Background()

	var mediaURL *string
	if frame.Message != nil && frame.Message.MediaURL != nil {
		mediaURL = frame.Message.MediaURL
	}
	content := ""
	msgType := models.MessageTypeText
	if frame.Message != nil {
		content = frame.Message.Content
		if frame.Message.Type != "" {
			msgType = frame.Message.Type
		}
	}

	conv, err := c.hub.chat.GetConversation(ctx, c.userID, frame.ConversationID)
	if err != nil {
		c.sendError(frame.ClientMsgID, err)
		return
	}

	msg, _, err := c.hub.chat.SendMessage(ctx, c.userID, frame.ConversationID, content, msgType, mediaURL)
	if err != nil {
		c.sendError(frame.ClientMsgID, err)
		return
	}

	receiverID := conv.OtherParticipant(c.userID)
	c.hub.BroadcastNewMessage(msg, receiverID, frame.ClientMsgID)

	if c.hub.push != nil && !c.hub.IsUserOnline(receiverID) {
		go c.hub.push.SendNewMessageNotification(receiverID, c.username)
	}
}

func (c *Client) handleMarkReadFrame(frame *Event) {
	ctx := context.Background()

	conv, err := c.hub.chat.GetConversation(ctx, c.userID, frame.ConversationID)
	if err != nil {
		c.sendError("", err)
		return
	}
	if err := c.hub.chat.MarkAsRead(ctx, c.userID, frame.ConversationID); err != nil {
		c.sendError("", err)
		return
	}

	c.hub.BroadcastMessagesRead(frame.ConversationID, c.userID, conv.OtherParticipant(c.userID))
}

func (c *Client) sendError(clientMsgID string, err error) {
	event := &Event{
		Type:        "error",
		ClientMsgID: clientMsgID,
		Code:        string(apperrors.CodeOf(err)),
		Error:       i18n.Translate(apperrors.MessageOf(err)),
	}
	select {
	case c.send <- event:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			data, _ := json.Marshal(event)
			w.Write(data)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
