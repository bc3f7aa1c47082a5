package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zuhreplanet/sohbet/internal/push"
)

// PushHandler manages the push_subscriptions table. Subscriptions are
// revoked, not deleted; the notifier skips revoked rows and removes
// endpoints the push service reports gone.
type PushHandler struct {
	db       *sql.DB
	notifier *push.Notifier
}

func NewPushHandler(db *sql.DB, notifier *push.Notifier) *PushHandler {
	return &PushHandler{db: db, notifier: notifier}
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// Subscribe registers a browser push subscription for the caller. An
// endpoint resubscribing moves to the new caller and loses any
// earlier revocation.
func (h *PushHandler) Subscribe(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	_, err := h.db.Exec(`
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			user_id = excluded.user_id,
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			revoked_at = NULL
	`, requesterID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("internal server error")})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true})
}

// Unsubscribe revokes the caller's subscription for an endpoint.
func (h *PushHandler) Unsubscribe(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	var req struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	_, err := h.db.Exec(`
		UPDATE push_subscriptions SET revoked_at = ?
		WHERE endpoint = ? AND user_id = ? AND revoked_at IS NULL
	`, time.Now().UTC(), req.Endpoint, requesterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("internal server error")})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// VAPIDKey hands the public key to the frontend. 404 when push is not
// configured.
func (h *PushHandler) VAPIDKey(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": __("not found")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": h.notifier.VAPIDPublicKey()})
}
