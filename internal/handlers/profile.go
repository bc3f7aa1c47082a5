package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zuhreplanet/sohbet/internal/models"
	"github.com/zuhreplanet/sohbet/internal/store"
	apperrors "github.com/zuhreplanet/sohbet/pkg/errors"
)

const maxAvatarSize = 2 * 1024 * 1024

// UserHandler serves profiles, user search and the media upload
// collaborator that produces media_url values for SendMessage.
type UserHandler struct {
	store         *store.Store
	online        OnlineChecker
	storagePath   string
	maxUploadSize int64
}

func NewUserHandler(st *store.Store, online OnlineChecker, storagePath string, maxUploadSize int64) *UserHandler {
	return &UserHandler{
		store:         st,
		online:        online,
		storagePath:   storagePath,
		maxUploadSize: maxUploadSize,
	}
}

func (h *UserHandler) isOnline(userID int) bool {
	return h.online != nil && h.online.IsUserOnline(userID)
}

// GetUserProfile returns a public profile by username.
func (h *UserHandler) GetUserProfile(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("username required")})
		return
	}

	user, err := h.store.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		fail(c, apperrors.ErrStorage(err))
		return
	}
	if user == nil {
		fail(c, apperrors.ErrUserNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"avatar_url":   user.AvatarURL,
		"is_online":    h.isOnline(user.ID),
		"created_at":   user.CreatedAt,
	})
}

// GetUsers lists users other than the caller, optionally filtered by
// a search fragment. Used to start a conversation.
func (h *UserHandler) GetUsers(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	users, err := h.store.SearchUsers(c.Request.Context(), requesterID, query, 20)
	if err != nil {
		fail(c, apperrors.ErrStorage(err))
		return
	}

	type userWithOnline struct {
		ID          int     `json:"id"`
		Username    string  `json:"username"`
		DisplayName *string `json:"display_name,omitempty"`
		AvatarURL   *string `json:"avatar_url,omitempty"`
		IsOnline    bool    `json:"is_online"`
	}

	res := make([]userWithOnline, 0, len(users))
	for _, user := range users {
		res = append(res, userWithOnline{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
			IsOnline:    h.isOnline(user.ID),
		})
	}

	c.JSON(http.StatusOK, res)
}

// GetMyProfile returns the caller's own profile.
func (h *UserHandler) GetMyProfile(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	user, err := h.store.GetUser(c.Request.Context(), requesterID)
	if err != nil {
		fail(c, apperrors.ErrStorage(err))
		return
	}
	if user == nil {
		fail(c, apperrors.ErrUserNotFound)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile updates the caller's display name.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("invalid request")})
		return
	}

	if err := h.store.UpdateDisplayName(c.Request.Context(), requesterID, req.DisplayName); err != nil {
		fail(c, apperrors.ErrStorage(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "display_name": req.DisplayName})
}

// UploadAvatar stores an avatar image and points the caller's profile
// at it.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	file, header, err := c.Request.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("file is required")})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("file must be an image")})
		return
	}
	if header.Size > maxAvatarSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("file too large")})
		return
	}

	storedName := "avatar_" + uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	path := filepath.Join(h.storagePath, storedName)
	if err := c.SaveUploadedFile(header, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save file")})
		return
	}

	avatarURL := "/api/files/" + storedName
	if err := h.store.UpdateAvatarURL(c.Request.Context(), requesterID, avatarURL); err != nil {
		fail(c, apperrors.ErrStorage(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"avatar_url": avatarURL})
}

// UploadFile stores a media file and returns the media_url the client
// passes into a subsequent send. Validation of the media content
// itself stays with this collaborator, not the chat core.
func (h *UserHandler) UploadFile(c *gin.Context) {
	requesterID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": __("unauthorized")})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("file is required")})
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": __("file too large")})
		return
	}

	storedName := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	path := filepath.Join(h.storagePath, storedName)
	if err := c.SaveUploadedFile(header, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": __("failed to save file")})
		return
	}

	upload := &models.Upload{
		UserID:      requesterID,
		FileName:    header.Filename,
		StoredName:  storedName,
		FilePath:    path,
		FileSize:    header.Size,
		ContentType: header.Header.Get("Content-Type"),
		URL:         "/api/files/" + storedName,
	}
	if err := h.store.InsertUpload(c.Request.Context(), upload); err != nil {
		fail(c, apperrors.ErrStorage(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"media_url":    upload.URL,
		"file_name":    upload.FileName,
		"file_size":    upload.FileSize,
		"content_type": upload.ContentType,
	})
}
