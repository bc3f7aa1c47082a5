package models

import "time"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID               int       `json:"id"`
	Username         string    `json:"username"`
	DisplayName      *string   `json:"display_name,omitempty"`
	AvatarURL        *string   `json:"avatar_url,omitempty"`
	Role             string    `json:"role"`
	ExperiencePoints int       `json:"experience_points"`
	CreatedAt        time.Time `json:"created_at"`
}

// Conversation is the single thread between two users. The pair is
// stored sorted so every unordered pair has one canonical row.
type Conversation struct {
	ID                  int        `json:"id"`
	ParticipantLow      int        `json:"participant_low"`
	ParticipantHigh     int        `json:"participant_high"`
	DisappearAfterHours *int       `json:"disappear_after_hours"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (c *Conversation) HasParticipant(userID int) bool {
	return userID == c.ParticipantLow || userID == c.ParticipantHigh
}

func (c *Conversation) OtherParticipant(userID int) int {
	if userID == c.ParticipantLow {
		return c.ParticipantHigh
	}
	return c.ParticipantLow
}

const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeAudio    = "audio"
	MessageTypeVideo    = "video"
	MessageTypeLocation = "location"
)

const MaxContentLength = 2000

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeVideo, MessageTypeLocation:
		return true
	}
	return false
}

type Message struct {
	ID             int        `json:"id"`
	ConversationID int        `json:"conversation_id"`
	SenderID       int        `json:"sender_id"`
	Content        string     `json:"content"`
	Type           string     `json:"type"`
	MediaURL       *string    `json:"media_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	IsDeleted      bool       `json:"-"`
	DeletedAt      *time.Time `json:"-"`
	IsFlagged      bool       `json:"is_flagged"`
	FlagReason     *string    `json:"flag_reason,omitempty"`
}

type Upload struct {
	ID          int       `json:"id"`
	UserID      int       `json:"-"`
	FileName    string    `json:"file_name"`
	StoredName  string    `json:"-"`
	FilePath    string    `json:"-"`
	FileSize    int64     `json:"file_size"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}
