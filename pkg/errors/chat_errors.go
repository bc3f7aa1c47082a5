package errors

var (
	// Domain errors — used in service/store
	ErrUsernameTaken        = AlreadyExists("username is already taken")
	ErrUserNotFound         = NotFound("user not found")
	ErrConversationNotFound = NotFound("conversation not found")
	ErrMessageNotFound      = NotFound("message not found")
	ErrNotParticipant       = AccessDenied("not a participant of this conversation")
	ErrNotSender            = AccessDenied("only the sender can delete a message")
	ErrSelfConversation     = Validation("cannot start a conversation with yourself")
	ErrEmptyContent         = Validation("message content cannot be empty")
	ErrContentTooLong       = Validation("message content exceeds the allowed length")
	ErrMediaURLRequired     = Validation("media messages require a media url")
	ErrInvalidMessageType   = Validation("unsupported message type")
	ErrInvalidTimer         = Validation("disappear timer must be off, 1, 24 or 168 hours")
	ErrInvalidCredentials   = Unauthorized("invalid username or password")
)

func ErrStorage(cause error) error {
	return Wrap(CodeStorageUnavailable, "storage unavailable", cause)
}

func ErrBlockedContent(reason string) error {
	return New(CodeContentRejected, reason)
}
