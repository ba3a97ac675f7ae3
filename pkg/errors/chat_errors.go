package errors

var (
	// Sentinels for errors.Is checks; they match any error with the same code.
	ErrValidation      = &AppError{Code: CodeInvalidArgument}
	ErrUnauthenticated = &AppError{Code: CodeUnauthenticated}
	ErrRateLimited     = &AppError{Code: CodeRateLimited}
	ErrNotFound        = &AppError{Code: CodeNotFound}
	ErrStorage         = &AppError{Code: CodeInternal}
)

var (
	ErrMissingIdentity   = Unauthenticated("please log in to continue")
	ErrInvalidToken      = Unauthenticated("invalid or expired token")
	ErrEmptyContent      = Validation("content", "message content cannot be empty")
	ErrContentTooLong    = Validation("content", "message content is too long")
	ErrMissingReceiver   = Validation("receiverId", "receiver ID is required")
	ErrMissingFriend     = Validation("friendId", "friend ID is required")
	ErrSelfConversation  = Validation("receiverId", "cannot send a message to yourself")
	ErrTooManyMessages   = RateLimited("too many messages, please try again later")
	ErrConversationEmpty = NotFound("conversation not found")
)
