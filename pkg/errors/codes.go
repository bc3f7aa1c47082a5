package errors

type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodeAccessDenied       Code = "ACCESS_DENIED"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeContentRejected    Code = "CONTENT_REJECTED"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL"
)
