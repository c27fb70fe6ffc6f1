package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication / Authorization ────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptNotFound    ErrCode = "ATTEMPT_NOT_FOUND"
	ErrExamNotFound       ErrCode = "EXAM_NOT_FOUND"
	ErrExamAccessDenied   ErrCode = "EXAM_ACCESS_DENIED"
	ErrAttemptNotEditable ErrCode = "ATTEMPT_NOT_EDITABLE"
	ErrWrongAttemptState  ErrCode = "WRONG_ATTEMPT_STATE"
	ErrUnknownQuestion    ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidAnswer      ErrCode = "INVALID_ANSWER"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrExamServiceDown    ErrCode = "EXAM_SERVICE_UNAVAILABLE"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is not valid."
	case ErrTokenExpired:
		return "The authentication token has expired."
	case ErrForbidden:
		return "You do not have permission to access this resource."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The identifier format is not valid."
	case ErrInvalidPayload:
		return "The request payload is not valid."

	case ErrAttemptNotFound:
		return "No live attempt with this identifier."
	case ErrExamNotFound:
		return "The exam could not be found."
	case ErrExamAccessDenied:
		return "Access to this exam was denied."
	case ErrAttemptNotEditable:
		return "The attempt can no longer be changed."
	case ErrWrongAttemptState:
		return "The attempt is not in a state that allows this action."
	case ErrUnknownQuestion:
		return "The question does not belong to this attempt."
	case ErrInvalidAnswer:
		return "The answer value is not valid for this question."
	case ErrSubmitFailed:
		return "Submission failed. Your answers are safe — please retry."
	case ErrExamServiceDown:
		return "The exam service is currently unavailable."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
