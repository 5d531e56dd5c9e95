package response

// ErrCode identifies an API error independently of its message.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrLearnerAccessOnly ErrCode = "LEARNER_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Assessments ───────────────────────────────────────────────────
	ErrAssessmentNotAvailable ErrCode = "ASSESSMENT_NOT_AVAILABLE"
	ErrAssessmentNotDraft     ErrCode = "ASSESSMENT_NOT_DRAFT"
	ErrNoQuestions            ErrCode = "NO_QUESTIONS"
	ErrAttemptInProgress      ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrAttemptFinalized       ErrCode = "ATTEMPT_ALREADY_FINALIZED"
	ErrNothingAnswered        ErrCode = "NOTHING_ANSWERED"
	ErrGradingUnavailable     ErrCode = "GRADING_UNAVAILABLE"

	// ─── AI question review ────────────────────────────────────────────
	ErrAIQuestionReviewed ErrCode = "AI_QUESTION_ALREADY_REVIEWED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrSessionActive:
		return "You are already signed in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please sign in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrLearnerAccessOnly:
		return "This resource is restricted to learners."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidAnswer:
		return "One or more answers do not match their question."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Assessments ───────────────────────────────────────────────────
	case ErrAssessmentNotAvailable:
		return "This assessment is not currently available."
	case ErrAssessmentNotDraft:
		return "This assessment is not in DRAFT status."
	case ErrNoQuestions:
		return "This assessment has no questions."
	case ErrAttemptInProgress:
		return "You already have an attempt in progress for this assessment."
	case ErrAttemptFinalized:
		return "This attempt has already been submitted."
	case ErrNothingAnswered:
		return "Answer at least one question before submitting."
	case ErrGradingUnavailable:
		return "Grading is temporarily unavailable. Please submit again."

	// ─── AI question review ────────────────────────────────────────────
	case ErrAIQuestionReviewed:
		return "This question has already been reviewed."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
