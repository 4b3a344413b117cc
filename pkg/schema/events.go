package schema

// Event type constants for the session event log and the streaming hub.
const (
	EventActivitiesAdded   = "activities_added"
	EventActivitiesRemoved = "activities_removed"
	EventActivityUpdated   = "activity_updated"
	EventRequirementsReset = "requirements_reset"
	EventSequenceRollback  = "sequence_rollback"

	EventSessionOpened    = "session_opened"
	EventSessionCompleted = "session_completed"
	EventSessionReset     = "session_reset"
	EventSessionMoved     = "session_moved"

	EventValidationFailed = "validation_failed"
)

// SessionStatus represents the lifecycle state of a sequencing session.
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
)
