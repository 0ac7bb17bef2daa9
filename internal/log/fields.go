package log

// Canonical field name constants for structured logging.
const (
	FieldComponent    = "component"
	FieldItemID       = "item_id"
	FieldChallengeKey = "challenge_key"
	FieldVideoID      = "video_id"
	FieldOldState     = "old_state"
	FieldNewState     = "new_state"
	FieldCode         = "code"
	FieldPath         = "path"
	FieldFormat       = "format"
	FieldAttempt      = "attempt"
	FieldCredLen      = "credential_len"
)
