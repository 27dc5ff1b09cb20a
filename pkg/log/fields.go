package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Messaging
	FieldConnectionID   = "connection_id"
	FieldConversationID = "conversation_id"
	FieldMessageID      = "message_id"
	FieldEmoji          = "emoji"
	FieldReceiptStatus  = "receipt_status"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
