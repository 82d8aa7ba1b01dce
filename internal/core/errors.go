package core

// Wire-level error messages sent in error envelopes. A connection that
// receives one of these stays open.
const (
	MsgInvalidFormat    = "Invalid message format"
	MsgUnsupportedType  = "Unsupported message type"
	MsgInvalidChat      = "Invalid chat message"
	MsgChatFailed       = "Failed to process chat message"
	MsgChatNotFound     = "Chat not found"
	MsgJoinFailed       = "Failed to join chat"
	MsgInvalidTyping    = "Invalid typing status"
	MsgTypingFailed     = "Failed to process typing status"
	MsgInvalidPresence  = "Invalid presence query"
	MsgPresenceFailed   = "Failed to process presence query"
	MsgProcessingFailed = "Failed to process message"
)
