package models

// ChunkType discriminates the events of a conversation stream.
type ChunkType string

const (
	ChunkContent  ChunkType = "content"
	ChunkTitle    ChunkType = "title"
	ChunkComplete ChunkType = "complete"
	ChunkError    ChunkType = "error"
)

// StreamChunk is one event of a conversation stream. Err is set (and the
// channel closed afterwards) when the transport fails.
type StreamChunk struct {
	Type   ChunkType `json:"type"`
	ID     string    `json:"id,omitempty"`
	Body   string    `json:"body,omitempty"`
	Title  string    `json:"title,omitempty"`
	ChatID string    `json:"chat_id,omitempty"`
	Err    error     `json:"-"`
}

// ConversationBranch identifies the parent message that triggered a
// branch chat's exchange.
type ConversationBranch struct {
	ParentChatID    string `json:"parent_chat_id"`
	ParentMessageID string `json:"parent_message_id"`
}

// ConversationRequest opens a streamed exchange. MessageID is the client
// id of the user message, ResponseID the id of the model placeholder that
// content chunks are keyed by.
type ConversationRequest struct {
	ChatID        string              `json:"chat_id"`
	MessageID     string              `json:"message_id"`
	ResponseID    string              `json:"response_id"`
	Content       string              `json:"content"`
	Model         string              `json:"model"`
	Attachments   []string            `json:"attachments,omitempty"`
	ReplyTo       *string             `json:"reply_to,omitempty"`
	ReplyContent  *string             `json:"reply_content,omitempty"`
	BranchContext *ConversationBranch `json:"branch_context,omitempty"`
}
