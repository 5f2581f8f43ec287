package models

import (
	"slices"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// MessageStatus tracks a message through streaming. The zero value is a
// settled message.
type MessageStatus string

const (
	StatusComplete  MessageStatus = ""
	StatusStreaming MessageStatus = "streaming"
	StatusError     MessageStatus = "error"
)

// Message is one entry of a chat's history.
type Message struct {
	ID           string        `json:"id"`
	ChatID       string        `json:"chat_id"`
	Role         Role          `json:"role"`
	Content      string        `json:"content"`
	LLMModel     *string       `json:"llm_model"`
	CreatedAt    time.Time     `json:"created_at"`
	ReplyContent *string       `json:"reply_content"`
	Attachments  []Attachment  `json:"attachments"`
	Branches     []BranchLink  `json:"branches"`
	Status       MessageStatus `json:"status,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	m.Attachments = slices.Clone(m.Attachments)
	m.Branches = slices.Clone(m.Branches)
	return m
}

// CloneMessages deep-copies a message list.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Clone()
	}
	return out
}

// Attachment references an uploaded file. File is filled in from the file
// metadata endpoint when a page of history is loaded.
type Attachment struct {
	FileID string    `json:"file_id"`
	File   *FileMeta `json:"file,omitempty"`
}

// FileStatus is the lifecycle state of an uploaded file.
type FileStatus string

const (
	FileStatusPending  FileStatus = "pending"
	FileStatusUploaded FileStatus = "uploaded"
)

// FileMeta describes an uploaded file.
type FileMeta struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	MimeType  string     `json:"mime_type"`
	Size      int64      `json:"size"`
	Status    FileStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// UploadTicket is returned by the upload init call.
type UploadTicket struct {
	FileID    string `json:"file_id"`
	UploadURL string `json:"upload_url"`
}
