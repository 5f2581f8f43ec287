package models

import "time"

// Chat is a conversation. Branch chats carry the chat and message they
// were branched from.
type Chat struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	ParentDirectoryID *string   `json:"parent_directory_id"`
	ParentChatID      *string   `json:"parent_chat_id"`
	ParentMessageID   *string   `json:"parent_message_id,omitempty"`
	HasChildren       bool      `json:"has_children"`
	Position          float64   `json:"position"`
	CreatedAt         time.Time `json:"created_at"`
}

// Entity returns the tree view of the chat.
func (c Chat) Entity() Entity {
	return Entity{
		ID:           c.ID,
		Kind:         KindChat,
		Name:         c.Name,
		ParentID:     c.ParentDirectoryID,
		ParentChatID: c.ParentChatID,
		HasChildren:  c.HasChildren,
		Position:     c.Position,
	}
}

// IsBranch reports whether the chat was spawned from a parent message.
func (c Chat) IsBranch() bool {
	return c.ParentChatID != nil && c.ParentMessageID != nil
}

// ReplyContext is the quoted message shown above the input box.
type ReplyContext struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Draft is the persisted, unsent input of a chat.
type Draft struct {
	ChatID       string    `json:"chat_id"`
	Content      string    `json:"content"`
	ReplyToID    *string   `json:"reply_to_id,omitempty"`
	ReplyContent *string   `json:"reply_content,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Empty reports whether the draft carries nothing worth persisting.
func (d Draft) Empty() bool {
	return d.Content == "" && d.ReplyToID == nil
}
