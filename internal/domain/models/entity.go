package models

import (
	"encoding/json"
	"fmt"
)

// EntityKind discriminates the node variants of the workspace tree.
type EntityKind string

const (
	KindFolder  EntityKind = "folder"
	KindChat    EntityKind = "chat"
	KindNote    EntityKind = "note"
	KindMindlet EntityKind = "mindlet"
)

// ParseEntityKind returns the kind for s or an error for unknown values.
func ParseEntityKind(s string) (EntityKind, error) {
	switch k := EntityKind(s); k {
	case KindFolder, KindChat, KindNote, KindMindlet:
		return k, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", s)
	}
}

// UnmarshalJSON rejects unknown kinds so no untyped variant enters the tree.
func (k *EntityKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEntityKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Container reports whether entities of this kind can hold children:
// folders hold items, chats hold branch chats.
func (k EntityKind) Container() bool {
	switch k {
	case KindFolder, KindChat:
		return true
	case KindNote, KindMindlet:
		return false
	default:
		return false
	}
}

// Entity is one node of the workspace tree.
// ParentID is the containing folder (nil at the root). For branch chats
// ParentChatID names the chat they were branched from.
type Entity struct {
	ID           string     `json:"id"`
	Kind         EntityKind `json:"type"`
	Name         string     `json:"name"`
	ParentID     *string    `json:"parent_id"`
	ParentChatID *string    `json:"parent_chat_id,omitempty"`
	HasChildren  bool       `json:"has_children"`
	Position     float64    `json:"position"`
}

// IsBranchOf reports whether e is a branch chat of the chat parentChatID.
func (e Entity) IsBranchOf(parentChatID string) bool {
	return e.Kind == KindChat && e.ParentChatID != nil && *e.ParentChatID == parentChatID
}

// ParentKey returns the folder id as a map key, "" for the root.
func (e Entity) ParentKey() string {
	return Deref(e.ParentID)
}

// Ptr returns a pointer to s, or nil for the empty string.
func Ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
