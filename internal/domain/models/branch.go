package models

import (
	"encoding/json"
	"fmt"
)

// ConnectionType classifies how a branch relates to its parent chat.
type ConnectionType string

const (
	ConnectionAttached  ConnectionType = "attached"
	ConnectionDetached  ConnectionType = "detached"
	ConnectionTemporary ConnectionType = "temporary"
)

// Valid reports whether c is a known connection type.
func (c ConnectionType) Valid() bool {
	switch c {
	case ConnectionAttached, ConnectionDetached, ConnectionTemporary:
		return true
	}
	return false
}

// Toggled returns the other side of the attached/detached cycle.
// Temporary branches have no toggle.
func (c ConnectionType) Toggled() (ConnectionType, bool) {
	switch c {
	case ConnectionAttached:
		return ConnectionDetached, true
	case ConnectionDetached:
		return ConnectionAttached, true
	default:
		return c, false
	}
}

// ContextType tells whether a branch quotes a whole message or a span of it.
type ContextType string

const (
	ContextFullMessage   ContextType = "full_message"
	ContextTextSelection ContextType = "text_selection"
)

// BranchContext is the part of the parent message a branch was created
// from. It is either FullMessage or TextSelection.
type BranchContext interface {
	ContextType() ContextType
	isBranchContext()
}

// FullMessage is the context of a branch created from a whole message.
type FullMessage struct{}

func (FullMessage) ContextType() ContextType { return ContextFullMessage }
func (FullMessage) isBranchContext()         {}

// TextSelection is the context of a branch created from a highlighted
// span [StartPosition, EndPosition) of the message's plain text.
type TextSelection struct {
	SelectedText  string
	StartPosition int
	EndPosition   int
}

func (TextSelection) ContextType() ContextType { return ContextTextSelection }
func (TextSelection) isBranchContext()         {}

// Validate checks the offsets and the selected text.
func (s TextSelection) Validate() error {
	if s.SelectedText == "" {
		return fmt.Errorf("selected text is required")
	}
	if s.StartPosition < 0 || s.EndPosition < s.StartPosition {
		return fmt.Errorf("invalid selection bounds [%d,%d)", s.StartPosition, s.EndPosition)
	}
	return nil
}

// BranchLink is the parent message's record of one branch chat.
type BranchLink struct {
	ID              string
	ChildChatID     string
	ConnectionType  ConnectionType
	ConnectionColor string
	Context         BranchContext
}

// Selection returns the text selection of the link, if it has one.
func (l BranchLink) Selection() (TextSelection, bool) {
	sel, ok := l.Context.(TextSelection)
	return sel, ok
}

// contextFields is the flattened wire form shared by links and requests.
type contextFields struct {
	ContextType   ContextType `json:"context_type"`
	SelectedText  *string     `json:"selected_text,omitempty"`
	StartPosition *int        `json:"start_position,omitempty"`
	EndPosition   *int        `json:"end_position,omitempty"`
}

func flattenContext(ctx BranchContext) contextFields {
	switch c := ctx.(type) {
	case TextSelection:
		text, start, end := c.SelectedText, c.StartPosition, c.EndPosition
		return contextFields{
			ContextType:   ContextTextSelection,
			SelectedText:  &text,
			StartPosition: &start,
			EndPosition:   &end,
		}
	case FullMessage, nil:
		return contextFields{ContextType: ContextFullMessage}
	default:
		panic(fmt.Sprintf("unhandled branch context %T", ctx))
	}
}

func (f contextFields) context() (BranchContext, error) {
	switch f.ContextType {
	case ContextFullMessage, "":
		if f.SelectedText != nil || f.StartPosition != nil || f.EndPosition != nil {
			return nil, fmt.Errorf("full_message context must not carry selection fields")
		}
		return FullMessage{}, nil
	case ContextTextSelection:
		if f.SelectedText == nil || f.StartPosition == nil || f.EndPosition == nil {
			return nil, fmt.Errorf("text_selection context requires selected_text, start_position and end_position")
		}
		sel := TextSelection{
			SelectedText:  *f.SelectedText,
			StartPosition: *f.StartPosition,
			EndPosition:   *f.EndPosition,
		}
		if err := sel.Validate(); err != nil {
			return nil, err
		}
		return sel, nil
	default:
		return nil, fmt.Errorf("unknown context type %q", f.ContextType)
	}
}

type branchLinkJSON struct {
	ID              string         `json:"id"`
	ChildChatID     string         `json:"child_chat_id"`
	ConnectionType  ConnectionType `json:"connection_type"`
	ConnectionColor string         `json:"connection_color"`
	contextFields
}

func (l BranchLink) MarshalJSON() ([]byte, error) {
	return json.Marshal(branchLinkJSON{
		ID:              l.ID,
		ChildChatID:     l.ChildChatID,
		ConnectionType:  l.ConnectionType,
		ConnectionColor: l.ConnectionColor,
		contextFields:   flattenContext(l.Context),
	})
}

func (l *BranchLink) UnmarshalJSON(data []byte) error {
	var raw branchLinkJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ctx, err := raw.context()
	if err != nil {
		return fmt.Errorf("branch link %s: %w", raw.ID, err)
	}
	*l = BranchLink{
		ID:              raw.ID,
		ChildChatID:     raw.ChildChatID,
		ConnectionType:  raw.ConnectionType,
		ConnectionColor: raw.ConnectionColor,
		Context:         ctx,
	}
	return nil
}

// BranchOrigin is the branch_context of a chat-create request: where the
// new chat hangs off its parent and how it is connected.
type BranchOrigin struct {
	ParentChatID    string
	ParentMessageID string
	ConnectionType  ConnectionType
	ConnectionColor string
	Context         BranchContext
}

type branchOriginJSON struct {
	ParentChatID    string         `json:"parent_chat_id"`
	ParentMessageID string         `json:"parent_message_id"`
	ConnectionType  ConnectionType `json:"connection_type"`
	ConnectionColor string         `json:"connection_color,omitempty"`
	contextFields
}

func (o BranchOrigin) MarshalJSON() ([]byte, error) {
	return json.Marshal(branchOriginJSON{
		ParentChatID:    o.ParentChatID,
		ParentMessageID: o.ParentMessageID,
		ConnectionType:  o.ConnectionType,
		ConnectionColor: o.ConnectionColor,
		contextFields:   flattenContext(o.Context),
	})
}

func (o *BranchOrigin) UnmarshalJSON(data []byte) error {
	var raw branchOriginJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ctx, err := raw.context()
	if err != nil {
		return err
	}
	*o = BranchOrigin{
		ParentChatID:    raw.ParentChatID,
		ParentMessageID: raw.ParentMessageID,
		ConnectionType:  raw.ConnectionType,
		ConnectionColor: raw.ConnectionColor,
		Context:         ctx,
	}
	return nil
}

// Link builds the BranchLink the origin produces for childChatID.
func (o BranchOrigin) Link(linkID, childChatID string) BranchLink {
	return BranchLink{
		ID:              linkID,
		ChildChatID:     childChatID,
		ConnectionType:  o.ConnectionType,
		ConnectionColor: o.ConnectionColor,
		Context:         o.Context,
	}
}
