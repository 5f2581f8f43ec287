package models

// ItemPayload is the freeform bag carried by tree items.
type ItemPayload struct {
	Name string `json:"name"`
}

// Item is the wire form of a tree entity on the /items endpoints.
type Item struct {
	ID           string      `json:"id"`
	Type         EntityKind  `json:"type"`
	ParentID     *string     `json:"parent_id"`
	ParentChatID *string     `json:"parent_chat_id,omitempty"`
	Position     float64     `json:"position"`
	HasChildren  bool        `json:"has_children"`
	Payload      ItemPayload `json:"payload"`
}

// Entity converts the wire item into a tree entity.
func (it Item) Entity() Entity {
	return Entity{
		ID:           it.ID,
		Kind:         it.Type,
		Name:         it.Payload.Name,
		ParentID:     it.ParentID,
		ParentChatID: it.ParentChatID,
		HasChildren:  it.HasChildren,
		Position:     it.Position,
	}
}

// ItemFromEntity converts a tree entity into its wire form.
func ItemFromEntity(e Entity) Item {
	return Item{
		ID:           e.ID,
		Type:         e.Kind,
		ParentID:     e.ParentID,
		ParentChatID: e.ParentChatID,
		Position:     e.Position,
		HasChildren:  e.HasChildren,
		Payload:      ItemPayload{Name: e.Name},
	}
}

// ItemPosition is one entry of a renormalization result.
type ItemPosition struct {
	ID       string  `json:"id"`
	Position float64 `json:"position"`
}
