package domain

// InboundEvent is one message from a sender, already resolved to a project.
type InboundEvent struct {
	ProjectID string `json:"project_id"`
	SenderID  string `json:"sender_id"`

	// MessageID is the channel-native id, used to detect redelivery. Optional.
	MessageID string `json:"message_id,omitempty"`

	Text              string `json:"text,omitempty"`
	ButtonSelectionID string `json:"button_selection_id,omitempty"`
}

// Key returns the session key the event belongs to.
func (e InboundEvent) Key() SessionKey {
	return SessionKey{ProjectID: e.ProjectID, SenderID: e.SenderID}
}

// HasInput reports whether the event carries text or a button selection.
func (e InboundEvent) HasInput() bool {
	return e.Text != "" || e.ButtonSelectionID != ""
}
