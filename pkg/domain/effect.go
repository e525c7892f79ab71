package domain

// EffectType names the kind of outbound action produced by a step.
type EffectType string

const (
	// EffectSendText asks the gateway to deliver plain text to the sender.
	EffectSendText EffectType = "send_text"

	// EffectSendInteractive asks the gateway to deliver text with reply options.
	EffectSendInteractive EffectType = "send_interactive"

	// EffectDiagnostic reports a session-confined fault. It is logged, never delivered.
	EffectDiagnostic EffectType = "diagnostic"
)

// Effect is one outbound action produced by an executor step.
type Effect struct {
	Type    EffectType `json:"type"`
	NodeID  string     `json:"node_id,omitempty"`
	To      string     `json:"to,omitempty"`
	Text    string     `json:"text,omitempty"`
	Options []string   `json:"options,omitempty"`

	// Outcome is filled after delivery.
	Outcome *DeliveryResult `json:"outcome,omitempty"`
}

// IsDeliverable reports whether the effect is meant for the outbound gateway.
func (e Effect) IsDeliverable() bool {
	return e.Type == EffectSendText || e.Type == EffectSendInteractive
}

// DeliveryResult is the gateway's report on a single send.
type DeliveryResult struct {
	Delivered bool   `json:"delivered"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}
