package bus

// EventKind distinguishes how an inbound event was triggered.
type EventKind string

const (
	// EventCommand is a slash-command style text message.
	EventCommand EventKind = "command"
	// EventCallback is a button click carrying an opaque callback token.
	EventCallback EventKind = "callback"
)

// InboundEvent is one user interaction delivered by a channel adapter.
// UserID is the canonical user identifier; adapters resolve platform
// quirks (numeric id vs username) before publishing.
type InboundEvent struct {
	Channel   string    `json:"channel"`
	Source    string    `json:"source,omitempty"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	ChatID    string    `json:"chat_id"`
	MessageID string    `json:"message_id,omitempty"`
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text"`
}

// Button is one clickable button: a label and the callback token
// echoed back when the user presses it.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// DirectiveKind selects the delivery operation for a directive.
type DirectiveKind string

const (
	DirectiveSend   DirectiveKind = "send"
	DirectiveEdit   DirectiveKind = "edit"
	DirectiveDelete DirectiveKind = "delete"
)

// OutboundDirective instructs a channel adapter to send, edit or delete
// a message. Buttons is an ordered grid of rows; adapters translate it
// into the platform's keyboard structure, or fold the labels into the
// text on platforms without button support.
type OutboundDirective struct {
	Kind      DirectiveKind `json:"kind"`
	Channel   string        `json:"channel"`
	Source    string        `json:"source,omitempty"`
	ChatID    string        `json:"chat_id"`
	UserID    string        `json:"user_id,omitempty"`
	MessageID string        `json:"message_id,omitempty"`
	Title     string        `json:"title,omitempty"`
	Text      string        `json:"text,omitempty"`
	Buttons   [][]Button    `json:"buttons,omitempty"`
}

// EventHandler processes one inbound event.
type EventHandler func(InboundEvent) error
