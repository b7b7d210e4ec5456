package models

import "time"

// Message is a single entry in the conversation. Text only grows while Streaming is true and is
// immutable once the message has been finalized.
type Message struct {
	ID        string
	Sender    Sender
	Text      string
	CreatedAt time.Time
	Streaming bool

	// Notice marks synthetic messages (the greeting and error notices). They are shown to the user
	// but never sent to the model as conversation context.
	Notice bool
}

// Sender identifies who authored a message.
type Sender string

const (
	// SenderUser is the human operator typing into the input control.
	SenderUser Sender = "user"
	// SenderAssistant is the model, including synthetic in-persona notices.
	SenderAssistant Sender = "assistant"
)

// ChangeKind describes how the conversation changed.
type ChangeKind string

const (
	// ChangeAppended is emitted when a message is added at the end of the conversation.
	ChangeAppended ChangeKind = "appended"
	// ChangeUpdated is emitted when a fragment is appended to the streaming message.
	ChangeUpdated ChangeKind = "updated"
	// ChangeFinalized is emitted when the streaming message stops streaming.
	ChangeFinalized ChangeKind = "finalized"
	// ChangeRemoved is emitted when the streaming message is discarded.
	ChangeRemoved ChangeKind = "removed"
)

// Change is the notification a conversation emits after every mutation. Message holds the state of
// the affected message right after the mutation.
type Change struct {
	Kind    ChangeKind
	Message Message
}
