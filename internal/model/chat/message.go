package chat

import "time"

// Author tags who wrote a message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Valid reports whether a is one of the known authors.
func (a Author) Valid() bool {
	return a == AuthorUser || a == AuthorAssistant
}

// Message is one immutable conversation entry.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Seq            int       `json:"seq"`
	Text           string    `json:"text"`
	Author         Author    `json:"author"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsUser reports whether the message was written by the human user.
func (m Message) IsUser() bool {
	return m.Author == AuthorUser
}
