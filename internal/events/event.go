// Package events carries conversation changes to every renderer (SSE viewers,
// websocket clients, the terminal UI) over a watermill pub/sub.
package events

import (
	"encoding/json"
	"time"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

// Type names an event kind.
type Type string

const (
	MessageAppended    Type = "message.appended"
	NotificationRaised Type = "notification.raised"
	BusyChanged        Type = "state.busy"
)

// Event is the unit published on a conversation topic.
type Event struct {
	Type           Type               `json:"type"`
	ConversationID string             `json:"conversationId"`
	Message        *chat.Message      `json:"message,omitempty"`
	Notification   *chat.Notification `json:"notification,omitempty"`
	Busy           *bool              `json:"busy,omitempty"`
	At             time.Time          `json:"at"`
}

// Appended builds a MessageAppended event.
func Appended(msg chat.Message) Event {
	return Event{Type: MessageAppended, ConversationID: msg.ConversationID, Message: &msg, At: time.Now().UTC()}
}

// Raised builds a NotificationRaised event.
func Raised(conversationID string, n chat.Notification) Event {
	return Event{Type: NotificationRaised, ConversationID: conversationID, Notification: &n, At: time.Now().UTC()}
}

// Busy builds a BusyChanged event.
func Busy(conversationID string, busy bool) Event {
	return Event{Type: BusyChanged, ConversationID: conversationID, Busy: &busy, At: time.Now().UTC()}
}

// Topic returns the pub/sub topic for a conversation.
func Topic(conversationID string) string {
	return "mira.conversation." + conversationID
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

func decode(payload []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(payload, &ev)
	return ev, err
}
