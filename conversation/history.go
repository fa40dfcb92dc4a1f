// Package conversation holds the client side of a chat: the message history, a store views can
// subscribe to, the per-submission state machine and the HTTP client for the bot endpoint.
package conversation

import "github.com/abhirockzz/ele-chat/assistant"

// History is an immutable, ordered list of messages. The zero value is an empty history.
type History struct {
	messages []assistant.Message
}

func NewHistory(messages ...assistant.Message) History {
	return History{messages: append([]assistant.Message(nil), messages...)}
}

// Append returns a new history with msg at the end. h is left untouched.
func (h History) Append(msg assistant.Message) History {
	next := make([]assistant.Message, len(h.messages), len(h.messages)+1)
	copy(next, h.messages)
	return History{messages: append(next, msg)}
}

// Messages returns a copy of the messages in insertion order.
func (h History) Messages() []assistant.Message {
	return append([]assistant.Message(nil), h.messages...)
}

func (h History) Len() int {
	return len(h.messages)
}

// Last returns the newest message, if any.
func (h History) Last() (assistant.Message, bool) {
	if len(h.messages) == 0 {
		return assistant.Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}
