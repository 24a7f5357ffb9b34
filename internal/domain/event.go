package domain

import "github.com/google/uuid"

type EventType string

const (
	EventConnected        EventType = "connected"
	EventNewMessage       EventType = "new_message"
	EventMessageUpdated   EventType = "message_updated"
	EventMessageDeleted   EventType = "message_deleted"
	EventQueueUpdated     EventType = "queue_updated"
	EventHandRaiseNew     EventType = "hand_raise_new"
	EventHandRaiseUpdated EventType = "hand_raise_updated"
	EventHandRaiseRemoved EventType = "hand_raise_removed"
)

// Event is a committed mutation to fan out to a queue's subscribers.
type Event struct {
	QueueID uuid.UUID
	Type    EventType
	Data    any
}

func NewEvent(queueID uuid.UUID, typ EventType, data any) Event {
	return Event{QueueID: queueID, Type: typ, Data: data}
}

// IDPayload is the body of removal events.
type IDPayload struct {
	ID uuid.UUID `json:"id"`
}
