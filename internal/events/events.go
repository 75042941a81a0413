// Package events fans live-room and economy events out to connected clients.
// Delivery is best-effort: a slow subscriber drops events rather than
// blocking the publishing operation.
package events

// Topics for live-room fan-out. Streams are keyed by event kind; every
// event carries its session ID so consumers filter per room.
const (
	TopicSessionCreated = "session.created"
	TopicSessionEnded   = "session.ended"
	TopicSeatUpdated    = "seat.updated"
	TopicViewerJoined   = "viewer.joined"
	TopicViewerLeft     = "viewer.left"
	TopicHostAction     = "host.action"
	TopicGiftSent       = "gift.sent"
)

// Event is one fan-out payload.
type Event struct {
	Topic     string         `json:"topic"`
	SessionID string         `json:"session_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events to whatever transport carries them to clients.
type Publisher interface {
	Publish(topic string, event Event)
}
