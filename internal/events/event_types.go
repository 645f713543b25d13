package events

// EventType enumerates the event names written to stream clients.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventTicketUpdate EventType = "ticket-update"
	EventHeartbeat    EventType = "heartbeat"
	EventTimeline     EventType = "timeline"
)

// ConnectedPayload is sent once when a stream opens.
type ConnectedPayload struct {
	Message      string `json:"message"`
	ConnectionID string `json:"connectionId"`
}

// HeartbeatPayload keeps idle streams alive through proxies.
type HeartbeatPayload struct {
	Timestamp string `json:"timestamp"`
}
