package control

// Event type values pushed to subscribers.
const (
	EventTypeCommand = "controlCommand"
	EventTypeEnded   = "controlEnded"
)

// CommandEvent is fanned out to subscribers for each accepted command.
type CommandEvent struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId"`
	Intensity float64 `json:"intensity"`
}

// EndedEvent is fanned out to subscribers when a session is revoked. Once a
// subscriber receives it, no further CommandEvent for that session follows.
type EndedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// NewCommandEvent builds a CommandEvent for the session.
func NewCommandEvent(sessionID string, intensity float64) CommandEvent {
	return CommandEvent{Type: EventTypeCommand, SessionID: sessionID, Intensity: intensity}
}

// NewEndedEvent builds an EndedEvent for the session.
func NewEndedEvent(sessionID string) EndedEvent {
	return EndedEvent{Type: EventTypeEnded, SessionID: sessionID}
}
