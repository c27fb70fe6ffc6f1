package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer       Action = "answer"
	ActionReview       Action = "review"
	ActionNavigate     Action = "navigate"
	ActionVisibility   Action = "visibility"
	ActionConnectivity Action = "connectivity"
	ActionPing         Action = "ping"
)

// RequestPayload carries any client action; unused fields are omitted.
type RequestPayload struct {
	Action Action `json:"action"`
	QID    string `json:"q_id,omitempty"`
	Value  string `json:"value,omitempty"`
	Marked bool   `json:"marked,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
	Online bool   `json:"online,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError Event = "error"
	EventState Event = "state"
	EventPong  Event = "pong"
)

// StateResponse acknowledges an action and carries the authoritative clock
// so the client can resync its display every round trip.
type StateResponse struct {
	Event            Event  `json:"event"`
	Status           string `json:"status"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
