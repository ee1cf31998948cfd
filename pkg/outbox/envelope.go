package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who triggered the event: a user, a guest session, or
// a system process such as the gateway webhook or the expiry job.
type ActorRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

const (
	ActorUser    = "user"
	ActorGuest   = "guest"
	ActorGateway = "gateway"
	ActorSystem  = "system"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
