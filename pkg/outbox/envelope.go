package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies the market actor on whose behalf the event was produced.
type ActorRef struct {
	ActorNumber string `json:"actorNumber"`
	Role        string `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
