package domain

import (
	"encoding/json"
	"time"
)

const (
	DeliveryOutcomeDelivered         = "delivered"
	DeliveryOutcomeFailed            = "failed"
	DeliveryOutcomePermanentlyFailed = "permanently_failed"
)

// Subscription is consumed read-only by the notifier; its CRUD lives in an
// external management surface.
type Subscription struct {
	WebhookID string    `json:"webhook_id"`
	URL       string    `json:"url"`
	EventSet  []string  `json:"event_set"`
	Secret    string    `json:"secret,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (s Subscription) WantsEvent(event string) bool {
	if !s.Active {
		return false
	}
	for _, e := range s.EventSet {
		if e == event {
			return true
		}
	}
	return false
}

// Delivery is one attempt in the append-only webhook audit trail.
type Delivery struct {
	DeliveryID   string    `json:"delivery_id"`
	WebhookID    string    `json:"webhook_id"`
	Event        string    `json:"event"`
	Payload      string    `json:"payload"`
	Attempt      int       `json:"attempt"`
	Outcome      string    `json:"outcome"`
	ResponseCode int       `json:"response_code"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// WebhookEvent is the wire body delivered to subscribers.
type WebhookEvent struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
