// Package webhook ingests signed LINE webhook deliveries. Events are
// validated and logged; nothing downstream acts on them.
package webhook

import (
	"encoding/json"
	"time"

	"github.com/yourorg/kysafety/internal/errs"
)

// Source types.
const (
	SourceUser  = "user"
	SourceGroup = "group"
	SourceRoom  = "room"
)

var ErrMalformedPayload = errs.New(errs.KindValidation, "MALFORMED_PAYLOAD", "webhook body is not a valid LINE payload")

// Event is one accepted inbound notification.
type Event struct {
	Type           string    `json:"type"`
	WebhookEventID string    `json:"webhookEventId"`
	Timestamp      time.Time `json:"timestamp"`
	SourceType     string    `json:"sourceType"`
	SourceID       string    `json:"sourceId"`
	Redelivery     bool      `json:"redelivery"`
}

type payload struct {
	Destination string     `json:"destination"`
	Events      []rawEvent `json:"events"`
}

type rawEvent struct {
	Type            string `json:"type"`
	WebhookEventID  string `json:"webhookEventId"`
	Timestamp       int64  `json:"timestamp"` // unix millis
	DeliveryContext struct {
		IsRedelivery bool `json:"isRedelivery"`
	} `json:"deliveryContext"`
	Source struct {
		Type    string `json:"type"`
		UserID  string `json:"userId"`
		GroupID string `json:"groupId"`
		RoomID  string `json:"roomId"`
	} `json:"source"`
}

// Parse decodes a LINE payload. Events with an unknown source type are
// returned in skipped rather than failing the delivery.
func Parse(body []byte) (events []Event, skipped int, err error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, 0, errs.Wrap(errs.KindValidation, ErrMalformedPayload.Code, err)
	}
	events = make([]Event, 0, len(p.Events))
	for _, raw := range p.Events {
		var sourceID string
		switch raw.Source.Type {
		case SourceUser:
			sourceID = raw.Source.UserID
		case SourceGroup:
			sourceID = raw.Source.GroupID
		case SourceRoom:
			sourceID = raw.Source.RoomID
		default:
			skipped++
			continue
		}
		events = append(events, Event{
			Type:           raw.Type,
			WebhookEventID: raw.WebhookEventID,
			Timestamp:      time.UnixMilli(raw.Timestamp).UTC(),
			SourceType:     raw.Source.Type,
			SourceID:       sourceID,
			Redelivery:     raw.DeliveryContext.IsRedelivery,
		})
	}
	return events, skipped, nil
}
