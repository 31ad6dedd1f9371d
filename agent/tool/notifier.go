package tool

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Reservation-Concierge/agent/state"
	qstashx "github.com/tanpawarit/Chative-Reservation-Concierge/pkg/qstash"
)

type publisher interface {
	Publish(ctx context.Context, payload any, opts qstashx.PublishOptions) (string, error)
}

// QStashSink forwards reservation and calendar events to a webhook through
// QStash. Redelivered events carry the same deduplication id.
type QStashSink struct {
	client publisher
}

var _ contractx.EventSink = (*QStashSink)(nil)

func NewQStashSink(client publisher) (*QStashSink, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	return &QStashSink{client: client}, nil
}

func (s *QStashSink) Publish(ctx context.Context, event contractx.Event) error {
	id, err := s.client.Publish(ctx, event, qstashx.PublishOptions{
		DeduplicationID: DeduplicationID(event),
		Headers:         map[string]string{"X-Event-Type": event.Type},
	})
	if err != nil {
		return err
	}
	log.Debug().Str("event", event.Type).Str("session_id", event.SessionID).Str("message_id", id).Msg("event published")
	return nil
}

// DeduplicationID names the fact an event reports, not the delivery.
func DeduplicationID(event contractx.Event) string {
	subject := event.At.UTC().Format("20060102T150405")
	switch p := event.Payload.(type) {
	case statex.BookingAttempt:
		subject = p.Key()
	case contractx.CalendarEvent:
		subject = p.EventID
	}
	r := strings.NewReplacer("|", "_", " ", "_", ":", "_")
	return r.Replace(event.SessionID + "." + event.Type + "." + subject)
}
