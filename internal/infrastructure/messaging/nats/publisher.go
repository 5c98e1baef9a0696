// Package nats publishes engine lifecycle events to NATS JetStream for
// downstream consumers such as settlement and analytics.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

const (
	DefaultStream  = "AUCTION_EVENTS"
	subjectPrefix  = "auction.events"
	publishTimeout = 5 * time.Second
)

// Connect dials NATS with unlimited reconnects.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("auction-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return nc, nil
}

// Publisher writes every engine event to the stream. It is registered as a
// handler on the event pipeline, so events of one room are published in order.
type Publisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

// NewPublisher makes sure the stream exists and returns a Publisher.
func NewPublisher(ctx context.Context, nc *nats.Conn, stream string, log zerolog.Logger) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if stream == "" {
		stream = DefaultStream
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Auction room lifecycle events",
		Subjects:    []string{subjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  10 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", stream, err)
	}
	log.Info().Str("stream", stream).Msg("jetstream stream ready")

	return &Publisher{js: js, log: log}, nil
}

// Subject returns auction.events.<type>.<room id>.
func Subject(ev domain.Event) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, ev.Type, ev.RoomID)
}

// MsgID identifies an event for JetStream de-duplication, so a re-emitted
// event inside the duplicate window is stored once.
func MsgID(ev domain.Event) string {
	return fmt.Sprintf("%s:%s:%d", ev.RoomID, ev.Type, ev.Sequence)
}

func (p *Publisher) HandleEvent(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ack, err := p.js.Publish(ctx, Subject(ev), data, jetstream.WithMsgID(MsgID(ev)))
	if err != nil {
		return fmt.Errorf("publish %s: %w", Subject(ev), err)
	}
	p.log.Debug().
		Str("subject", Subject(ev)).
		Uint64("stream_seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("event published")
	return nil
}
