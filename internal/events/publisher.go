package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/SamenB/Hotel-Booking-API/internal/booking"
	"github.com/SamenB/Hotel-Booking-API/internal/sequence"
)

// Publisher emits booking lifecycle events to the notification exchange.
// It implements booking.EventPublisher.
type Publisher struct {
	ch       *amqp.Channel
	seqRepo  *sequence.Repository
	producer string
}

type PublisherOptions struct {
	Producer string
}

func NewPublisher(conn *amqp.Connection, seqRepo *sequence.Repository, opts PublisherOptions) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	producer := opts.Producer
	if producer == "" {
		producer = "hotel-booking-api"
	}

	return &Publisher{ch: ch, seqRepo: seqRepo, producer: producer}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishBookingCreated(ctx context.Context, b booking.Booking) error {
	seq, err := p.seqRepo.NextSequence(ctx, b.HotelID)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	ev := newBookingCreatedEvent(seq, p.producer, BookingCreatedPayload{
		BookingID: b.ID,
		RoomID:    b.RoomID,
		HotelID:   b.HotelID,
		UserID:    b.UserID,
		CheckIn:   b.CheckIn,
		CheckOut:  b.CheckOut,
		Price:     b.Price,
	}, time.Now().UTC())

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal BookingCreated: %w", err)
	}
	return p.publishJSON(ctx, BookingCreatedRoutingKey, body)
}

func (p *Publisher) PublishBookingCancelled(ctx context.Context, b booking.Booking) error {
	seq, err := p.seqRepo.NextSequence(ctx, b.HotelID)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	ev := newBookingCancelledEvent(seq, p.producer, BookingCancelledPayload{
		BookingID: b.ID,
		RoomID:    b.RoomID,
		HotelID:   b.HotelID,
		UserID:    b.UserID,
		CheckIn:   b.CheckIn,
		CheckOut:  b.CheckOut,
	}, time.Now().UTC())

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal BookingCancelled: %w", err)
	}
	return p.publishJSON(ctx, BookingCancelledRoutingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
