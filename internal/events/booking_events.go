package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeBookingCreated   = "BookingCreated"
	EventTypeBookingCancelled = "BookingCancelled"
)

// BookingCreatedPayload is consumed by the notification collaborator to send
// the confirmation email. Dates are the half-open stay interval.
type BookingCreatedPayload struct {
	BookingID string    `json:"bookingId"`
	RoomID    string    `json:"roomId"`
	HotelID   string    `json:"hotelId"`
	UserID    string    `json:"userId"`
	CheckIn   time.Time `json:"checkIn"`
	CheckOut  time.Time `json:"checkOut"`
	Price     int       `json:"price"`
}

type BookingCancelledPayload struct {
	BookingID string    `json:"bookingId"`
	RoomID    string    `json:"roomId"`
	HotelID   string    `json:"hotelId"`
	UserID    string    `json:"userId"`
	CheckIn   time.Time `json:"checkIn"`
	CheckOut  time.Time `json:"checkOut"`
}

type BookingCreatedEvent struct {
	EventEnvelope
	Payload BookingCreatedPayload `json:"payload"`
}

type BookingCancelledEvent struct {
	EventEnvelope
	Payload BookingCancelledPayload `json:"payload"`
}

func newBookingCreatedEvent(seq int64, producer string, payload BookingCreatedPayload, occurredAt time.Time) BookingCreatedEvent {
	return BookingCreatedEvent{
		EventEnvelope: EventEnvelope{
			EventName:    EventTypeBookingCreated,
			EventVersion: 1,
			EventID:      uuid.NewString(),
			Producer:     producer,
			PartitionKey: payload.HotelID,
			Sequence:     seq,
			OccurredAt:   occurredAt,
		},
		Payload: payload,
	}
}

func newBookingCancelledEvent(seq int64, producer string, payload BookingCancelledPayload, occurredAt time.Time) BookingCancelledEvent {
	return BookingCancelledEvent{
		EventEnvelope: EventEnvelope{
			EventName:    EventTypeBookingCancelled,
			EventVersion: 1,
			EventID:      uuid.NewString(),
			Producer:     producer,
			PartitionKey: payload.HotelID,
			Sequence:     seq,
			OccurredAt:   occurredAt,
		},
		Payload: payload,
	}
}
