package booking

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Cache is a byte-oriented cache used for explicit cache-aside reads of the
// static room catalog. Availability reads never go through it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EventPublisher notifies the external notification collaborator. Publishing
// is best-effort; a failed publish never rolls back a committed booking.
type EventPublisher interface {
	PublishBookingCreated(ctx context.Context, b Booking) error
	PublishBookingCancelled(ctx context.Context, b Booking) error
}

const catalogTTL = 5 * time.Minute

// Service front-ends the engine: it rejects bad input before any storage
// access, delegates the transactional work to the repository and fans out
// side effects (events, catalog cache).
type Service struct {
	repo   Repository
	cache  Cache
	events EventPublisher
	logger *log.Logger
}

func NewService(repo Repository, cache Cache, events EventPublisher, logger *log.Logger) *Service {
	return &Service{repo: repo, cache: cache, events: events, logger: logger}
}

// checkDateRange enforces the strictly positive-length stay precondition.
func checkDateRange(from, to time.Time) error {
	if !from.Before(to) {
		return ErrInvalidDateRange
	}
	return nil
}

func (s *Service) AvailableRoomIDs(ctx context.Context, hotelID string, from, to time.Time) ([]string, error) {
	if err := checkDateRange(from, to); err != nil {
		return nil, err
	}
	return s.repo.AvailableRoomIDs(ctx, hotelID, from, to)
}

func (s *Service) AvailableRooms(ctx context.Context, hotelID string, from, to time.Time) ([]Room, error) {
	if err := checkDateRange(from, to); err != nil {
		return nil, err
	}
	return s.repo.AvailableRooms(ctx, hotelID, from, to)
}

func (s *Service) Hotels(ctx context.Context, q HotelQuery) ([]Hotel, error) {
	if q.Available {
		if err := checkDateRange(q.DateFrom, q.DateTo); err != nil {
			return nil, err
		}
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	return s.repo.Hotels(ctx, q)
}

// RoomCatalog lists a hotel's rooms without any date predicate, cache-aside
// with a fixed TTL. The catalog is immutable while a hotel operates, so a
// stale read window of catalogTTL is acceptable.
func (s *Service) RoomCatalog(ctx context.Context, hotelID string) ([]Room, error) {
	key := "catalog:rooms:" + hotelID

	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var rooms []Room
			if err := json.Unmarshal(data, &rooms); err == nil {
				return rooms, nil
			}
		} else if err != nil {
			s.logger.Printf("catalog cache get failed: %v", err)
		}
	}

	rooms, err := s.repo.RoomsByHotel(ctx, hotelID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(rooms); err == nil {
			if err := s.cache.Set(ctx, key, data, catalogTTL); err != nil {
				s.logger.Printf("catalog cache set failed: %v", err)
			}
		}
	}
	return rooms, nil
}

// CreateBooking admits a single booking request. Validation happens before
// any storage access; the atomic re-check and insert live in the repository.
func (s *Service) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	if err := checkDateRange(req.CheckIn, req.CheckOut); err != nil {
		return Booking{}, err
	}

	bk, err := s.repo.CreateBooking(ctx, req)
	if err != nil {
		return Booking{}, err
	}
	s.logger.Printf("booking created: id=%s room=%s user=%s", bk.ID, bk.RoomID, bk.UserID)

	if s.events != nil {
		if err := s.events.PublishBookingCreated(ctx, bk); err != nil {
			s.logger.Printf("publish BookingCreated failed: %v", err)
		}
	}
	return bk, nil
}

// CreateBookingsBulk inserts candidates in one batch, silently dropping any
// that reference an unknown user, hotel or room. No overlap check runs on
// this path; callers vouch for availability.
func (s *Service) CreateBookingsBulk(ctx context.Context, candidates []BulkCandidate) (BulkResult, error) {
	known, err := s.repo.KnownIDs(ctx)
	if err != nil {
		return BulkResult{}, err
	}

	valid := make([]BulkCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := known.Users[c.UserID]; !ok {
			continue
		}
		if _, ok := known.Hotels[c.HotelID]; !ok {
			continue
		}
		if _, ok := known.Rooms[c.RoomID]; !ok {
			continue
		}
		valid = append(valid, c)
	}

	inserted := 0
	if len(valid) > 0 {
		inserted, err = s.repo.InsertBulk(ctx, valid)
		if err != nil {
			return BulkResult{}, err
		}
	}

	res := BulkResult{Inserted: inserted, Skipped: len(candidates) - inserted}
	s.logger.Printf("bulk bookings: inserted=%d skipped=%d", res.Inserted, res.Skipped)
	return res, nil
}

func (s *Service) DeleteBooking(ctx context.Context, bookingID string) error {
	bk, err := s.repo.DeleteBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	s.logger.Printf("booking cancelled: id=%s room=%s", bk.ID, bk.RoomID)

	if s.events != nil {
		if err := s.events.PublishBookingCancelled(ctx, bk); err != nil {
			s.logger.Printf("publish BookingCancelled failed: %v", err)
		}
	}
	return nil
}

func (s *Service) Bookings(ctx context.Context) ([]Booking, error) {
	return s.repo.Bookings(ctx)
}

func (s *Service) BookingsByUser(ctx context.Context, userID string) ([]Booking, error) {
	return s.repo.BookingsByUser(ctx, userID)
}
