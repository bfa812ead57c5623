package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Repository interface {
	GetRoom(ctx context.Context, roomID string) (Room, error)
	RoomsByHotel(ctx context.Context, hotelID string) ([]Room, error)
	AvailableRoomIDs(ctx context.Context, hotelID string, from, to time.Time) ([]string, error)
	AvailableRooms(ctx context.Context, hotelID string, from, to time.Time) ([]Room, error)
	Hotels(ctx context.Context, q HotelQuery) ([]Hotel, error)
	CreateBooking(ctx context.Context, req BookingRequest) (Booking, error)
	DeleteBooking(ctx context.Context, bookingID string) (Booking, error)
	Bookings(ctx context.Context) ([]Booking, error)
	BookingsByUser(ctx context.Context, userID string) ([]Booking, error)
	KnownIDs(ctx context.Context) (KnownIDs, error)
	InsertBulk(ctx context.Context, candidates []BulkCandidate) (int, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Overlap counting uses the half-open interval test: [a,b) and [c,d)
// intersect iff a < d AND c < b. One aggregation pass over bookings per
// query, never a per-day walk and never a per-room query.
const availableRoomIDsSQL = `
	WITH booked AS (
		SELECT room_id, COUNT(*) AS rooms_booked
		FROM bookings
		WHERE check_in < $2 AND check_out > $1
		GROUP BY room_id
	)
	SELECT r.id
	FROM rooms r
	LEFT JOIN booked b ON b.room_id = r.id
	WHERE r.quantity - COALESCE(b.rooms_booked, 0) > 0`

const availableRoomsSQL = `
	WITH booked AS (
		SELECT room_id, COUNT(*) AS rooms_booked
		FROM bookings
		WHERE check_in < $2 AND check_out > $1
		GROUP BY room_id
	)
	SELECT r.id, r.hotel_id, r.title, r.description, r.price, r.quantity
	FROM rooms r
	LEFT JOIN booked b ON b.room_id = r.id
	WHERE r.hotel_id = $3 AND r.quantity - COALESCE(b.rooms_booked, 0) > 0
	ORDER BY r.title`

func (r *PostgresRepository) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var room Room
	row := r.pool.QueryRow(ctx, `
		SELECT id, hotel_id, title, description, price, quantity
		FROM rooms WHERE id=$1`, roomID)
	if err := row.Scan(&room.ID, &room.HotelID, &room.Title, &room.Description, &room.Price, &room.Quantity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("select room: %w", err)
	}
	return room, nil
}

func (r *PostgresRepository) RoomsByHotel(ctx context.Context, hotelID string) ([]Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, hotel_id, title, description, price, quantity
		FROM rooms WHERE hotel_id=$1 ORDER BY title`, hotelID)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	return scanRooms(rows)
}

// AvailableRoomIDs returns the rooms with at least one free unit over
// [from, to), optionally scoped to a hotel. An empty hotelID means all hotels.
func (r *PostgresRepository) AvailableRoomIDs(ctx context.Context, hotelID string, from, to time.Time) ([]string, error) {
	query := availableRoomIDsSQL + ` ORDER BY r.id`
	args := []any{from, to}
	if hotelID != "" {
		query = availableRoomIDsSQL + ` AND r.hotel_id = $3 ORDER BY r.id`
		args = append(args, hotelID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select available rooms: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) AvailableRooms(ctx context.Context, hotelID string, from, to time.Time) ([]Room, error) {
	rows, err := r.pool.Query(ctx, availableRoomsSQL, from, to, hotelID)
	if err != nil {
		return nil, fmt.Errorf("select available rooms: %w", err)
	}
	return scanRooms(rows)
}

const hotelsWithVacancySQL = `
	WITH booked AS (
		SELECT room_id, COUNT(*) AS rooms_booked
		FROM bookings
		WHERE check_in < $2 AND check_out > $1
		GROUP BY room_id
	)
	SELECT h.id, h.title, h.location
	FROM hotels h
	WHERE ($3 = '' OR h.title ILIKE '%' || $3 || '%')
	  AND ($4 = '' OR h.location ILIKE '%' || $4 || '%')
	  AND EXISTS (
		SELECT 1
		FROM rooms r
		LEFT JOIN booked b ON b.room_id = r.id
		WHERE r.hotel_id = h.id AND r.quantity - COALESCE(b.rooms_booked, 0) > 0
	  )
	ORDER BY h.title
	LIMIT $5 OFFSET $6`

const hotelsSQL = `
	SELECT h.id, h.title, h.location
	FROM hotels h
	WHERE ($1 = '' OR h.title ILIKE '%' || $1 || '%')
	  AND ($2 = '' OR h.location ILIKE '%' || $2 || '%')
	ORDER BY h.title
	LIMIT $3 OFFSET $4`

// Hotels lists hotels matching q. With q.Available set, a hotel qualifies when
// at least one of its rooms passes the availability predicate for the window.
func (r *PostgresRepository) Hotels(ctx context.Context, q HotelQuery) ([]Hotel, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if q.Available {
		rows, err = r.pool.Query(ctx, hotelsWithVacancySQL, q.DateFrom, q.DateTo, q.Title, q.Location, q.Limit, q.Offset)
	} else {
		rows, err = r.pool.Query(ctx, hotelsSQL, q.Title, q.Location, q.Limit, q.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("select hotels: %w", err)
	}
	defer rows.Close()

	hotels := []Hotel{}
	for rows.Next() {
		var h Hotel
		if err := rows.Scan(&h.ID, &h.Title, &h.Location); err != nil {
			return nil, fmt.Errorf("scan hotel: %w", err)
		}
		hotels = append(hotels, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return hotels, nil
}

// CreateBooking admits req atomically. The room row is locked with
// SELECT ... FOR UPDATE so concurrent admissions for the same room serialize;
// the overlap count and the insert then happen against a stable view. Price is
// captured from the locked row. The whole transaction runs under the retry
// policy, so deadlocks against other write paths are absorbed.
func (r *PostgresRepository) CreateBooking(ctx context.Context, req BookingRequest) (Booking, error) {
	var bk Booking

	err := withTxRetry(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var (
			hotelID  string
			quantity int
			price    int
		)
		err := tx.QueryRow(ctx, `
			SELECT hotel_id, quantity, price
			FROM rooms WHERE id=$1
			FOR UPDATE`, req.RoomID).Scan(&hotelID, &quantity, &price)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock room: %w", err)
		}

		var booked int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*)
			FROM bookings
			WHERE room_id=$1 AND check_in < $3 AND check_out > $2`,
			req.RoomID, req.CheckIn, req.CheckOut).Scan(&booked)
		if err != nil {
			return fmt.Errorf("count overlapping bookings: %w", err)
		}
		if booked >= quantity {
			return ErrNoVacancy
		}

		bk = Booking{
			ID:        uuid.NewString(),
			RoomID:    req.RoomID,
			HotelID:   hotelID,
			UserID:    req.UserID,
			CheckIn:   req.CheckIn,
			CheckOut:  req.CheckOut,
			Price:     price,
			CreatedAt: time.Now().UTC(),
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO bookings (id, room_id, hotel_id, user_id, check_in, check_out, price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			bk.ID, bk.RoomID, bk.HotelID, bk.UserID, bk.CheckIn, bk.CheckOut, bk.Price, bk.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return bk, nil
}

// DeleteBooking cancels a booking and returns the deleted row. Freeing a unit
// can only increase availability, so no re-check is needed.
func (r *PostgresRepository) DeleteBooking(ctx context.Context, bookingID string) (Booking, error) {
	var bk Booking

	err := withTxRetry(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			DELETE FROM bookings WHERE id=$1
			RETURNING id, room_id, hotel_id, user_id, check_in, check_out, price, created_at`, bookingID)
		err := row.Scan(&bk.ID, &bk.RoomID, &bk.HotelID, &bk.UserID, &bk.CheckIn, &bk.CheckOut, &bk.Price, &bk.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("delete booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return Booking{}, err
	}
	return bk, nil
}

func (r *PostgresRepository) Bookings(ctx context.Context) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_id, hotel_id, user_id, check_in, check_out, price, created_at
		FROM bookings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	return scanBookings(rows)
}

func (r *PostgresRepository) BookingsByUser(ctx context.Context, userID string) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_id, hotel_id, user_id, check_in, check_out, price, created_at
		FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	return scanBookings(rows)
}

// KnownIDs loads the reference keys bulk candidates are validated against.
func (r *PostgresRepository) KnownIDs(ctx context.Context) (KnownIDs, error) {
	known := KnownIDs{
		Users:  map[string]struct{}{},
		Hotels: map[string]struct{}{},
		Rooms:  map[string]struct{}{},
	}

	for _, t := range []struct {
		query string
		into  map[string]struct{}
	}{
		{`SELECT id FROM users`, known.Users},
		{`SELECT id FROM hotels`, known.Hotels},
		{`SELECT id FROM rooms`, known.Rooms},
	} {
		rows, err := r.pool.Query(ctx, t.query)
		if err != nil {
			return KnownIDs{}, fmt.Errorf("select ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return KnownIDs{}, fmt.Errorf("scan id: %w", err)
			}
			t.into[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return KnownIDs{}, fmt.Errorf("rows: %w", err)
		}
	}
	return known, nil
}

// InsertBulk writes candidates in one batch without re-running the overlap
// check per item; the caller vouches for availability on this path.
func (r *PostgresRepository) InsertBulk(ctx context.Context, candidates []BulkCandidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	err := withTxRetry(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		now := time.Now().UTC()
		for _, c := range candidates {
			batch.Queue(`
				INSERT INTO bookings (id, room_id, hotel_id, user_id, check_in, check_out, price, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				uuid.NewString(), c.RoomID, c.HotelID, c.UserID, c.CheckIn, c.CheckOut, c.Price, now)
		}

		br := tx.SendBatch(ctx, batch)
		for range candidates {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert booking batch: %w", err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}
	return len(candidates), nil
}

func scanRooms(rows pgx.Rows) ([]Room, error) {
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.HotelID, &room.Title, &room.Description, &room.Price, &room.Quantity); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return rooms, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()

	bookings := []Booking{}
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.RoomID, &b.HotelID, &b.UserID, &b.CheckIn, &b.CheckOut, &b.Price, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return bookings, nil
}
