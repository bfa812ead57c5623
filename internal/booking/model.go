package booking

import "time"

// Room is one bookable room type of a hotel. Quantity is the number of
// identical interchangeable units; it is fixed while the hotel operates.
type Room struct {
	ID          string `json:"id"`
	HotelID     string `json:"hotelId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Price       int    `json:"price"`
	Quantity    int    `json:"quantity"`
}

type Hotel struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Location string `json:"location"`
}

// Booking reserves exactly one unit of a room for the half-open interval
// [CheckIn, CheckOut). Price is captured from the room at admission time and
// never follows later price changes.
type Booking struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	HotelID   string    `json:"hotelId"`
	UserID    string    `json:"userId"`
	CheckIn   time.Time `json:"checkIn"`
	CheckOut  time.Time `json:"checkOut"`
	Price     int       `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

// TotalPrice is the nightly price times the number of nights.
func (b Booking) TotalPrice() int {
	nights := int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
	return b.Price * nights
}

// BookingRequest is a single admission attempt. Price and hotel are resolved
// from the room inside the admission transaction.
type BookingRequest struct {
	RoomID   string
	UserID   string
	CheckIn  time.Time
	CheckOut time.Time
}

// BulkCandidate is one row of a bulk insert. The bulk path trusts the caller
// for availability; only referential integrity is checked.
type BulkCandidate struct {
	RoomID   string    `json:"roomId"`
	HotelID  string    `json:"hotelId"`
	UserID   string    `json:"userId"`
	CheckIn  time.Time `json:"checkIn"`
	CheckOut time.Time `json:"checkOut"`
	Price    int       `json:"price"`
}

type BulkResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// HotelQuery filters the hotel listing. When Available is true the listing is
// restricted to hotels with at least one free room over [DateFrom, DateTo).
type HotelQuery struct {
	DateFrom  time.Time
	DateTo    time.Time
	Available bool
	Title     string
	Location  string
	Limit     int
	Offset    int
}

// KnownIDs holds the reference keys used to validate bulk candidates.
type KnownIDs struct {
	Users  map[string]struct{}
	Hotels map[string]struct{}
	Rooms  map[string]struct{}
}
