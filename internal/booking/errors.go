package booking

import "errors"

var (
	// ErrNotFound covers missing rooms, hotels and bookings.
	ErrNotFound = errors.New("not found")

	// ErrNoVacancy means every unit of the room is taken for some night of
	// the requested interval. A business rejection, not a storage failure.
	ErrNoVacancy = errors.New("all rooms are booked")

	// ErrInvalidDateRange is returned before any storage access when
	// checkIn is not strictly before checkOut.
	ErrInvalidDateRange = errors.New("check-in date must be before check-out date")

	// ErrStorageUnavailable is surfaced when a transaction keeps hitting
	// transient conflicts after all retries, or the store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
