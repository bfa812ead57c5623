package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SamenB/Hotel-Booking-API/internal/booking"
)

const dateLayout = "2006-01-02"

// BookingService is the surface of booking.Service the handlers use.
type BookingService interface {
	AvailableRoomIDs(ctx context.Context, hotelID string, from, to time.Time) ([]string, error)
	AvailableRooms(ctx context.Context, hotelID string, from, to time.Time) ([]booking.Room, error)
	Hotels(ctx context.Context, q booking.HotelQuery) ([]booking.Hotel, error)
	RoomCatalog(ctx context.Context, hotelID string) ([]booking.Room, error)
	CreateBooking(ctx context.Context, req booking.BookingRequest) (booking.Booking, error)
	CreateBookingsBulk(ctx context.Context, candidates []booking.BulkCandidate) (booking.BulkResult, error)
	DeleteBooking(ctx context.Context, bookingID string) error
	Bookings(ctx context.Context) ([]booking.Booking, error)
	BookingsByUser(ctx context.Context, userID string) ([]booking.Booking, error)
}

type Handler struct {
	svc BookingService
}

func NewHandler(svc BookingService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GetAvailability returns the ids of rooms with at least one free unit over
// [dateFrom, dateTo), optionally scoped by hotelId.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	hotelID := r.URL.Query().Get("hotelId")

	ids, err := h.svc.AvailableRoomIDs(r.Context(), hotelID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) GetHotels(w http.ResponseWriter, r *http.Request) {
	q := booking.HotelQuery{
		Available: true,
		Title:     r.URL.Query().Get("title"),
		Location:  r.URL.Query().Get("location"),
	}
	if v := r.URL.Query().Get("available"); v == "false" || v == "0" {
		q.Available = false
	}
	if q.Available {
		from, to, err := parseDateRange(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		q.DateFrom, q.DateTo = from, to
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "perPage", 10)
	if page < 1 {
		page = 1
	}
	q.Limit = perPage
	q.Offset = (page - 1) * perPage

	hotels, err := h.svc.Hotels(r.Context(), q)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hotels)
}

// GetHotelRooms lists a hotel's rooms. With dateFrom/dateTo present the list
// is restricted to rooms available for the window; without them the full
// catalog is served (cache-aside).
func (h *Handler) GetHotelRooms(w http.ResponseWriter, r *http.Request) {
	hotelID := chi.URLParam(r, "hotelID")

	if r.URL.Query().Get("dateFrom") == "" && r.URL.Query().Get("dateTo") == "" {
		rooms, err := h.svc.RoomCatalog(r.Context(), hotelID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rooms)
		return
	}

	from, to, err := parseDateRange(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rooms, err := h.svc.AvailableRooms(r.Context(), hotelID, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

type createBookingRequest struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.RoomID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "roomId and userId are required")
		return
	}

	checkIn, err := time.Parse(dateLayout, req.CheckIn)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid checkIn date")
		return
	}
	checkOut, err := time.Parse(dateLayout, req.CheckOut)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid checkOut date")
		return
	}

	bk, err := h.svc.CreateBooking(r.Context(), booking.BookingRequest{
		RoomID:   req.RoomID,
		UserID:   req.UserID,
		CheckIn:  checkIn,
		CheckOut: checkOut,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bk)
}

type bulkCandidateRequest struct {
	RoomID   string `json:"roomId"`
	HotelID  string `json:"hotelId"`
	UserID   string `json:"userId"`
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
	Price    int    `json:"price"`
}

func (h *Handler) CreateBookingsBulk(w http.ResponseWriter, r *http.Request) {
	var reqs []bulkCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	candidates := make([]booking.BulkCandidate, 0, len(reqs))
	for _, req := range reqs {
		checkIn, err := time.Parse(dateLayout, req.CheckIn)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid checkIn date")
			return
		}
		checkOut, err := time.Parse(dateLayout, req.CheckOut)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid checkOut date")
			return
		}
		candidates = append(candidates, booking.BulkCandidate{
			RoomID:   req.RoomID,
			HotelID:  req.HotelID,
			UserID:   req.UserID,
			CheckIn:  checkIn,
			CheckOut: checkOut,
			Price:    req.Price,
		})
	}

	res, err := h.svc.CreateBookingsBulk(r.Context(), candidates)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	if err := h.svc.DeleteBooking(r.Context(), bookingID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) GetBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.Bookings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	bookings, err := h.svc.BookingsByUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func parseDateRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := time.Parse(dateLayout, r.URL.Query().Get("dateFrom"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid dateFrom")
	}
	to, err := time.Parse(dateLayout, r.URL.Query().Get("dateTo"))
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("invalid dateTo")
	}
	return from, to, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// writeServiceError maps the engine's error taxonomy to status codes.
// Anything outside the taxonomy is a storage-side failure.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidDateRange):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, booking.ErrNoVacancy):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
