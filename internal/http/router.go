package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/availability", h.GetAvailability)

		r.Get("/hotels", h.GetHotels)
		r.Get("/hotels/{hotelID}/rooms", h.GetHotelRooms)

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/", h.GetBookings)
			r.Post("/", h.CreateBooking)
			r.Post("/bulk", h.CreateBookingsBulk)
			r.Get("/user/{userID}", h.GetUserBookings)
			r.Delete("/{bookingID}", h.DeleteBooking)
		})
	})

	return r
}
