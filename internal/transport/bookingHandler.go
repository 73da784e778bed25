package transport

import (
	"net/http"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/internal/service"
	"github.com/gin-gonic/gin"
)

const defaultIdempotencyHeader = "Idempotency-Key"

type BookingHandler struct {
	bookingService    service.BookingService
	idempotencyHeader string
}

func NewBookingHandler(bookingService service.BookingService, idempotencyHeader string) *BookingHandler {
	if idempotencyHeader == "" {
		idempotencyHeader = defaultIdempotencyHeader
	}
	return &BookingHandler{bookingService: bookingService, idempotencyHeader: idempotencyHeader}
}

// BookingResponse представляет ответ на создание бронирования
type BookingResponse struct {
	Message string                `json:"message"`
	Booking *entity.Booking       `json:"booking"`
	Price   entity.PriceBreakdown `json:"price"`
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req service.CreateBookingRequest
	if !bindJSON(c, &req) {
		return
	}
	req.IdempotencyKey = c.GetHeader(h.idempotencyHeader)

	result, err := h.bookingService.CreateBooking(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, BookingResponse{
		Message: "Booking confirmed!",
		Booking: result.Booking,
		Price:   result.Booking.Price(),
	})
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.bookingService.GetBookingByRef(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}
