package transport

import (
	"net/http"

	"github.com/ds124wfegd/bookit/internal/entity"
	"github.com/ds124wfegd/bookit/internal/service"
	"github.com/gin-gonic/gin"
)

type PromoHandler struct {
	promoService   service.PromoService
	bookingService service.BookingService
}

func NewPromoHandler(promoService service.PromoService, bookingService service.BookingService) *PromoHandler {
	return &PromoHandler{promoService: promoService, bookingService: bookingService}
}

type ValidatePromoRequest struct {
	Code string `json:"code"`
}

type ValidatePromoResponse struct {
	Message string            `json:"message"`
	Promo   *entity.PromoCode `json:"promo"`
}

func (h *PromoHandler) ValidatePromo(c *gin.Context) {
	var req ValidatePromoRequest
	if !bindJSON(c, &req) {
		return
	}

	promo, err := h.promoService.Validate(c.Request.Context(), req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ValidatePromoResponse{Message: "Promo code applied!", Promo: promo})
}

// QuotePrice returns the server side price summary for the checkout page.
func (h *PromoHandler) QuotePrice(c *gin.Context) {
	var req service.QuoteRequest
	if !bindJSON(c, &req) {
		return
	}

	quote, err := h.bookingService.QuotePrice(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}
