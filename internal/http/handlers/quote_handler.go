// README: Quote handlers; staff pricing and customer accept/decline.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"repairtrack/internal/modules/request"
	"repairtrack/internal/types"
)

type QuoteService interface {
	SendQuote(ctx context.Context, cmd request.SendQuoteCommand) (*request.ServiceRequest, error)
	AcceptQuote(ctx context.Context, cmd request.AcceptQuoteCommand) (*request.ServiceRequest, error)
	DeclineQuote(ctx context.Context, id types.ID) (*request.ServiceRequest, error)
}

type QuoteHandler struct {
	quotes QuoteService
}

func NewQuoteHandler(svc QuoteService) *QuoteHandler {
	return &QuoteHandler{quotes: svc}
}

type priceQuoteReq struct {
	Amount int64  `json:"amount" binding:"required"`
	Notes  string `json:"notes"`
}

func (h *QuoteHandler) Price(c *gin.Context) {
	var req priceQuoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "amount is required")
		return
	}
	r, err := h.quotes.SendQuote(c.Request.Context(), request.SendQuoteCommand{
		ID:     types.ID(c.Param("id")),
		Amount: req.Amount,
		Notes:  req.Notes,
		Actor:  actor(c),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRequestResponse(r))
}

type acceptQuoteReq struct {
	PickupTier          *request.PickupTier `json:"pickupTier"`
	ScheduledPickupDate *time.Time          `json:"scheduledPickupDate"`
}

func (h *QuoteHandler) Accept(c *gin.Context) {
	var req acceptQuoteReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	r, err := h.quotes.AcceptQuote(c.Request.Context(), request.AcceptQuoteCommand{
		ID:                  types.ID(c.Param("id")),
		Tier:                req.PickupTier,
		ScheduledPickupDate: req.ScheduledPickupDate,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ticketNumber": r.TicketNumber,
		"quoteStatus":  r.QuoteStatus,
		"totalAmount":  r.TotalAmount,
	})
}

func (h *QuoteHandler) Decline(c *gin.Context) {
	r, err := h.quotes.DeclineQuote(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ticketNumber": r.TicketNumber,
		"quoteStatus":  r.QuoteStatus,
	})
}
