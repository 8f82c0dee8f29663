// README: Request handlers; intake, staff lifecycle updates and customer tracking.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"repairtrack/internal/modules/request"
	"repairtrack/internal/types"
)

type RequestService interface {
	Create(ctx context.Context, cmd request.CreateCommand) (*request.ServiceRequest, error)
	Get(ctx context.Context, id types.ID) (*request.ServiceRequest, error)
	Timeline(ctx context.Context, id types.ID) ([]request.TimelineEvent, error)
	Update(ctx context.Context, cmd request.UpdateCommand) (*request.ServiceRequest, error)
	TransitionStage(ctx context.Context, cmd request.StageCommand) (*request.ServiceRequest, error)
	ApplyTracking(ctx context.Context, cmd request.TrackingCommand) (*request.ServiceRequest, error)
	SetExpectedDates(ctx context.Context, cmd request.ExpectedDatesCommand) (*request.ServiceRequest, error)
	NextStages(ctx context.Context, id types.ID) ([]request.Stage, error)
	Transitions(ctx context.Context, id types.ID, override bool) (*request.TransitionView, error)
	Track(ctx context.Context, ticket, phone string) (*request.TrackingView, error)
}

type RequestHandler struct {
	requests RequestService
}

func NewRequestHandler(svc RequestService) *RequestHandler {
	return &RequestHandler{requests: svc}
}

type createRequestReq struct {
	CustomerName string              `json:"customerName"`
	Phone        string              `json:"phone"`
	Address      string              `json:"address"`
	Brand        string              `json:"brand"`
	ModelNumber  string              `json:"modelNumber"`
	ScreenSize   string              `json:"screenSize"`
	PrimaryIssue string              `json:"primaryIssue"`
	Description  string              `json:"description"`
	ServiceMode  request.ServiceMode `json:"serviceMode"`
	Intent       request.Intent      `json:"intent"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.requests.Create(c.Request.Context(), request.CreateCommand{
		CustomerName: req.CustomerName,
		Phone:        req.Phone,
		Address:      req.Address,
		Brand:        req.Brand,
		ModelNumber:  req.ModelNumber,
		ScreenSize:   req.ScreenSize,
		PrimaryIssue: req.PrimaryIssue,
		Description:  req.Description,
		ServiceMode:  req.ServiceMode,
		Intent:       req.Intent,
		Actor:        "Customer",
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"id":             r.ID,
		"ticketNumber":   r.TicketNumber,
		"trackingStatus": r.TrackingStatus,
	})
}

func (h *RequestHandler) Get(c *gin.Context) {
	id := types.ID(c.Param("id"))
	r, err := h.requests.Get(c.Request.Context(), id)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	timeline, err := h.requests.Timeline(c.Request.Context(), id)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"request":  toRequestResponse(r),
		"timeline": toTimeline(timeline, true),
	})
}

// Track serves the customer lookup; the phone number on the request must match.
func (h *RequestHandler) Track(c *gin.Context) {
	ticket := strings.ToUpper(strings.TrimSpace(c.Param("ticket")))
	phone := c.Query("phone")
	if ticket == "" || phone == "" {
		writeError(c, http.StatusBadRequest, "ticket and phone are required")
		return
	}
	view, err := h.requests.Track(c.Request.Context(), ticket, phone)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toTrackResponse(view))
}

type updateRequestReq struct {
	Status              *request.Status         `json:"status"`
	Stage               *request.Stage          `json:"stage"`
	TrackingStatus      *request.TrackingStatus `json:"trackingStatus"`
	QuoteAmount         *int64                  `json:"quoteAmount"`
	QuoteNotes          *string                 `json:"quoteNotes"`
	ScheduledPickupDate *time.Time              `json:"scheduledPickupDate"`
	ExpectedVersion     *int                    `json:"expectedVersion"`
	Override            bool                    `json:"override"`
}

func (h *RequestHandler) Update(c *gin.Context) {
	var req updateRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := request.UpdateCommand{
		ID:                  types.ID(c.Param("id")),
		Status:              req.Status,
		Stage:               req.Stage,
		TrackingStatus:      req.TrackingStatus,
		QuoteNotes:          req.QuoteNotes,
		ScheduledPickupDate: req.ScheduledPickupDate,
		ExpectedVersion:     req.ExpectedVersion,
		Actor:               actor(c),
		Override:            req.Override,
	}
	if req.QuoteAmount != nil {
		m := types.NewMoney(*req.QuoteAmount, "")
		cmd.QuoteAmount = &m
	}
	r, err := h.requests.Update(c.Request.Context(), cmd)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRequestResponse(r))
}

type transitionStageReq struct {
	Stage           request.Stage `json:"stage" binding:"required"`
	ExpectedVersion *int          `json:"expectedVersion"`
	Override        bool          `json:"override"`
}

func (h *RequestHandler) TransitionStage(c *gin.Context) {
	var req transitionStageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "stage is required")
		return
	}
	r, err := h.requests.TransitionStage(c.Request.Context(), request.StageCommand{
		ID:              types.ID(c.Param("id")),
		Stage:           req.Stage,
		ExpectedVersion: req.ExpectedVersion,
		Actor:           actor(c),
		Override:        req.Override,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRequestResponse(r))
}

type trackingReq struct {
	TrackingStatus      request.TrackingStatus `json:"trackingStatus" binding:"required"`
	ScheduledPickupDate *time.Time             `json:"scheduledPickupDate"`
	ExpectedVersion     *int                   `json:"expectedVersion"`
	Override            bool                   `json:"override"`
}

func (h *RequestHandler) ApplyTracking(c *gin.Context) {
	var req trackingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "trackingStatus is required")
		return
	}
	r, err := h.requests.ApplyTracking(c.Request.Context(), request.TrackingCommand{
		ID:                  types.ID(c.Param("id")),
		TrackingStatus:      req.TrackingStatus,
		ScheduledPickupDate: req.ScheduledPickupDate,
		ExpectedVersion:     req.ExpectedVersion,
		Actor:               actor(c),
		Override:            req.Override,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRequestResponse(r))
}

type expectedDatesReq struct {
	PickupDate      *time.Time `json:"expectedPickupDate"`
	ReturnDate      *time.Time `json:"expectedReturnDate"`
	ReadyDate       *time.Time `json:"expectedReadyDate"`
	ExpectedVersion *int       `json:"expectedVersion"`
}

func (h *RequestHandler) SetExpectedDates(c *gin.Context) {
	var req expectedDatesReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.requests.SetExpectedDates(c.Request.Context(), request.ExpectedDatesCommand{
		ID:              types.ID(c.Param("id")),
		PickupDate:      req.PickupDate,
		ReturnDate:      req.ReturnDate,
		ReadyDate:       req.ReadyDate,
		ExpectedVersion: req.ExpectedVersion,
		Actor:           actor(c),
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRequestResponse(r))
}

func (h *RequestHandler) NextStages(c *gin.Context) {
	stages, err := h.requests.NextStages(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	if stages == nil {
		stages = []request.Stage{}
	}
	writeJSON(c, http.StatusOK, gin.H{"nextStages": stages})
}

func (h *RequestHandler) Transitions(c *gin.Context) {
	override := c.Query("override") == "true"
	view, err := h.requests.Transitions(c.Request.Context(), types.ID(c.Param("id")), override)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view)
}
