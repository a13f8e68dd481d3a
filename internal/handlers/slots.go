package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"lawfirm-server/internal/services"
	"lawfirm-server/internal/utils"
)

// SlotHandler exposes slot listing and admin slot generation.
type SlotHandler struct {
	Slots *services.SlotStore
}

func NewSlotHandler(slots *services.SlotStore) *SlotHandler {
	return &SlotHandler{Slots: slots}
}

// GetSlots lists slots. Query: show=all|booked|available, when=upcoming|past|all,
// date=YYYY-MM-DD, page, limit.
func (h *SlotHandler) GetSlots(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageLimit)))

	result, err := h.Slots.ListSlots(c.Request.Context(), services.SlotFilter{
		Show:  c.Query("show"),
		When:  c.Query("when"),
		Date:  c.Query("date"),
		Page:  page,
		Limit: limit,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Slots fetched successfully", result)
}

// CreateSlotsRequest generates slots for every date in [startDate, endDate].
type CreateSlotsRequest struct {
	StartDate string   `json:"startDate" binding:"required"`
	EndDate   string   `json:"endDate" binding:"required"`
	TimeSlots []string `json:"timeSlots" binding:"required,min=1"`
}

func (h *SlotHandler) CreateSlots(c *gin.Context) {
	var req CreateSlotsRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	created, err := h.Slots.CreateSlots(c.Request.Context(), services.CreateSlotsInput{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		TimeSlots: req.TimeSlots,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Slots created successfully", gin.H{"created": created})
}
