package handlers

import (
	"github.com/gin-gonic/gin"

	"lawfirm-server/internal/middleware"
	"lawfirm-server/internal/services"
	"lawfirm-server/internal/utils"
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	Booking *services.AppointmentFactory
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(booking *services.AppointmentFactory) *AppointmentHandler {
	return &AppointmentHandler{Booking: booking}
}

// CreateAppointmentRequest represents the request body for booking a slot.
type CreateAppointmentRequest struct {
	SlotID            string `json:"slotId" binding:"required"`
	AppointmentTypeID string `json:"appointmentTypeId" binding:"required"`
	Agenda            string `json:"agenda" binding:"omitempty,max=2000"`
	Phone             string `json:"phone" binding:"omitempty,max=32"`
}

// CreateAppointment books a slot for the logged-in user without payment.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appt, err := h.Booking.BookAppointment(c.Request.Context(), actor, services.BookInput{
		SlotID:            req.SlotID,
		AppointmentTypeID: req.AppointmentTypeID,
		Agenda:            req.Agenda,
		Phone:             req.Phone,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appt)
}

// GetAppointments lists the caller's appointments; admins see all.
func (h *AppointmentHandler) GetAppointments(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	appointments, err := h.Booking.ListAppointments(c.Request.Context(), actor)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	appt, err := h.Booking.GetAppointment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", appt)
}

// CancelAppointmentRequest carries the appointment to cancel in the body.
type CancelAppointmentRequest struct {
	ID string `json:"id" binding:"required"`
}

// CancelAppointment cancels an appointment and frees its slot.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	var req CancelAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	appt, err := h.Booking.CancelAppointment(c.Request.Context(), actor, req.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment cancelled successfully", appt)
}

// RescheduleAppointmentRequest moves an appointment to another slot.
type RescheduleAppointmentRequest struct {
	AppointmentID string `json:"appointmentId" binding:"required"`
	NewSlotID     string `json:"newSlotId"`
}

func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	var req RescheduleAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	appt, err := h.Booking.RescheduleAppointment(c.Request.Context(), actor, req.AppointmentID, req.NewSlotID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment rescheduled successfully", appt)
}

// ConfirmAppointment lets an admin confirm a pending appointment.
func (h *AppointmentHandler) ConfirmAppointment(c *gin.Context) {
	appt, err := h.Booking.ConfirmAppointment(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment confirmed successfully", appt)
}
