package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"lawfirm-server/internal/domain"
	"lawfirm-server/internal/middleware"
	"lawfirm-server/internal/models"
	"lawfirm-server/internal/receipt"
	"lawfirm-server/internal/services"
	"lawfirm-server/internal/utils"
)

// PaymentHandler handles order creation, verification and cancellation.
type PaymentHandler struct {
	Payments *services.PaymentService
	FirmName string
	Location *time.Location
}

func NewPaymentHandler(payments *services.PaymentService, firmName string, loc *time.Location) *PaymentHandler {
	return &PaymentHandler{Payments: payments, FirmName: firmName, Location: loc}
}

// CreateOrderRequest opens a payment. For APPOINTMENT either appointmentId or
// slotId with appointmentTypeId is required; for SERVICE serviceId is.
type CreateOrderRequest struct {
	PaymentFor        string `json:"paymentFor" binding:"required"`
	SlotID            string `json:"slotId"`
	AppointmentTypeID string `json:"appointmentTypeId"`
	AppointmentID     string `json:"appointmentId"`
	ServiceID         string `json:"serviceId"`
	Agenda            string `json:"agenda" binding:"omitempty,max=2000"`
	Phone             string `json:"phone" binding:"omitempty,max=32"`
}

func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	res, err := h.Payments.CreateOrder(c.Request.Context(), actor, services.OrderInput{
		PayFor:            models.PayFor(strings.ToUpper(strings.TrimSpace(req.PaymentFor))),
		SlotID:            req.SlotID,
		AppointmentTypeID: req.AppointmentTypeID,
		AppointmentID:     req.AppointmentID,
		ServiceID:         req.ServiceID,
		Agenda:            req.Agenda,
		Phone:             req.Phone,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Order created successfully", res)
}

// VerifyPaymentRequest carries the checkout callback: gateway order id,
// gateway payment id and signature.
type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// VerifyPayment is public: the signature is the credential.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	settlement, err := h.Payments.VerifyPayment(c.Request.Context(), services.VerifyInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if errors.Is(err, domain.ErrInvalidSignature) {
		utils.ErrorWithData(c, http.StatusBadRequest, err.Error(), gin.H{"success": false})
		return
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	msg := "Payment verified successfully"
	if settlement.AlreadySettled {
		msg = "Payment already verified"
	}
	utils.Success(c, msg, settlement)
}

type CancelPaymentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Reason  string `json:"reason" binding:"omitempty,max=500"`
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var req CancelPaymentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	payment, err := h.Payments.CancelPayment(c.Request.Context(), actor, services.CancelPaymentInput{
		OrderID: req.OrderID,
		Reason:  req.Reason,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Payment cancelled successfully", payment)
}

// GetReceipt streams a PDF receipt for the caller's payment.
func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	payment, err := h.Payments.GetPayment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if payment.Status != models.PaymentSuccess {
		utils.Conflict(c, "Receipts are only available for successful payments")
		return
	}

	pdf, err := receipt.Render(payment, h.FirmName, h.Location)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, payment.ID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// GetTransactions returns a payment's ledger (admin).
func (h *PaymentHandler) GetTransactions(c *gin.Context) {
	entries, err := h.Payments.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Transactions fetched successfully", entries)
}
