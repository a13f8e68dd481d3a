package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lawfirm-server/internal/calendar"
	"lawfirm-server/internal/domain"
	"lawfirm-server/internal/events"
	"lawfirm-server/internal/gateway"
	"lawfirm-server/internal/logging"
	"lawfirm-server/internal/models"
)

// OrderGateway opens orders and checks checkout signatures.
type OrderGateway interface {
	CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// MeetingScheduler creates the video meeting for a confirmed appointment.
type MeetingScheduler interface {
	Schedule(ctx context.Context, m calendar.Meeting) (string, error)
}

type OrderInput struct {
	PayFor            models.PayFor
	SlotID            string
	AppointmentTypeID string
	AppointmentID     string
	ServiceID         string
	Agenda            string
	Phone             string
}

// OrderResult carries what the client needs to open the checkout widget.
type OrderResult struct {
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Key           string `json:"key"`
	PaymentID     string `json:"paymentId"`
	AppointmentID string `json:"appointmentId,omitempty"`
}

type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Settlement is the outcome of a verification.
type Settlement struct {
	Success        bool   `json:"success"`
	PaymentID      string `json:"paymentId"`
	AppointmentID  string `json:"appointmentId,omitempty"`
	MeetingLink    string `json:"meetingLink,omitempty"`
	AlreadySettled bool   `json:"alreadySettled,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

type CancelPaymentInput struct {
	OrderID string
	Reason  string
}

const meetingWarning = "payment confirmed but the meeting link could not be created; it will be shared separately"

// PaymentOptions configures a PaymentService.
type PaymentOptions struct {
	Currency        string
	Location        *time.Location
	CalendarTimeout time.Duration
}

// PaymentService reconciles gateway orders with appointments and services.
type PaymentService struct {
	db       *gorm.DB
	booking  *AppointmentFactory
	ledger   *Ledger
	gateway  OrderGateway
	calendar MeetingScheduler
	events   events.Publisher
	opts     PaymentOptions
	now      func() time.Time
	logger   *slog.Logger
}

func NewPaymentService(db *gorm.DB, booking *AppointmentFactory, gw OrderGateway, cal MeetingScheduler, pub events.Publisher, opts PaymentOptions) *PaymentService {
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CalendarTimeout <= 0 {
		opts.CalendarTimeout = 10 * time.Second
	}
	if cal == nil {
		cal = calendar.Disabled{}
	}
	return &PaymentService{
		db:       db,
		booking:  booking,
		ledger:   booking.ledger,
		gateway:  gw,
		calendar: cal,
		events:   pub,
		opts:     opts,
		now:      time.Now,
		logger:   logging.For("services.payments"),
	}
}

type paymentEvent struct {
	PaymentID     string               `json:"paymentId"`
	OrderID       string               `json:"orderId,omitempty"`
	UserID        string               `json:"userId"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Status        models.PaymentStatus `json:"status"`
	AppointmentID string               `json:"appointmentId,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

func newPaymentEvent(p *models.Payment) paymentEvent {
	evt := paymentEvent{
		PaymentID: p.ID,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    p.Status,
	}
	if p.OrderID != nil {
		evt.OrderID = *p.OrderID
	}
	if p.AppointmentID != nil {
		evt.AppointmentID = *p.AppointmentID
	}
	return evt
}

// CreateOrder records a PENDING payment (booking the slot first when paying
// for a new appointment), then opens a gateway order for it. The gateway is
// called outside the transaction; on failure the hold is undone.
func (s *PaymentService) CreateOrder(ctx context.Context, actor domain.Actor, in OrderInput) (*OrderResult, error) {
	ctx, span := startSpan(ctx, "payments.create_order", attribute.String("payment.for", string(in.PayFor)))
	res, err := s.createOrder(ctx, actor, in)
	endSpan(span, err)
	return res, err
}

func (s *PaymentService) createOrder(ctx context.Context, actor domain.Actor, in OrderInput) (*OrderResult, error) {
	var (
		payment   models.Payment
		appt      *models.Appointment
		newlyHeld bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var price int64
		payment = models.Payment{
			Currency: s.opts.Currency,
			Status:   models.PaymentPending,
			PayFor:   in.PayFor,
			UserID:   actor.UserID,
		}

		switch in.PayFor {
		case models.PayForAppointment:
			var err error
			if strings.TrimSpace(in.AppointmentID) != "" {
				appt, err = s.payableAppointment(tx, actor, strings.TrimSpace(in.AppointmentID))
			} else {
				appt, err = s.booking.bookInTx(tx, actor, BookInput{
					SlotID:            in.SlotID,
					AppointmentTypeID: in.AppointmentTypeID,
					Agenda:            in.Agenda,
					Phone:             in.Phone,
				})
				newlyHeld = err == nil
			}
			if err != nil {
				return err
			}
			price = appt.AppointmentType.Price
			payment.AppointmentID = &appt.ID
			payment.UserID = appt.UserID

		case models.PayForService:
			serviceID := strings.TrimSpace(in.ServiceID)
			if serviceID == "" {
				return domain.ValidationError{Field: "serviceId", Msg: "is required"}
			}
			var svc models.Service
			if err := tx.First(&svc, "id = ?", serviceID).Error; err != nil {
				return loadErr(err, "service")
			}
			price = svc.Price
			payment.ServiceID = &svc.ID

		default:
			return domain.ValidationError{Field: "paymentFor", Msg: "must be APPOINTMENT or SERVICE"}
		}

		if price <= 0 {
			return domain.ErrInvalidAmount
		}
		payment.Amount = price * 100
		return dbErr(tx.Create(&payment).Error, "create payment")
	})
	if err != nil {
		return nil, err
	}

	order, gwErr := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   payment.Amount,
		Currency: payment.Currency,
		Receipt:  payment.ID,
		Notes:    map[string]string{"paymentId": payment.ID, "payFor": string(payment.PayFor)},
	})
	if gwErr != nil {
		s.logger.ErrorContext(ctx, "gateway order creation failed",
			logAttrs(ctx, "create_order", "failure", "payment_id", payment.ID, "error", gwErr)...)
		if err := s.failPayment(ctx, payment.ID, newlyHeld, PaymentFailed{Reason: gwErr.Error()}); err != nil {
			s.logger.ErrorContext(ctx, "failed to undo hold after gateway error",
				logAttrs(ctx, "create_order", "failure", "payment_id", payment.ID, "error", err)...)
		}
		return nil, domain.ExternalServiceError{Service: "payment gateway", Err: gwErr}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
			Update("order_id", order.ID)
		if res.Error != nil {
			return dbErr(res.Error, "store order id")
		}
		if res.RowsAffected != 1 {
			return domain.ErrPaymentNotPending
		}
		return s.ledger.Append(tx, payment.ID, OrderCreated{
			OrderID:  order.ID,
			Amount:   payment.Amount,
			Currency: payment.Currency,
			Receipt:  payment.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	payment.OrderID = &order.ID

	s.logger.InfoContext(ctx, "order created",
		logAttrs(ctx, "create_order", "success",
			"payment_id", payment.ID, "order_id", order.ID, "amount", payment.Amount)...)
	publish(ctx, s.events, s.logger, events.New(events.OrderCreated, payment.ID, newPaymentEvent(&payment)))

	result := &OrderResult{
		OrderID:   order.ID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Key:       s.gateway.KeyID(),
		PaymentID: payment.ID,
	}
	if appt != nil {
		result.AppointmentID = appt.ID
	}
	return result, nil
}

// payableAppointment loads an existing PENDING appointment that has no live payment.
func (s *PaymentService) payableAppointment(tx *gorm.DB, actor domain.Actor, appointmentID string) (*models.Appointment, error) {
	var appt models.Appointment
	if err := lockAppointment(tx, appointmentID, &appt); err != nil {
		return nil, err
	}
	if err := actor.RequireOwner(appt.UserID); err != nil {
		return nil, err
	}
	if appt.Status != models.StatusPending {
		return nil, domain.ConflictError{Resource: "appointment", Msg: "only pending appointments can be paid for"}
	}

	var live int64
	err := tx.Model(&models.Payment{}).
		Where("appointment_id = ? AND status IN ?", appt.ID, []models.PaymentStatus{models.PaymentPending, models.PaymentSuccess}).
		Count(&live).Error
	if err != nil {
		return nil, dbErr(err, "check existing payments")
	}
	if live > 0 {
		return nil, domain.ConflictError{Resource: "payment", Msg: "appointment already has an open or settled payment"}
	}

	var apptType models.AppointmentType
	if err := tx.First(&apptType, "id = ?", appt.AppointmentTypeID).Error; err != nil {
		return nil, loadErr(err, "appointment type")
	}
	appt.AppointmentType = &apptType
	return &appt, nil
}

// failPayment moves a PENDING payment to FAILED with the given ledger event.
// When cancelAppointment is set the linked appointment is cancelled and its
// slot released.
func (s *PaymentService) failPayment(ctx context.Context, paymentID string, cancelAppointment bool, ev LedgerEvent) error {
	var payment models.Payment
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&payment, "id = ?", paymentID).Error; err != nil {
			return loadErr(err, "payment")
		}
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
			Update("status", models.PaymentFailed)
		if res.Error != nil {
			return dbErr(res.Error, "fail payment")
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		payment.Status = models.PaymentFailed
		if err := s.ledger.Append(tx, payment.ID, ev); err != nil {
			return err
		}
		if !cancelAppointment || payment.AppointmentID == nil {
			return nil
		}
		var appt models.Appointment
		if err := lockAppointment(tx, *payment.AppointmentID, &appt); err != nil {
			return err
		}
		if appt.Status == models.StatusCancelled {
			return nil
		}
		return s.booking.cancelInTx(tx, &appt, "payment failed")
	})
	if err != nil {
		return err
	}
	if changed {
		publish(ctx, s.events, s.logger, events.New(events.PaymentFailed, payment.ID, newPaymentEvent(&payment)))
	}
	return nil
}

// VerifyPayment settles a PENDING payment after checking the checkout
// signature. A replay of the same gateway payment is acknowledged without
// touching state. Meeting creation happens after commit; its failure only
// produces a warning.
func (s *PaymentService) VerifyPayment(ctx context.Context, in VerifyInput) (*Settlement, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	switch {
	case in.OrderID == "":
		return nil, domain.ValidationError{Field: "orderId", Msg: "is required"}
	case in.PaymentID == "":
		return nil, domain.ValidationError{Field: "paymentId", Msg: "is required"}
	case in.Signature == "":
		return nil, domain.ValidationError{Field: "signature", Msg: "is required"}
	}

	ctx, span := startSpan(ctx, "payments.verify", attribute.String("order.id", in.OrderID))
	settlement, err := s.verify(ctx, in)
	endSpan(span, err)
	return settlement, err
}

func (s *PaymentService) verify(ctx context.Context, in VerifyInput) (*Settlement, error) {
	if !s.gateway.VerifySignature(in.OrderID, in.PaymentID, in.Signature) {
		s.logger.WarnContext(ctx, "payment signature mismatch",
			logAttrs(ctx, "verify", "rejected", "order_id", in.OrderID)...)
		return nil, domain.ErrInvalidSignature
	}

	var (
		payment models.Payment
		appt    *models.Appointment
		replay  bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", in.OrderID).
			First(&payment).Error
		if err != nil {
			return loadErr(err, "payment")
		}

		switch payment.Status {
		case models.PaymentPending:
		case models.PaymentSuccess:
			if payment.GatewayPaymentID == in.PaymentID {
				replay = true
				return nil
			}
			return domain.ConflictError{Resource: "payment", Msg: "order was settled by a different payment"}
		default:
			return domain.ErrPaymentNotPending
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
			Updates(map[string]interface{}{
				"status":             models.PaymentSuccess,
				"gateway_payment_id": in.PaymentID,
				"signature":          in.Signature,
			})
		if res.Error != nil {
			return dbErr(res.Error, "settle payment")
		}
		if res.RowsAffected != 1 {
			return domain.ErrPaymentNotPending
		}
		payment.Status = models.PaymentSuccess
		payment.GatewayPaymentID = in.PaymentID

		if err := s.ledger.Append(tx, payment.ID, PaymentVerified{OrderID: in.OrderID, GatewayPaymentID: in.PaymentID}); err != nil {
			return err
		}

		if payment.PayFor != models.PayForAppointment || payment.AppointmentID == nil {
			return nil
		}
		confirmed, err := confirmForPayment(tx, *payment.AppointmentID)
		if err != nil {
			return err
		}
		appt = confirmed
		return nil
	})
	if err != nil {
		s.logger.InfoContext(ctx, "payment verification failed",
			logAttrs(ctx, "verify", "failure", "order_id", in.OrderID, "error", err)...)
		return nil, err
	}

	settlement := &Settlement{Success: true, PaymentID: payment.ID}
	if payment.AppointmentID != nil {
		settlement.AppointmentID = *payment.AppointmentID
	}
	if replay {
		settlement.AlreadySettled = true
		settlement.MeetingLink = s.meetingLinkFor(ctx, payment.AppointmentID)
		return settlement, nil
	}

	s.logger.InfoContext(ctx, "payment verified",
		logAttrs(ctx, "verify", "success", "payment_id", payment.ID, "order_id", in.OrderID)...)

	if appt != nil {
		settlement.MeetingLink, settlement.Warning = s.scheduleMeeting(ctx, appt)
	}
	publish(ctx, s.events, s.logger, events.New(events.PaymentVerified, payment.ID, newPaymentEvent(&payment)))
	return settlement, nil
}

// confirmForPayment moves the paid appointment to CONFIRMED. An appointment
// an admin already confirmed is accepted as is.
func confirmForPayment(tx *gorm.DB, appointmentID string) (*models.Appointment, error) {
	res := tx.Model(&models.Appointment{}).
		Where("id = ? AND status = ?", appointmentID, models.StatusPending).
		Update("status", models.StatusConfirmed)
	if res.Error != nil {
		return nil, dbErr(res.Error, "confirm appointment")
	}

	var appt models.Appointment
	err := tx.Preload("Slot").Preload("AppointmentType").First(&appt, "id = ?", appointmentID).Error
	if err != nil {
		return nil, loadErr(err, "appointment")
	}
	if appt.Status != models.StatusConfirmed {
		return nil, domain.ConflictError{Resource: "appointment", Msg: "appointment is no longer pending"}
	}
	return &appt, nil
}

func (s *PaymentService) scheduleMeeting(ctx context.Context, appt *models.Appointment) (string, string) {
	fail := func(err error) (string, string) {
		level := slog.LevelWarn
		if errors.Is(err, calendar.ErrDisabled) {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "meeting not created",
			logAttrs(ctx, "schedule_meeting", "failure", "appointment_id", appt.ID, "error", err)...)
		return "", meetingWarning
	}

	if appt.Slot == nil {
		return fail(fmt.Errorf("appointment %s has no slot loaded", appt.ID))
	}
	start, end, err := appt.Slot.Window(s.opts.Location)
	if err != nil {
		return fail(err)
	}

	title := "Consultation"
	if appt.AppointmentType != nil && appt.AppointmentType.Title != "" {
		title = appt.AppointmentType.Title
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.CalendarTimeout)
	defer cancel()
	link, err := s.calendar.Schedule(cctx, calendar.Meeting{
		AppointmentID: appt.ID,
		Summary:       fmt.Sprintf("%s with %s", title, appt.Name),
		Description:   appt.Agenda,
		Start:         start,
		End:           end,
		Attendees:     []string{appt.Email},
	})
	if err != nil {
		return fail(err)
	}

	err = s.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ?", appt.ID).
		Update("meeting_link", link).Error
	if err != nil {
		s.logger.WarnContext(ctx, "failed to store meeting link",
			logAttrs(ctx, "schedule_meeting", "failure", "appointment_id", appt.ID, "error", err)...)
	}
	appt.MeetingLink = link
	return link, ""
}

func (s *PaymentService) meetingLinkFor(ctx context.Context, appointmentID *string) string {
	if appointmentID == nil {
		return ""
	}
	var appt models.Appointment
	if err := s.db.WithContext(ctx).Select("meeting_link").First(&appt, "id = ?", *appointmentID).Error; err != nil {
		return ""
	}
	return appt.MeetingLink
}

// CancelPayment abandons a PENDING payment and releases whatever it held.
func (s *PaymentService) CancelPayment(ctx context.Context, actor domain.Actor, in CancelPaymentInput) (*models.Payment, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	if in.OrderID == "" {
		return nil, domain.ValidationError{Field: "orderId", Msg: "is required"}
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "cancelled by user"
	}

	ctx, span := startSpan(ctx, "payments.cancel", attribute.String("order.id", in.OrderID))
	var payment models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ?", in.OrderID).
			First(&payment).Error
		if err != nil {
			return loadErr(err, "payment")
		}
		if err := actor.RequireOwner(payment.UserID); err != nil {
			return err
		}
		if payment.Status != models.PaymentPending {
			return domain.ErrPaymentNotPending
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
			Update("status", models.PaymentCancelled)
		if res.Error != nil {
			return dbErr(res.Error, "cancel payment")
		}
		if res.RowsAffected != 1 {
			return domain.ErrPaymentNotPending
		}
		payment.Status = models.PaymentCancelled
		if err := s.ledger.Append(tx, payment.ID, PaymentCancelled{Reason: reason}); err != nil {
			return err
		}

		if payment.AppointmentID == nil {
			return nil
		}
		var appt models.Appointment
		if err := lockAppointment(tx, *payment.AppointmentID, &appt); err != nil {
			return err
		}
		if appt.Status == models.StatusCancelled {
			return nil
		}
		return s.booking.cancelInTx(tx, &appt, reason)
	})
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment cancelled",
		logAttrs(ctx, "cancel", "success", "payment_id", payment.ID, "reason", reason)...)
	evt := newPaymentEvent(&payment)
	evt.Reason = reason
	publish(ctx, s.events, s.logger, events.New(events.PaymentCancelled, payment.ID, evt))
	return &payment, nil
}

// GetPayment loads a payment with what it paid for, for its owner or an admin.
func (s *PaymentService) GetPayment(ctx context.Context, actor domain.Actor, paymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Preload("Appointment").
		Preload("Appointment.Slot").
		Preload("Appointment.AppointmentType").
		Preload("Service").
		First(&payment, "id = ?", paymentID).Error
	if err != nil {
		return nil, loadErr(err, "payment")
	}
	if err := actor.RequireOwner(payment.UserID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// History returns the ledger of a payment.
func (s *PaymentService) History(ctx context.Context, paymentID string) ([]LedgerEntry, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", paymentID).Count(&count).Error; err != nil {
		return nil, dbErr(err, "load payment")
	}
	if count == 0 {
		return nil, domain.NotFoundError{Resource: "payment"}
	}
	return s.ledger.History(ctx, paymentID)
}
