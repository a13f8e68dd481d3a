package services

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lawfirm-server/internal/domain"
	"lawfirm-server/internal/events"
	"lawfirm-server/internal/logging"
	"lawfirm-server/internal/models"
)

// BookInput requests an appointment on a free slot for the calling user.
type BookInput struct {
	SlotID            string
	AppointmentTypeID string
	Agenda            string
	Phone             string
}

// AppointmentFactory books, reschedules and cancels appointments. Every
// operation runs in one transaction so the slot flag and the appointment row
// always agree.
type AppointmentFactory struct {
	db     *gorm.DB
	slots  *SlotStore
	ledger *Ledger
	events events.Publisher
	logger *slog.Logger
}

func NewAppointmentFactory(db *gorm.DB, slots *SlotStore, ledger *Ledger, pub events.Publisher) *AppointmentFactory {
	return &AppointmentFactory{
		db:     db,
		slots:  slots,
		ledger: ledger,
		events: pub,
		logger: logging.For("services.booking"),
	}
}

type appointmentEvent struct {
	AppointmentID string                   `json:"appointmentId"`
	UserID        string                   `json:"userId"`
	SlotID        string                   `json:"slotId"`
	Status        models.AppointmentStatus `json:"status"`
	PreviousSlot  string                   `json:"previousSlotId,omitempty"`
}

func newAppointmentEvent(a *models.Appointment) appointmentEvent {
	return appointmentEvent{AppointmentID: a.ID, UserID: a.UserID, SlotID: a.SlotID, Status: a.Status}
}

// BookAppointment creates a PENDING appointment and marks the slot booked.
func (f *AppointmentFactory) BookAppointment(ctx context.Context, actor domain.Actor, in BookInput) (*models.Appointment, error) {
	ctx, span := startSpan(ctx, "booking.book", slotAttr(in.SlotID))
	var appt *models.Appointment
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		appt, err = f.bookInTx(tx, actor, in)
		return err
	})
	endSpan(span, err)
	if err != nil {
		f.logger.InfoContext(ctx, "appointment booking rejected",
			logAttrs(ctx, "book", "failure", "slot_id", in.SlotID, "error", err)...)
		return nil, err
	}

	f.logger.InfoContext(ctx, "appointment booked",
		logAttrs(ctx, "book", "success", "appointment_id", appt.ID, "slot_id", appt.SlotID)...)
	publish(ctx, f.events, f.logger, events.New(events.AppointmentBooked, appt.ID, newAppointmentEvent(appt)))
	return appt, nil
}

// bookInTx is shared with order creation so the appointment, the slot flag
// and the payment row commit together.
func (f *AppointmentFactory) bookInTx(tx *gorm.DB, actor domain.Actor, in BookInput) (*models.Appointment, error) {
	in.SlotID = strings.TrimSpace(in.SlotID)
	in.AppointmentTypeID = strings.TrimSpace(in.AppointmentTypeID)
	if in.SlotID == "" {
		return nil, domain.ValidationError{Field: "slotId", Msg: "is required"}
	}
	if in.AppointmentTypeID == "" {
		return nil, domain.ValidationError{Field: "appointmentTypeId", Msg: "is required"}
	}

	var slot models.Slot
	if err := tx.First(&slot, "id = ?", in.SlotID).Error; err != nil {
		return nil, loadErr(err, "slot")
	}
	if slot.IsBooked {
		return nil, domain.ErrSlotAlreadyBooked
	}

	var user models.User
	if err := tx.First(&user, "id = ?", actor.UserID).Error; err != nil {
		return nil, loadErr(err, "user")
	}

	var apptType models.AppointmentType
	if err := tx.First(&apptType, "id = ?", in.AppointmentTypeID).Error; err != nil {
		return nil, loadErr(err, "appointment type")
	}

	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		phone = user.PhoneNumber
	}
	appt := &models.Appointment{
		Name:              user.FullName(),
		Email:             user.Email,
		Phone:             phone,
		Agenda:            strings.TrimSpace(in.Agenda),
		SlotID:            slot.ID,
		AppointmentTypeID: apptType.ID,
		UserID:            user.ID,
		Status:            models.StatusPending,
	}
	if err := tx.Create(appt).Error; err != nil {
		return nil, dbErr(err, "create appointment")
	}
	if err := f.slots.Reserve(tx, slot.ID); err != nil {
		return nil, err
	}

	slot.IsBooked = true
	appt.Slot = &slot
	appt.AppointmentType = &apptType
	return appt, nil
}

// CancelAppointment soft-cancels the appointment, frees its slot and cancels
// any PENDING payment for it. Cancelling twice is a no-op.
func (f *AppointmentFactory) CancelAppointment(ctx context.Context, actor domain.Actor, appointmentID string) (*models.Appointment, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return nil, domain.ValidationError{Field: "id", Msg: "is required"}
	}

	ctx, span := startSpan(ctx, "booking.cancel", attribute.String("appointment.id", appointmentID))
	var (
		appt    models.Appointment
		changed bool
	)
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAppointment(tx, appointmentID, &appt); err != nil {
			return err
		}
		if err := actor.RequireOwner(appt.UserID); err != nil {
			return err
		}
		if appt.Status == models.StatusCancelled {
			return nil
		}
		changed = true
		return f.cancelInTx(tx, &appt, "appointment cancelled")
	})
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	if changed {
		f.logger.InfoContext(ctx, "appointment cancelled",
			logAttrs(ctx, "cancel", "success", "appointment_id", appt.ID, "slot_id", appt.SlotID)...)
		publish(ctx, f.events, f.logger, events.New(events.AppointmentCancelled, appt.ID, newAppointmentEvent(&appt)))
	}
	return &appt, nil
}

// cancelInTx marks appt CANCELLED, releases its slot and cancels the
// appointment's remaining PENDING payments with a ledger row each.
func (f *AppointmentFactory) cancelInTx(tx *gorm.DB, appt *models.Appointment, reason string) error {
	err := tx.Model(&models.Appointment{}).
		Where("id = ?", appt.ID).
		Update("status", models.StatusCancelled).Error
	if err != nil {
		return dbErr(err, "cancel appointment")
	}
	appt.Status = models.StatusCancelled

	if err := f.slots.Release(tx, appt.SlotID); err != nil {
		return err
	}

	var pending []models.Payment
	err = tx.Where("appointment_id = ? AND status = ?", appt.ID, models.PaymentPending).Find(&pending).Error
	if err != nil {
		return dbErr(err, "load pending payments")
	}
	for _, p := range pending {
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", p.ID, models.PaymentPending).
			Update("status", models.PaymentCancelled)
		if res.Error != nil {
			return dbErr(res.Error, "cancel payment")
		}
		if res.RowsAffected == 0 {
			continue
		}
		if err := f.ledger.Append(tx, p.ID, PaymentCancelled{Reason: reason}); err != nil {
			return err
		}
	}
	return nil
}

// RescheduleAppointment moves the appointment to newSlotID and resets it to
// PENDING. The new slot is reserved before the old one is released.
func (f *AppointmentFactory) RescheduleAppointment(ctx context.Context, actor domain.Actor, appointmentID, newSlotID string) (*models.Appointment, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	newSlotID = strings.TrimSpace(newSlotID)
	if appointmentID == "" {
		return nil, domain.ValidationError{Field: "appointmentId", Msg: "is required"}
	}
	if newSlotID == "" {
		return nil, domain.ValidationError{Field: "newSlotId", Msg: "nothing to update"}
	}

	ctx, span := startSpan(ctx, "booking.reschedule",
		attribute.String("appointment.id", appointmentID), slotAttr(newSlotID))
	var (
		appt    models.Appointment
		oldSlot string
	)
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAppointment(tx, appointmentID, &appt); err != nil {
			return err
		}
		if err := actor.RequireOwner(appt.UserID); err != nil {
			return err
		}
		if appt.SlotID == newSlotID {
			return domain.ValidationError{Field: "newSlotId", Msg: "nothing to update"}
		}
		if !appt.IsActive() {
			return domain.ConflictError{Resource: "appointment", Msg: "cancelled appointments cannot be rescheduled"}
		}

		if err := f.slots.Reserve(tx, newSlotID); err != nil {
			return err
		}
		if err := f.slots.Release(tx, appt.SlotID); err != nil {
			return err
		}

		oldSlot = appt.SlotID
		err := tx.Model(&models.Appointment{}).
			Where("id = ?", appt.ID).
			Updates(map[string]interface{}{"slot_id": newSlotID, "status": models.StatusPending}).Error
		if err != nil {
			return dbErr(err, "reschedule appointment")
		}
		appt.SlotID = newSlotID
		appt.Status = models.StatusPending

		var slot models.Slot
		if err := tx.First(&slot, "id = ?", newSlotID).Error; err != nil {
			return loadErr(err, "slot")
		}
		appt.Slot = &slot
		return nil
	})
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	f.logger.InfoContext(ctx, "appointment rescheduled",
		logAttrs(ctx, "reschedule", "success",
			"appointment_id", appt.ID, "old_slot_id", oldSlot, "new_slot_id", newSlotID)...)
	evt := newAppointmentEvent(&appt)
	evt.PreviousSlot = oldSlot
	publish(ctx, f.events, f.logger, events.New(events.AppointmentRescheduled, appt.ID, evt))
	return &appt, nil
}

// ConfirmAppointment lets an admin confirm a PENDING appointment without a
// verified payment, e.g. after a reschedule of a paid appointment.
func (f *AppointmentFactory) ConfirmAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	var appt models.Appointment
	err := f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAppointment(tx, appointmentID, &appt); err != nil {
			return err
		}
		if appt.Status != models.StatusPending {
			return domain.ConflictError{Resource: "appointment", Msg: "only pending appointments can be confirmed"}
		}
		res := tx.Model(&models.Appointment{}).
			Where("id = ? AND status = ?", appt.ID, models.StatusPending).
			Update("status", models.StatusConfirmed)
		if res.Error != nil {
			return dbErr(res.Error, "confirm appointment")
		}
		if res.RowsAffected != 1 {
			return domain.ConflictError{Resource: "appointment", Msg: "only pending appointments can be confirmed"}
		}
		appt.Status = models.StatusConfirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, f.events, f.logger, events.New(events.AppointmentConfirmed, appt.ID, newAppointmentEvent(&appt)))
	return &appt, nil
}

// ListAppointments returns the caller's appointments, or all of them for admins.
func (f *AppointmentFactory) ListAppointments(ctx context.Context, actor domain.Actor) ([]models.Appointment, error) {
	q := f.db.WithContext(ctx).
		Preload("Slot").
		Preload("AppointmentType").
		Order("created_at desc")
	if !actor.IsAdmin() {
		q = q.Where("user_id = ?", actor.UserID)
	}
	appointments := []models.Appointment{}
	if err := q.Find(&appointments).Error; err != nil {
		return nil, dbErr(err, "list appointments")
	}
	return appointments, nil
}

func (f *AppointmentFactory) GetAppointment(ctx context.Context, actor domain.Actor, appointmentID string) (*models.Appointment, error) {
	var appt models.Appointment
	err := f.db.WithContext(ctx).
		Preload("Slot").
		Preload("AppointmentType").
		First(&appt, "id = ?", appointmentID).Error
	if err != nil {
		return nil, loadErr(err, "appointment")
	}
	if err := actor.RequireOwner(appt.UserID); err != nil {
		return nil, err
	}
	return &appt, nil
}

func lockAppointment(tx *gorm.DB, id string, dest *models.Appointment) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(dest, "id = ?", id).Error
	if err != nil {
		return loadErr(err, "appointment")
	}
	return nil
}
