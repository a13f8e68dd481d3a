package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"lawfirm-server/internal/events"
	"lawfirm-server/internal/models"
)

const noLivePayment = "NOT EXISTS (SELECT 1 FROM payments WHERE payments.appointment_id = appointments.id AND payments.status IN (?, ?))"

// SweepStaleHolds releases slots held longer than olderThan without payment.
// Appointment payments still PENDING past the cutoff are failed and their
// appointments cancelled; PENDING appointments with no open or settled
// payment are cancelled directly. It returns the number of holds released.
func (s *PaymentService) SweepStaleHolds(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("hold ttl must be positive, got %s", olderThan)
	}
	ctx, span := startSpan(ctx, "payments.sweep_holds")
	defer span.End()

	now := s.now().UTC()
	cutoff := now.Add(-olderThan)

	var stale []models.Payment
	err := s.db.WithContext(ctx).
		Where("status = ? AND pay_for = ? AND created_at < ?", models.PaymentPending, models.PayForAppointment, cutoff).
		Order("created_at asc").
		Find(&stale).Error
	if err != nil {
		return 0, dbErr(err, "load stale holds")
	}

	expired := 0
	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		ev := HoldExpired{HeldSince: p.CreatedAt.UTC(), ExpiredAt: now}
		if err := s.failPayment(ctx, p.ID, true, ev); err != nil {
			s.logger.ErrorContext(ctx, "failed to expire hold",
				logAttrs(ctx, "sweep_holds", "failure", "payment_id", p.ID, "error", err)...)
			continue
		}
		expired++
	}

	// Bookings made without an order never get a payment row.
	var unpaid []models.Appointment
	err = s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.StatusPending, cutoff).
		Where(noLivePayment, models.PaymentPending, models.PaymentSuccess).
		Order("updated_at asc").
		Find(&unpaid).Error
	if err != nil {
		return expired, dbErr(err, "load unpaid appointments")
	}
	for _, a := range unpaid {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		released, err := s.expireUnpaidAppointment(ctx, a.ID, cutoff)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire unpaid appointment",
				logAttrs(ctx, "sweep_holds", "failure", "appointment_id", a.ID, "error", err)...)
			continue
		}
		if released {
			expired++
		}
	}

	s.logger.InfoContext(ctx, "stale holds swept",
		logAttrs(ctx, "sweep_holds", "success",
			"candidates", len(stale)+len(unpaid), "expired", expired)...)
	return expired, nil
}

// expireUnpaidAppointment re-checks the appointment under lock and cancels it
// if it is still an unpaid PENDING hold from before cutoff.
func (s *PaymentService) expireUnpaidAppointment(ctx context.Context, appointmentID string, cutoff time.Time) (bool, error) {
	var (
		appt     models.Appointment
		released bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAppointment(tx, appointmentID, &appt); err != nil {
			return err
		}
		if appt.Status != models.StatusPending || !appt.UpdatedAt.Before(cutoff) {
			return nil
		}
		var live int64
		err := tx.Model(&models.Payment{}).
			Where("appointment_id = ? AND status IN ?", appt.ID,
				[]models.PaymentStatus{models.PaymentPending, models.PaymentSuccess}).
			Count(&live).Error
		if err != nil {
			return dbErr(err, "check live payments")
		}
		if live > 0 {
			return nil
		}
		released = true
		return s.booking.cancelInTx(tx, &appt, "hold expired")
	})
	if err != nil || !released {
		return false, err
	}
	publish(ctx, s.events, s.logger, events.New(events.AppointmentCancelled, appt.ID, newAppointmentEvent(&appt)))
	return true, nil
}
