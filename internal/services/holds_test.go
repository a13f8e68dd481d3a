package services

import (
	"context"
	"testing"
	"time"

	"lawfirm-server/internal/events"
	"lawfirm-server/internal/models"
	"lawfirm-server/internal/testutil"
)

func TestSweepStaleHoldsExpiresOnlyOldPendingPayments(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	stale := testutil.CreateSlot(t, fx.db, "2025-01-10", "10:00-10:30")
	settled := testutil.CreateSlot(t, fx.db, "2025-01-10", "10:30-11:00")

	staleOrder := fx.orderFor(t, fx.userA, stale)
	settledOrder := fx.orderFor(t, fx.userB, settled)
	if _, err := fx.payments.VerifyPayment(ctx, verifyInput(settledOrder.OrderID, "pay_1")); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	// Nothing is old enough yet.
	n, err := fx.payments.SweepStaleHolds(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("expected nothing swept, got %d %v", n, err)
	}

	fx.payments.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = fx.payments.SweepStaleHolds(ctx, time.Hour)
	if err != nil {
		t.Fatalf("SweepStaleHolds returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 hold expired, got %d", n)
	}

	if p := fx.reloadPayment(t, staleOrder.PaymentID); p.Status != models.PaymentFailed {
		t.Fatalf("expected stale payment FAILED, got %s", p.Status)
	}
	if a := fx.reloadAppointment(t, staleOrder.AppointmentID); a.Status != models.StatusCancelled {
		t.Fatalf("expected stale appointment CANCELLED, got %s", a.Status)
	}
	if fx.reloadSlot(t, stale.ID).IsBooked {
		t.Fatalf("expected stale slot released")
	}
	if got := fx.ledgerTypes(t, staleOrder.PaymentID); !equalTypes(got, models.TxOrderCreated, models.TxHoldExpired) {
		t.Fatalf("unexpected ledger %v", got)
	}

	if p := fx.reloadPayment(t, settledOrder.PaymentID); p.Status != models.PaymentSuccess {
		t.Fatalf("settled payment must be untouched, got %s", p.Status)
	}
	if !fx.reloadSlot(t, settled.ID).IsBooked {
		t.Fatalf("settled slot must stay booked")
	}

	if _, err := fx.payments.SweepStaleHolds(ctx, 0); err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}

func TestSweepStaleHoldsCancelsUnpaidBookings(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	unpaidSlot := testutil.CreateSlot(t, fx.db, "2025-01-11", "09:00-09:30")
	confirmedSlot := testutil.CreateSlot(t, fx.db, "2025-01-11", "09:30-10:00")
	orderedSlot := testutil.CreateSlot(t, fx.db, "2025-01-11", "10:00-10:30")

	unpaid, err := fx.booking.BookAppointment(ctx, actorOf(fx.userA), BookInput{
		SlotID:            unpaidSlot.ID,
		AppointmentTypeID: fx.apptType.ID,
	})
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	confirmed, err := fx.booking.BookAppointment(ctx, actorOf(fx.userB), BookInput{
		SlotID:            confirmedSlot.ID,
		AppointmentTypeID: fx.apptType.ID,
	})
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	if _, err := fx.booking.ConfirmAppointment(ctx, confirmed.ID); err != nil {
		t.Fatalf("ConfirmAppointment: %v", err)
	}
	paid := fx.orderFor(t, fx.userB, orderedSlot)
	if _, err := fx.payments.VerifyPayment(ctx, verifyInput(paid.OrderID, "pay_7")); err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}

	n, err := fx.payments.SweepStaleHolds(ctx, time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("fresh booking must survive the sweep, got %d %v", n, err)
	}
	if a := fx.reloadAppointment(t, unpaid.ID); a.Status != models.StatusPending {
		t.Fatalf("expected fresh booking PENDING, got %s", a.Status)
	}

	fx.payments.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = fx.payments.SweepStaleHolds(ctx, time.Hour)
	if err != nil {
		t.Fatalf("SweepStaleHolds returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 unpaid booking expired, got %d", n)
	}

	if a := fx.reloadAppointment(t, unpaid.ID); a.Status != models.StatusCancelled {
		t.Fatalf("expected unpaid booking CANCELLED, got %s", a.Status)
	}
	if fx.reloadSlot(t, unpaidSlot.ID).IsBooked {
		t.Fatalf("expected unpaid slot released")
	}
	if a := fx.reloadAppointment(t, confirmed.ID); a.Status != models.StatusConfirmed {
		t.Fatalf("confirmed booking must be untouched, got %s", a.Status)
	}
	if !fx.reloadSlot(t, confirmedSlot.ID).IsBooked || !fx.reloadSlot(t, orderedSlot.ID).IsBooked {
		t.Fatalf("confirmed and paid slots must stay booked")
	}
	if p := fx.reloadPayment(t, paid.PaymentID); p.Status != models.PaymentSuccess {
		t.Fatalf("paid order must be untouched, got %s", p.Status)
	}

	var cancelled int
	for _, typ := range fx.pub.types() {
		if typ == events.AppointmentCancelled {
			cancelled++
		}
	}
	if cancelled != 1 {
		t.Fatalf("expected one cancellation event, got %v", fx.pub.types())
	}

	// A second pass finds nothing left to expire.
	if n, err := fx.payments.SweepStaleHolds(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("expected idempotent sweep, got %d %v", n, err)
	}
}
