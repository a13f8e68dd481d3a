package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"lawfirm-server/internal/calendar"
	"lawfirm-server/internal/domain"
	"lawfirm-server/internal/events"
	"lawfirm-server/internal/gateway"
	"lawfirm-server/internal/models"
	"lawfirm-server/internal/testutil"
)

const testSecret = "test_secret"

type fakeGateway struct {
	mu     sync.Mutex
	fail   error
	calls  int
	orders []gateway.OrderRequest
}

func (g *fakeGateway) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.fail != nil {
		return nil, g.fail
	}
	g.orders = append(g.orders, req)
	return &gateway.Order{
		ID:       fmt.Sprintf("order_%d", len(g.orders)),
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.Verify(testSecret, orderID, paymentID, signature)
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

type fakeCalendar struct {
	mu       sync.Mutex
	link     string
	err      error
	meetings []calendar.Meeting
}

func (c *fakeCalendar) Schedule(_ context.Context, m calendar.Meeting) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meetings = append(c.meetings, m)
	if c.err != nil {
		return "", c.err
	}
	return c.link, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	slots    *SlotStore
	ledger   *Ledger
	booking  *AppointmentFactory
	payments *PaymentService
	gw       *fakeGateway
	cal      *fakeCalendar
	pub      *recordingPublisher

	userA    models.User
	userB    models.User
	admin    models.User
	apptType models.AppointmentType
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)

	fx := &fixture{
		db:  db,
		gw:  &fakeGateway{},
		cal: &fakeCalendar{link: "https://meet.google.com/abc-defg-hij"},
		pub: &recordingPublisher{},
	}
	fx.slots = NewSlotStore(db, time.UTC)
	fx.ledger = NewLedger(db)
	fx.booking = NewAppointmentFactory(db, fx.slots, fx.ledger, fx.pub)
	fx.payments = NewPaymentService(db, fx.booking, fx.gw, fx.cal, fx.pub, PaymentOptions{
		Currency:        "INR",
		Location:        time.UTC,
		CalendarTimeout: time.Second,
	})

	fx.userA = testutil.CreateUser(t, db, "a@example.com", models.RoleUser)
	fx.userB = testutil.CreateUser(t, db, "b@example.com", models.RoleUser)
	fx.admin = testutil.CreateUser(t, db, "admin@example.com", models.RoleAdmin)
	fx.apptType = testutil.CreateAppointmentType(t, db, "Consultation", 1000)
	return fx
}

func actorOf(u models.User) domain.Actor {
	return domain.Actor{UserID: u.ID, Role: u.Role}
}

func (fx *fixture) reloadSlot(t *testing.T, id string) models.Slot {
	t.Helper()
	var s models.Slot
	if err := fx.db.First(&s, "id = ?", id).Error; err != nil {
		t.Fatalf("reload slot: %v", err)
	}
	return s
}

func (fx *fixture) reloadAppointment(t *testing.T, id string) models.Appointment {
	t.Helper()
	var a models.Appointment
	if err := fx.db.First(&a, "id = ?", id).Error; err != nil {
		t.Fatalf("reload appointment: %v", err)
	}
	return a
}

func (fx *fixture) reloadPayment(t *testing.T, id string) models.Payment {
	t.Helper()
	var p models.Payment
	if err := fx.db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	return p
}

func (fx *fixture) ledgerTypes(t *testing.T, paymentID string) []models.TransactionType {
	t.Helper()
	entries, err := fx.ledger.History(context.Background(), paymentID)
	if err != nil {
		t.Fatalf("ledger history: %v", err)
	}
	out := make([]models.TransactionType, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EventType)
	}
	return out
}

func (fx *fixture) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := fx.db.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// orderFor books slot for user through CreateOrder.
func (fx *fixture) orderFor(t *testing.T, user models.User, slot models.Slot) *OrderResult {
	t.Helper()
	res, err := fx.payments.CreateOrder(context.Background(), actorOf(user), OrderInput{
		PayFor:            models.PayForAppointment,
		SlotID:            slot.ID,
		AppointmentTypeID: fx.apptType.ID,
		Agenda:            "Property dispute",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return res
}

func equalTypes(got []models.TransactionType, want ...models.TransactionType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
