package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lawfirm-server/internal/models"
)

// LedgerEvent is one of the closed set of payment ledger entries.
type LedgerEvent interface {
	EventType() models.TransactionType
	ledgerEvent()
}

type OrderCreated struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type PaymentVerified struct {
	OrderID          string `json:"orderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
}

type PaymentCancelled struct {
	Reason string `json:"reason"`
}

type PaymentFailed struct {
	Reason string `json:"reason"`
}

// HoldExpired records a PENDING payment swept after its hold lapsed.
type HoldExpired struct {
	HeldSince time.Time `json:"heldSince"`
	ExpiredAt time.Time `json:"expiredAt"`
}

func (OrderCreated) EventType() models.TransactionType     { return models.TxOrderCreated }
func (PaymentVerified) EventType() models.TransactionType  { return models.TxPaymentVerified }
func (PaymentCancelled) EventType() models.TransactionType { return models.TxPaymentCancelled }
func (PaymentFailed) EventType() models.TransactionType    { return models.TxPaymentFailed }
func (HoldExpired) EventType() models.TransactionType      { return models.TxHoldExpired }

func (OrderCreated) ledgerEvent()     {}
func (PaymentVerified) ledgerEvent()  {}
func (PaymentCancelled) ledgerEvent() {}
func (PaymentFailed) ledgerEvent()    {}
func (HoldExpired) ledgerEvent()      {}

// DecodeLedgerEvent turns a stored row back into its typed event.
func DecodeLedgerEvent(row models.Transaction) (LedgerEvent, error) {
	var (
		ev  LedgerEvent
		err error
	)
	switch row.EventType {
	case models.TxOrderCreated:
		var v OrderCreated
		err = json.Unmarshal(row.Payload, &v)
		ev = v
	case models.TxPaymentVerified:
		var v PaymentVerified
		err = json.Unmarshal(row.Payload, &v)
		ev = v
	case models.TxPaymentCancelled:
		var v PaymentCancelled
		err = json.Unmarshal(row.Payload, &v)
		ev = v
	case models.TxPaymentFailed:
		var v PaymentFailed
		err = json.Unmarshal(row.Payload, &v)
		ev = v
	case models.TxHoldExpired:
		var v HoldExpired
		err = json.Unmarshal(row.Payload, &v)
		ev = v
	default:
		return nil, fmt.Errorf("unknown ledger event type %q", row.EventType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", row.EventType, err)
	}
	return ev, nil
}

// LedgerEntry is a decoded ledger row.
type LedgerEntry struct {
	ID        string                 `json:"id"`
	PaymentID string                 `json:"paymentId"`
	EventType models.TransactionType `json:"eventType"`
	CreatedAt time.Time              `json:"createdAt"`
	Event     LedgerEvent            `json:"event"`
}

// Ledger appends and reads the per-payment transaction log. Rows are never
// updated or deleted.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Append writes one row using tx so it commits with the state change it records.
func (l *Ledger) Append(tx *gorm.DB, paymentID string, ev LedgerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.EventType(), err)
	}
	row := models.Transaction{
		PaymentID: paymentID,
		EventType: ev.EventType(),
		Payload:   datatypes.JSON(payload),
	}
	if err := tx.Create(&row).Error; err != nil {
		return dbErr(err, "append ledger "+string(ev.EventType()))
	}
	return nil
}

// History returns a payment's ledger in insertion order.
func (l *Ledger) History(ctx context.Context, paymentID string) ([]LedgerEntry, error) {
	var rows []models.Transaction
	err := l.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, dbErr(err, "load ledger")
	}

	entries := make([]LedgerEntry, 0, len(rows))
	for _, row := range rows {
		ev, err := DecodeLedgerEvent(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LedgerEntry{
			ID:        row.ID,
			PaymentID: row.PaymentID,
			EventType: row.EventType,
			CreatedAt: row.CreatedAt,
			Event:     ev,
		})
	}
	return entries, nil
}
