package models

import "gorm.io/datatypes"

// PaymentStatus represents the lifecycle of a payment
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentSuccess || s == PaymentCancelled || s == PaymentFailed
}

// PayFor discriminates what a payment is for.
type PayFor string

const (
	PayForAppointment PayFor = "APPOINTMENT"
	PayForService     PayFor = "SERVICE"
)

// Payment is one gateway order. OrderID is nil until the gateway assigns it and
// is the idempotency key afterwards.
type Payment struct {
	BaseModel
	OrderID          *string       `gorm:"size:64;uniqueIndex" json:"orderId,omitempty"`
	GatewayPaymentID string        `gorm:"size:64" json:"gatewayPaymentId,omitempty"`
	Signature        string        `gorm:"size:128" json:"-"`
	Amount           int64         `gorm:"not null" json:"amount"`
	Currency         string        `gorm:"size:3;not null" json:"currency"`
	Status           PaymentStatus `gorm:"size:20;default:'PENDING';index" json:"status"`
	PayFor           PayFor        `gorm:"size:20;not null" json:"payFor"`
	AppointmentID    *string       `gorm:"size:36;index" json:"appointmentId,omitempty"`
	ServiceID        *string       `gorm:"size:36;index" json:"serviceId,omitempty"`
	UserID           string        `gorm:"size:36;index;not null" json:"userId"`

	Appointment *Appointment `gorm:"foreignKey:AppointmentID" json:"appointment,omitempty"`
	Service     *Service     `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
}

// TransactionType tags a ledger row.
type TransactionType string

const (
	TxOrderCreated     TransactionType = "ORDER_CREATED"
	TxPaymentVerified  TransactionType = "PAYMENT_VERIFIED"
	TxPaymentCancelled TransactionType = "PAYMENT_CANCELLED"
	TxPaymentFailed    TransactionType = "PAYMENT_FAILED"
	TxHoldExpired      TransactionType = "HOLD_EXPIRED"
)

// Transaction is an append-only ledger row for a payment.
type Transaction struct {
	BaseModel
	PaymentID string          `gorm:"size:36;index;not null" json:"paymentId"`
	EventType TransactionType `gorm:"size:32;not null" json:"eventType"`
	Payload   datatypes.JSON  `json:"payload"`
}
