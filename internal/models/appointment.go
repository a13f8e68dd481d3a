package models

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// AppointmentType is admin-managed reference data priced in major currency units.
type AppointmentType struct {
	BaseModel
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Price       int64  `gorm:"not null" json:"price"`
}

// Service is a flat-fee offering that can be paid for without a slot.
type Service struct {
	BaseModel
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Price       int64  `gorm:"not null" json:"price"`
}

// Appointment represents a requested consultation bound to one slot
type Appointment struct {
	BaseModel
	Name              string            `gorm:"size:200" json:"name"`
	Email             string            `gorm:"size:255" json:"email"`
	Phone             string            `gorm:"size:32" json:"phone"`
	Agenda            string            `gorm:"type:text" json:"agenda"`
	SlotID            string            `gorm:"size:36;index;not null" json:"slotId"`
	AppointmentTypeID string            `gorm:"size:36;index;not null" json:"appointmentTypeId"`
	UserID            string            `gorm:"size:36;index;not null" json:"userId"`
	Status            AppointmentStatus `gorm:"size:20;default:'PENDING';index" json:"status"`
	MeetingLink       string            `gorm:"size:512" json:"meetingLink,omitempty"`

	// Relations
	Slot            *Slot            `gorm:"foreignKey:SlotID" json:"slot,omitempty"`
	AppointmentType *AppointmentType `gorm:"foreignKey:AppointmentTypeID" json:"appointmentType,omitempty"`
	User            *User            `gorm:"foreignKey:UserID" json:"-"`
}

// IsActive reports whether the appointment still holds its slot.
func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}
