package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lawfirm-server/internal/domain"
	"lawfirm-server/internal/logging"
	"lawfirm-server/internal/models"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	maxSlotRangeDays = 366
)

// SlotFilter selects slots for listing. Date, when set, overrides When.
type SlotFilter struct {
	Show  string
	When  string
	Date  string
	Page  int
	Limit int
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type SlotPage struct {
	Slots      []models.Slot `json:"slots"`
	Pagination Pagination    `json:"pagination"`
}

// CreateSlotsInput generates one slot per (date, label) over an inclusive range.
type CreateSlotsInput struct {
	StartDate string
	EndDate   string
	TimeSlots []string
}

// SlotStore owns slot inventory and the reserve/release primitives used by
// booking transactions.
type SlotStore struct {
	db     *gorm.DB
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func NewSlotStore(db *gorm.DB, loc *time.Location) *SlotStore {
	if loc == nil {
		loc = time.UTC
	}
	return &SlotStore{db: db, loc: loc, now: time.Now, logger: logging.For("services.slots")}
}

func (f *SlotFilter) normalize() error {
	f.Show = strings.ToLower(strings.TrimSpace(f.Show))
	f.When = strings.ToLower(strings.TrimSpace(f.When))
	switch f.Show {
	case "":
		f.Show = "all"
	case "all", "booked", "available":
	default:
		return domain.ValidationError{Field: "show", Msg: "must be one of all, booked, available"}
	}
	switch f.When {
	case "":
		f.When = "upcoming"
	case "upcoming", "past", "all":
	default:
		return domain.ValidationError{Field: "when", Msg: "must be one of upcoming, past, all"}
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return nil
}

// ListSlots returns one page of slots ordered by date then time label.
func (s *SlotStore) ListSlots(ctx context.Context, filter SlotFilter) (*SlotPage, error) {
	if err := filter.normalize(); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&models.Slot{})
	switch filter.Show {
	case "booked":
		q = q.Where("is_booked = ?", true)
	case "available":
		q = q.Where("is_booked = ?", false)
	}

	if filter.Date != "" {
		day, err := models.ParseDate(filter.Date)
		if err != nil {
			return nil, domain.ValidationError{Field: "date", Msg: "must be YYYY-MM-DD", Err: err}
		}
		q = q.Where("date = ?", day)
	} else {
		today := models.DateOnly(s.now().In(s.loc))
		switch filter.When {
		case "upcoming":
			q = q.Where("date >= ?", today)
		case "past":
			q = q.Where("date < ?", today)
		}
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, dbErr(err, "count slots")
	}

	slots := make([]models.Slot, 0, filter.Limit)
	err := q.Session(&gorm.Session{}).Order("date asc").Order("time_label asc").
		Limit(filter.Limit).
		Offset((filter.Page - 1) * filter.Limit).
		Find(&slots).Error
	if err != nil {
		return nil, dbErr(err, "list slots")
	}

	return &SlotPage{
		Slots: slots,
		Pagination: Pagination{
			Page:       filter.Page,
			Limit:      filter.Limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(filter.Limit))),
		},
	}, nil
}

// CreateSlots inserts the cartesian product of dates and labels. Existing
// (date, label) pairs are skipped; the returned count is the rows inserted.
func (s *SlotStore) CreateSlots(ctx context.Context, in CreateSlotsInput) (int64, error) {
	ctx, span := startSpan(ctx, "slots.create")
	created, err := s.createSlots(ctx, in)
	endSpan(span, err)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "slots created",
		logAttrs(ctx, "create_slots", "success", "created", created)...)
	return created, nil
}

func (s *SlotStore) createSlots(ctx context.Context, in CreateSlotsInput) (int64, error) {
	start, err := models.ParseDate(in.StartDate)
	if err != nil {
		return 0, domain.ValidationError{Field: "startDate", Msg: "must be YYYY-MM-DD", Err: err}
	}
	end, err := models.ParseDate(in.EndDate)
	if err != nil {
		return 0, domain.ValidationError{Field: "endDate", Msg: "must be YYYY-MM-DD", Err: err}
	}
	if end.Before(start) {
		return 0, domain.ValidationError{Field: "endDate", Msg: "must not be before startDate"}
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days > maxSlotRangeDays {
		return 0, domain.ValidationError{Field: "endDate", Msg: fmt.Sprintf("range must not exceed %d days", maxSlotRangeDays)}
	}

	labels, err := normalizeLabels(in.TimeSlots)
	if err != nil {
		return 0, err
	}

	slots := make([]models.Slot, 0, days*len(labels))
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, label := range labels {
			slots = append(slots, models.Slot{Date: d, TimeLabel: label})
		}
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&slots, 200)
	if res.Error != nil {
		return 0, dbErr(res.Error, "create slots")
	}
	return res.RowsAffected, nil
}

func normalizeLabels(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, domain.ValidationError{Field: "timeSlots", Msg: "at least one time slot is required"}
	}
	seen := make(map[string]struct{}, len(raw))
	labels := make([]string, 0, len(raw))
	for _, r := range raw {
		start, end, err := models.ParseTimeLabel(r)
		if err != nil {
			return nil, domain.ValidationError{Field: "timeSlots", Msg: err.Error(), Err: err}
		}
		label := fmt.Sprintf("%02d:%02d-%02d:%02d",
			int(start.Hours()), int(start.Minutes())%60,
			int(end.Hours()), int(end.Minutes())%60)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	return labels, nil
}

// Reserve flips is_booked false -> true. It must run inside the caller's
// transaction; losing the race returns ErrSlotAlreadyBooked.
func (s *SlotStore) Reserve(tx *gorm.DB, slotID string) error {
	res := tx.Model(&models.Slot{}).
		Where("id = ? AND is_booked = ?", slotID, false).
		Update("is_booked", true)
	if res.Error != nil {
		return dbErr(res.Error, "reserve slot")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := tx.Model(&models.Slot{}).Where("id = ?", slotID).Count(&count).Error; err != nil {
		return dbErr(err, "load slot")
	}
	if count == 0 {
		return domain.NotFoundError{Resource: "slot"}
	}
	s.logger.DebugContext(tx.Statement.Context, "slot reservation lost",
		logAttrs(tx.Statement.Context, "reserve", "conflict", "slot_id", slotID)...)
	return domain.ErrSlotAlreadyBooked
}

// Release makes a slot bookable again. Releasing a free slot is a no-op.
func (s *SlotStore) Release(tx *gorm.DB, slotID string) error {
	err := tx.Model(&models.Slot{}).
		Where("id = ?", slotID).
		Update("is_booked", false).Error
	return dbErr(err, "release slot")
}

func slotAttr(id string) attribute.KeyValue {
	return attribute.String("slot.id", id)
}
