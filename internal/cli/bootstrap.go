package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"lawfirm-server/internal/calendar"
	"lawfirm-server/internal/config"
	"lawfirm-server/internal/events"
	"lawfirm-server/internal/gateway"
	"lawfirm-server/internal/logging"
	"lawfirm-server/internal/models"
	"lawfirm-server/internal/services"
)

// env is the state every subcommand starts from.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
}

func loadEnv() (*env, error) {
	// The dotenv file is optional; real deployments set the environment directly.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Environment)

	db, err := models.OpenDB(models.DatabaseConfig{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		Debug:    cfg.Database.Debug,
	})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// stack is the wired service layer shared by serve and sweep-holds.
type stack struct {
	slots    *services.SlotStore
	booking  *services.AppointmentFactory
	payments *services.PaymentService
	events   events.Publisher
}

func (e *env) buildStack(ctx context.Context) (*stack, error) {
	pub, err := events.NewPublisher(e.cfg.Events, e.logger)
	if err != nil {
		return nil, err
	}

	var scheduler services.MeetingScheduler = calendar.Disabled{}
	if e.cfg.Calendar.CredentialsFile != "" {
		g, err := calendar.NewGoogle(ctx, e.cfg.Calendar.CredentialsFile, e.cfg.Calendar.CalendarID)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		scheduler = g
	} else {
		e.logger.Warn("calendar credentials not set; meeting links disabled",
			"module", "cli", "operation", "bootstrap", "outcome", "degraded")
	}

	gw := gateway.NewRazorpay(e.cfg.Payment.KeyID, e.cfg.Payment.Secret)
	if e.cfg.Payment.KeyID == "" || e.cfg.Payment.Secret == "" {
		e.logger.Warn("payment gateway credentials not set; order creation will fail",
			"module", "cli", "operation", "bootstrap", "outcome", "degraded")
	}

	loc := e.cfg.Location()
	slots := services.NewSlotStore(e.db, loc)
	booking := services.NewAppointmentFactory(e.db, slots, services.NewLedger(e.db), pub)
	payments := services.NewPaymentService(e.db, booking, gw, scheduler, pub, services.PaymentOptions{
		Currency:        e.cfg.Payment.Currency,
		Location:        loc,
		CalendarTimeout: e.cfg.Calendar.Timeout,
	})
	return &stack{slots: slots, booking: booking, payments: payments, events: pub}, nil
}
