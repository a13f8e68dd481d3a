package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"lawfirm-server/internal/models"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the admin account and catalog from a YAML file",
	Long: `Load the admin account, appointment types and services from a YAML file.
Existing rows are matched by email or title and left untouched, so the
command can be re-run safely.

Example:
  lawfirm-server seed --file seed.example.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(seedFile)
		if err != nil {
			return fmt.Errorf("read seed file: %w", err)
		}
		data, err := parseSeed(raw)
		if err != nil {
			return err
		}

		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		res, err := applySeed(cmd.Context(), e.db, data)
		if err != nil {
			return err
		}
		e.logger.Info("seed applied", "module", "cli", "operation", "seed", "outcome", "success",
			"admin_created", res.AdminCreated, "appointment_types", res.AppointmentTypes, "services", res.Services)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.yaml", "seed file path")
}

type seedAdmin struct {
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
}

type seedItem struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
}

type seedData struct {
	Admin            *seedAdmin `yaml:"admin"`
	AppointmentTypes []seedItem `yaml:"appointmentTypes"`
	Services         []seedItem `yaml:"services"`
}

type seedResult struct {
	AdminCreated     bool
	AppointmentTypes int
	Services         int
}

func parseSeed(raw []byte) (*seedData, error) {
	var data seedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if a := data.Admin; a != nil {
		a.Email = strings.ToLower(strings.TrimSpace(a.Email))
		if a.Email == "" || len(a.Password) < 8 {
			return nil, errors.New("seed admin needs an email and a password of at least 8 characters")
		}
	}
	for _, group := range [][]seedItem{data.AppointmentTypes, data.Services} {
		for _, it := range group {
			if strings.TrimSpace(it.Title) == "" || it.Price <= 0 {
				return nil, fmt.Errorf("seed item %q needs a title and a positive price", it.Title)
			}
		}
	}
	return &data, nil
}

// applySeed inserts whatever is missing in a single transaction.
func applySeed(ctx context.Context, db *gorm.DB, data *seedData) (seedResult, error) {
	var res seedResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if a := data.Admin; a != nil {
			var existing models.User
			err := tx.Where("email = ?", a.Email).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				admin := models.User{Email: a.Email, FirstName: a.FirstName, LastName: a.LastName, Role: models.RoleAdmin}
				if err := admin.SetPassword(a.Password); err != nil {
					return err
				}
				if err := tx.Create(&admin).Error; err != nil {
					return fmt.Errorf("create admin: %w", err)
				}
				res.AdminCreated = true
			case err != nil:
				return err
			}
		}

		for _, it := range data.AppointmentTypes {
			at := models.AppointmentType{Title: it.Title, Description: it.Description, Price: it.Price}
			r := tx.Where("title = ?", it.Title).FirstOrCreate(&at)
			if r.Error != nil {
				return fmt.Errorf("seed appointment type %q: %w", it.Title, r.Error)
			}
			res.AppointmentTypes += int(r.RowsAffected)
		}
		for _, it := range data.Services {
			svc := models.Service{Title: it.Title, Description: it.Description, Price: it.Price}
			r := tx.Where("title = ?", it.Title).FirstOrCreate(&svc)
			if r.Error != nil {
				return fmt.Errorf("seed service %q: %w", it.Title, r.Error)
			}
			res.Services += int(r.RowsAffected)
		}
		return nil
	})
	return res, err
}
