package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"lawfirm-server/internal/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		if err := models.Migrate(e.db.WithContext(cmd.Context())); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		e.logger.Info("schema migrated", "module", "cli", "operation", "migrate", "outcome", "success")
		return nil
	},
}
