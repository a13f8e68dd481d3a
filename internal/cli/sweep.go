package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepOlderThan time.Duration

var sweepHoldsCmd = &cobra.Command{
	Use:   "sweep-holds",
	Short: "Fail unpaid appointment holds and free their slots",
	Long: `Fail PENDING appointment payments older than the hold TTL, cancel the
appointments they were holding and release the slots.

Meant to run from cron, e.g.:
  */5 * * * * lawfirm-server sweep-holds --older-than 30m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		st, err := e.buildStack(cmd.Context())
		if err != nil {
			return err
		}
		defer st.events.Close()

		ttl := sweepOlderThan
		if ttl <= 0 {
			ttl = e.cfg.HoldTTL
		}
		swept, err := st.payments.SweepStaleHolds(cmd.Context(), ttl)
		if err != nil {
			return fmt.Errorf("sweep holds: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "released %d stale hold(s)\n", swept)
		return nil
	},
}

func init() {
	sweepHoldsCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 0, "hold age to expire (defaults to HOLD_TTL)")
}
