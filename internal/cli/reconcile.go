package cli

import (
	"fmt"

	"quiz-reward-service/internal/app"
	"quiz-reward-service/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewReconcileCmd runs one reconciliation sweep and exits.
func NewReconcileCmd(configPath *string) *cobra.Command {
	var users []string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Align ledger balances with the chain once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			c, err := wire(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			var report app.SweepReport
			if len(users) > 0 {
				report, err = c.reconciler.Sweep(cmd.Context(), users)
			} else {
				report, err = c.reconciler.SweepAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			for user, ferr := range report.Failed {
				logger.Get().Warn("reconcile failed", zap.String("userID", user), zap.Error(ferr))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "overwritten=%d in_sync=%d skipped=%d locked=%d failed=%d\n",
				report.Outcomes[app.OutcomeOverwritten],
				report.Outcomes[app.OutcomeInSync],
				report.Outcomes[app.OutcomeSkipped],
				report.Outcomes[app.OutcomeLocked],
				len(report.Failed))
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d users failed to reconcile", len(report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&users, "user", nil, "reconcile only these user IDs")
	return cmd
}
