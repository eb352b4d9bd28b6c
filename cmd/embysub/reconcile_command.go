package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"embysub/internal/config"
	"embysub/internal/logging"
	"embysub/internal/notifications"
	"embysub/internal/reconcile"
	"embysub/internal/services/emby"
	"embysub/internal/store"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one availability pass over approved requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				client, err := emby.NewConfigured(cfg)
				if err != nil {
					return err
				}
				job := reconcile.New(client, st, logger, reconcile.WithNotifier(notifications.NewService(cfg)))
				summary, err := job.RunOnce(cmd.Context())
				if err != nil && !errors.Is(err, reconcile.ErrAlreadyRunning) {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(
					[]string{"Checked", "Completed", "Failed", "Duration"},
					[][]string{{
						fmt.Sprint(summary.Checked),
						fmt.Sprint(summary.Completed),
						fmt.Sprint(summary.Failed),
						summary.Duration().Round(time.Millisecond).String(),
					}},
					0, 1, 2, 3,
				))
				return nil
			})
		},
	}
}
