package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func newScheduleCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the reindexer on its configured cadence",
		Long: `Starts the scheduler in the foreground. The reindex task state is
persisted, so restarting the process keeps the cadence instead of
resetting it. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			err = app.scheduler.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
