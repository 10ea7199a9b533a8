package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/fluxgate"
)

func newAuditCommand(app *App) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded decisions of a run from the configured audit sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Config.Audit.Driver == "" || app.Config.Audit.Driver == fluxgate.DriverMemory {
				return fmt.Errorf("audit requires a persistent sink, use --audit-driver")
			}
			srv, err := fluxgate.NewFromConfig(app.Config, fluxgate.WithLogger(app.Logger))
			if err != nil {
				return err
			}
			defer srv.Close(context.Background())
			decisions, err := srv.Runtime().AuditLog(cmd.Context(), runID)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(app.Out)
			for _, decision := range decisions {
				if err = encoder.Encode(decision); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}
