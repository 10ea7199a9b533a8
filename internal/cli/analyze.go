package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/policy"
	"github.com/viant/fluxgate/service/impact"
	"gopkg.in/yaml.v3"
)

func newAnalyzeCommand(app *App) *cobra.Command {
	var operationURL, mode string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print the impact assessment of an operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := app.fs.DownloadWithURL(ctx, operationURL)
			if err != nil {
				return fmt.Errorf("failed to load operation %s: %w", operationURL, err)
			}
			op := &model.Operation{}
			if err = yaml.Unmarshal(data, op); err != nil {
				return fmt.Errorf("failed to decode operation: %w", err)
			}
			escalations, err := impact.NewEscalations(app.Config.Impact.Escalations...)
			if err != nil {
				return err
			}
			analyzer := impact.New(
				impact.WithProductionEnvironments(app.Config.Impact.ProductionEnvironments...),
				impact.WithEscalations(escalations))
			assessment := analyzer.Analyze(ctx, op)

			p, err := policy.FromConfig(app.Config.Policy)
			if err != nil {
				return err
			}
			var declared model.DeploymentMode
			if mode != "" {
				if declared, err = model.ParseDeploymentMode(mode); err != nil {
					return err
				}
			}
			effective := p.Resolve(op.Kind, declared)
			output := struct {
				*impact.Assessment
				Mode             model.DeploymentMode `json:"deploymentMode"`
				ApprovalRequired bool                 `json:"approvalRequired"`
			}{assessment, effective, policy.RequiresApproval(effective, assessment.ImpactLevel)}
			encoder := json.NewEncoder(app.Out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(output)
		},
	}
	cmd.Flags().StringVarP(&operationURL, "operation", "o", "", "operation URL (yaml or json)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "declared deployment mode")
	_ = cmd.MarkFlagRequired("operation")
	return cmd
}
