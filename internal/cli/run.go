package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/fluxgate"
	"github.com/viant/fluxgate/model"
	"github.com/viant/fluxgate/service/approval"
	"github.com/viant/fluxgate/service/executor"
)

type runOptions struct {
	workflow    string
	autoApprove bool
	autoReject  string
	failSteps   []string
	delay       time.Duration
	timeout     time.Duration
	verbose     bool
}

func newRunCommand(app *App) *cobra.Command {
	options := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a workflow definition with a simulated executor",
		Long: `Load a workflow definition, assess every step and drive the run with a
simulated executor. Steps waiting for approval are decided by --auto-approve
or --auto-reject; otherwise they wait until the approval window or --timeout
elapses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd.Context(), app, options)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&options.workflow, "workflow", "w", "", "workflow definition URL")
	flags.BoolVar(&options.autoApprove, "auto-approve", false, "approve every pending step")
	flags.StringVar(&options.autoReject, "auto-reject", "", "reject every pending step with this reason")
	flags.StringSliceVar(&options.failSteps, "fail-step", nil, "step ids the simulated executor fails")
	flags.DurationVar(&options.delay, "delay", 10*time.Millisecond, "simulated execution time per step")
	flags.DurationVar(&options.timeout, "timeout", time.Minute, "cancel the run after this long")
	flags.BoolVarP(&options.verbose, "verbose", "v", false, "print every executed step")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func runWorkflow(ctx context.Context, app *App, options *runOptions) error {
	if options.autoApprove && options.autoReject != "" {
		return fmt.Errorf("--auto-approve and --auto-reject are mutually exclusive")
	}
	data, err := app.fs.DownloadWithURL(ctx, options.workflow)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", options.workflow, err)
	}
	definition, err := model.DecodeDefinition(data)
	if err != nil {
		return err
	}
	var executorOptions []executor.Option
	if options.verbose {
		executorOptions = append(executorOptions, executor.WithListener(executor.WriterListener(app.Out)))
	}
	engine := executor.NewService(executor.NewSimulator(options.delay, options.failSteps...), executorOptions...)
	srv, err := fluxgate.NewFromConfig(app.Config, fluxgate.WithLogger(app.Logger), fluxgate.WithExecutor(engine))
	if err != nil {
		return err
	}
	defer srv.Close(context.Background())
	rt := srv.Runtime()

	run, err := rt.StartRun(ctx, definition)
	if err != nil {
		return err
	}
	switch {
	case options.autoApprove:
		defer approval.AutoApprove(ctx, rt, "cli", 10*time.Millisecond)()
	case options.autoReject != "":
		defer approval.AutoReject(ctx, rt, "cli", options.autoReject, 10*time.Millisecond)()
	}

	run, err = waitForRun(ctx, rt, run.ID, options.timeout)
	if err != nil {
		return err
	}
	printRun(app, run)
	if run.Status() != model.RunCompleted {
		return NewExitError(2)
	}
	return nil
}

// waitForRun polls until the run finished or halted; on timeout the run is
// cancelled.
func waitForRun(ctx context.Context, rt *fluxgate.Runtime, runID string, timeout time.Duration) (*model.Run, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		run, err := rt.Run(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Finished() || run.Halted() {
			return run, nil
		}
		if time.Now().After(deadline) {
			return rt.Cancel(ctx, runID, "cli")
		}
		select {
		case <-ctx.Done():
			return rt.Cancel(context.Background(), runID, "cli")
		case <-ticker.C:
		}
	}
}

func printRun(app *App, run *model.Run) {
	fmt.Fprintf(app.Out, "run %s (%s): %s\n", run.ID, run.Name, run.Status())
	for _, step := range run.Steps {
		impact := "-"
		if step.ImpactLevel != nil {
			impact = step.ImpactLevel.String()
		}
		line := fmt.Sprintf("  [%d] %-20s %-20s %-8s %s", step.Order, step.ID, step.Mode, impact, step.Status)
		if step.ErrorMessage != "" {
			line += ": " + step.ErrorMessage
		}
		fmt.Fprintln(app.Out, line)
	}
	completed, total := run.Progress()
	fmt.Fprintf(app.Out, "progress: %d/%d\n", completed, total)
}
