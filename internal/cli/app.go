// Package cli implements the fluxgate command line tool.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/viant/afs"
	"github.com/viant/fluxgate"
	"go.uber.org/zap"
)

const envPrefix = "FLUXGATE"

// App holds state shared by commands.
type App struct {
	Out    io.Writer
	Err    io.Writer
	Viper  *viper.Viper
	Config *fluxgate.Config
	Logger *zap.Logger
	fs     afs.Service
}

// NewApp creates an application writing to out and errOut.
func NewApp(out, errOut io.Writer) *App {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return &App{Out: out, Err: errOut, Viper: v, fs: afs.New()}
}

// NewRootCommand builds the command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "fluxgate",
		Short:         "Approval gated workflow steps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load(cmd.Context())
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "config file URL (yaml or json)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("audit-driver", "", "audit sink driver: memory, sqlite, postgres, fs, redis")
	flags.String("audit-dsn", "", "audit sink DSN (sqlite, postgres)")
	flags.String("audit-url", "", "audit sink URL (fs, redis)")
	for _, name := range []string{"config", "log-level", "audit-driver", "audit-dsn", "audit-url"} {
		_ = app.Viper.BindPFlag(name, flags.Lookup(name))
	}
	root.AddCommand(newRunCommand(app), newAnalyzeCommand(app), newAuditCommand(app))
	return root
}

// load resolves the config: file (if any), then env and flag overrides.
func (a *App) load(ctx context.Context) error {
	config := fluxgate.DefaultConfig()
	if URL := a.Viper.GetString("config"); URL != "" {
		loaded, err := fluxgate.LoadConfig(ctx, URL)
		if err != nil {
			return err
		}
		config = loaded
	}
	if level := a.Viper.GetString("log-level"); level != "" {
		config.Log.Level = level
	}
	if driver := a.Viper.GetString("audit-driver"); driver != "" {
		config.Audit.Driver = driver
	}
	if dsn := a.Viper.GetString("audit-dsn"); dsn != "" {
		config.Audit.DSN = dsn
	}
	if URL := a.Viper.GetString("audit-url"); URL != "" {
		config.Audit.URL = URL
	}
	if err := config.Validate(); err != nil {
		return err
	}
	logger, err := config.Log.NewLogger()
	if err != nil {
		return err
	}
	a.Config = config
	a.Logger = logger
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	app := NewApp(out, errOut)
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	err := root.ExecuteContext(ctx)
	if app.Logger != nil {
		_ = app.Logger.Sync()
	}
	if err == nil {
		return 0
	}
	if code, ok := IsExitError(err); ok {
		return code
	}
	fmt.Fprintf(errOut, "Error: %v\n", err)
	return 1
}
