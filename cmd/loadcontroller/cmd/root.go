package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"GoLoadController/pkg/config"
)

// App carries the settings shared by every sub-command.
type App struct {
	viper    *viper.Viper
	Settings config.Settings
}

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	app := &App{viper: viper.New()}

	cmd := &cobra.Command{
		Use:   "loadcontroller",
		Short: "loadcontroller finds the producer load a Kafka cluster sustains and soaks it.",
		Long: `loadcontroller drives a fleet of Kafka producers from the throughput its
consumers report. For every configuration it runs a stress test, adding
producers until a consumer falls below tolerance, then a soak test, backing
off until every consumer is stable and holding that load.

Settings are read from the file passed with --config and from LOADCONTROLLER_*
environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to the settings file.")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error).")
	cmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9102.")
	_ = app.viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = app.viper.BindPFlag("metrics.listenAddr", cmd.PersistentFlags().Lookup("metrics-addr"))

	cmd.AddCommand(
		runCmd(app),
		simulateCmd(app),
		flushCmd(app),
		requeueCmd(app),
		pushCmd(app),
	)
	return cmd
}

func (a *App) init(cmd *cobra.Command) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	settings, err := config.Load(a.viper, path)
	if err != nil {
		return err
	}
	if err := config.ConfigureLogging(settings.Logging); err != nil {
		return err
	}
	a.Settings = settings
	return nil
}

// signalContext is cancelled on SIGINT/SIGTERM so controllers stop cleanly on
// ctrl-C.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(stopSignal)
		select {
		case <-ctx.Done():
		case <-stopSignal:
			cancel()
		}
	}()
	return ctx, cancel
}
