package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/toastd/cmd/config"
	"github.com/tphakala/toastd/cmd/demo"
	"github.com/tphakala/toastd/cmd/serve"
	"github.com/tphakala/toastd/internal/conf"
	"github.com/tphakala/toastd/internal/logger"
)

// LogCloser closes the logger a command run configured. Cobra skips post-run
// hooks when RunE fails, so callers close it after Execute returns.
type LogCloser struct {
	central *logger.CentralLogger
}

// Close flushes and closes the log file, if one was opened
func (c *LogCloser) Close() error {
	central := c.central
	c.central = nil
	return central.Close()
}

// RootCommand creates and returns the root command. Settings are loaded into
// settings before any subcommand runs; the returned closer releases the
// logger those settings configured.
func RootCommand(settings *conf.Settings) (*cobra.Command, *LogCloser) {
	v := viper.New()
	var configPath string
	closer := &LogCloser{}

	rootCmd := &cobra.Command{
		Use:           "toastd",
		Short:         "Toast notification engine",
		Version:       settings.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, v, &configPath); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		demo.Command(settings),
		config.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.Load(v, configPath)
		if err != nil {
			return err
		}
		loaded.Version = settings.Version
		*settings = *loaded

		if err := closer.Close(); err != nil {
			return err
		}
		closer.central, err = initLogging(settings)
		return err
	}

	return rootCmd, closer
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, v *viper.Viper, configPath *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configPath, "config", "c", "", "Path to config file (default ./config.yaml or ~/.config/toastd/config.yaml)")
	flags.String("log-level", logger.DefaultLogLevel, "Log level: trace, debug, info, warn or error")
	flags.Bool("log-file", false, "Also write JSON logs to logging.file_output.path")
	flags.Int("max-toasts", 0, "Maximum number of visible toasts")
	flags.String("listen", "", "Listen address of the HTTP adapter")

	bindings := map[string]string{
		"logging.default_level":       "log-level",
		"logging.console.level":       "log-level",
		"logging.file_output.enabled": "log-file",
		"toast.max_toasts":            "max-toasts",
		"http.listen":                 "listen",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// initLogging replaces the fallback console logger with the configured one
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}
