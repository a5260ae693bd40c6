// Package cmd provides the mixpaths command line.
//
// Configuration is read, in order of precedence, from command-line flags,
// MIXPATHS_ prefixed environment variables and the configuration file
// (--config, MIXPATHS_CONFIG_FILE, or .mixpaths.yml in the working
// directory).
package cmd

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/mixpaths/internal/compiler"
	"github.com/conneroisu/mixpaths/internal/config"
	"github.com/conneroisu/mixpaths/internal/logging"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	viper     *viper.Viper
	cfgFile   string
	lookupEnv func(string) (string, bool)
	logOutput io.Writer

	cfg    *config.Config
	logger logging.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{
		viper:     viper.New(),
		lookupEnv: os.LookupEnv,
		logOutput: os.Stderr,
	}

	rootCmd := &cobra.Command{
		Use:   "mixpaths",
		Short: "Incremental, dependency-aware template compiler",
		Long: `mixpaths renders source templates that reference other published assets,
records every output in the asset manifest with a content hash, and keeps the
outputs up to date as sources change.

References are written inside the template delimiters:

  <script src="{{ mix("/js/app.js") }}"></script>

Quick Start:
  mixpaths build          Compile every configured entry
  mixpaths watch          Compile, then recompile on change
  mixpaths graph          Print the dependency graph`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is .mixpaths.yml, can also use MIXPATHS_CONFIG_FILE env var)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	_ = a.viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.viper.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newBuildCommand(a),
		newWatchCommand(a),
		newGraphCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the command line.
func Execute() error {
	rootCmd := NewRootCommand()
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln(errorLine(err))
	}

	return err
}

func (a *app) init(cmd *cobra.Command) error {
	config.Setup(a.viper, a.cfgFile, a.lookupEnv)
	if err := config.ReadInConfig(a.viper); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(a.viper)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.LoggerConfig()
	logCfg.Output = a.logOutput
	a.logger = logging.NewLogger(logCfg)

	if used := a.viper.ConfigFileUsed(); used != "" {
		a.logger.Debug(cmd.Context(), "Using config file", "path", used)
	}

	return nil
}

func (a *app) newCompiler() (*compiler.Compiler, error) {
	return compiler.New(compiler.Options{
		ManifestPath: a.cfg.ManifestPath(),
		Versioning:   a.cfg.UseVersioning(),
		HotURL:       a.cfg.HotURL(),
		Env:          a.lookupEnv,
		Logger:       a.logger,
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
