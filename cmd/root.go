// Package cmd provides the command-line interface for ButtonStudio.
//
// Configuration is read from, highest priority first:
//
//  1. command-line flags (--port, --log-level, ...)
//  2. BUTTONSTUDIO_* environment variables, including ones from ./.env
//  3. the config file (--config, BUTTONSTUDIO_CONFIG_FILE or .buttonstudio.yml)
//  4. built-in defaults
package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/buttonstudio/internal/config"
	"github.com/conneroisu/buttonstudio/internal/errors"
	"github.com/conneroisu/buttonstudio/internal/logging"
)

const defaultConfigName = ".buttonstudio"

var (
	cfgFile string
	// configReadErr holds a config file that exists but failed to parse.
	configReadErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "buttonstudio",
	Short: "Route manifest generator and interactive studio for Fresh-style projects",
	Long: `ButtonStudio classifies the files under routes/ and islands/ into a route
manifest, writes it as fresh.gen.ts and serves an interactive studio page with
a counter island and an audio visualizer.

Quick Start:
  buttonstudio manifest           Regenerate fresh.gen.ts
  buttonstudio routes             List routes and islands
  buttonstudio serve --dev        Serve the studio with live reload
  buttonstudio watch              Regenerate the manifest on change`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .buttonstudio.yml, can also use BUTTONSTUDIO_CONFIG_FILE)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig resolves the config file, loads .env and binds flags. It runs
// before every command, so bindings survive a viper.Reset between runs.
func initConfig() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "Warning:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(defaultConfigName)
	}

	config.BindEnv()
	bindFlags()

	// A missing file falls back to defaults; a broken one is reported when
	// the command asks for its configuration.
	configReadErr = nil
	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	case errors.As(err, &notFound), errors.Is(err, fs.ErrNotExist):
	default:
		configReadErr = err
	}
}

func bindFlags() {
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func configPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return defaultConfigName + ".yml"
}

// loadConfig loads the configuration, pointing the project root at dir when
// one is given on the command line.
func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		viper.Set("project.root", dir)
	}

	cfg, err := config.Load()
	if configReadErr != nil {
		err = configReadErr
	}
	if err != nil {
		return nil, errors.NewEnhancedError(
			"Failed to load configuration",
			errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration", err),
			errors.ConfigurationError(err.Error(), configPath()),
		)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	}), nil
}

func dirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
