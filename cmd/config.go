package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/buttonstudio/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect ButtonStudio configuration",
	Long: `Inspect the configuration resolved from .buttonstudio.yml, BUTTONSTUDIO_*
environment variables (including ./.env) and defaults.

Examples:
  buttonstudio config show             # Effective configuration as YAML
  buttonstudio config show -o json
  buttonstudio config validate         # Report errors and warnings`,
}

var (
	configShowFlags     OutputFlags
	configValidateFlags OutputFlags
	configStrict        bool
)

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate the configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configValidateCmd)

	addOutputFlags(configShowCmd, &configShowFlags)
	configShowCmd.Flags().Lookup("output").DefValue = FormatYAML
	configShowFlags.Format = FormatYAML

	addOutputFlags(configValidateCmd, &configValidateFlags)
	configValidateCmd.Flags().BoolVar(&configStrict, "strict", false, "Treat warnings as errors")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if err := configShowFlags.Validate(); err != nil {
		return err
	}
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}

	return configShowFlags.write(cmd.OutOrStdout(), cfg, func(w io.Writer) error {
		return yaml.NewEncoder(w).Encode(cfg)
	})
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if err := configValidateFlags.Validate(); err != nil {
		return err
	}
	cfg, err := loadConfig(dirArg(args))
	if err != nil {
		return err
	}

	result := config.ValidateConfigWithDetails(cfg)
	if err := configValidateFlags.write(cmd.OutOrStdout(), result, func(w io.Writer) error {
		if !result.HasErrors() && !result.HasWarnings() {
			_, err := fmt.Fprintln(w, "✅ Configuration is valid")
			return err
		}
		_, err := fmt.Fprint(w, result.String())
		return err
	}); err != nil {
		return err
	}

	if result.HasErrors() || (configStrict && result.HasWarnings()) {
		return fmt.Errorf("configuration has %d error(s) and %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}
