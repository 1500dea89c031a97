package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agilbank/concierge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration after merging the config file,
environment variables and defaults. API keys are masked.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	loader := config.NewLoader(cfgFile)
	fmt.Printf("Config file: %s\n\n", loader.GetConfigPath())
	fmt.Println(cfg.String())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg := config.DefaultConfig()
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration written to: %s\n", loader.GetConfigPath())
	fmt.Println("Set engine credentials via the file or the CONCIERGE_ENGINES_OPENAI_KEY / CONCIERGE_ENGINES_ANTHROPIC_KEY environment variables, then run: concierge serve")
	return nil
}
