package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/quota/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and catalog files",
	Long: `Validate the configuration file and, when configured, the limit
catalog file, without opening any databases.

Examples:
  # Validate the default config file
  ganymede validate

  # Validate a specific config file
  ganymede validate --config /etc/ganymede/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}
	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)

	if cfg.Quota.CatalogPath != "" {
		cat, err := catalog.LoadFile(cfg.Quota.CatalogPath)
		if err != nil {
			return cli.NewCommandError("validate", err)
		}
		fmt.Printf("✓ Limit catalog valid: %s (%d models)\n", cfg.Quota.CatalogPath, len(cat.Models()))
	}

	return nil
}
