package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/playq/internal/config"
	"github.com/aatumaykin/playq/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "playq",
	Short: "Run playbooks against a pool of worker processes",
	Long: `playq executes YAML playbooks: each play applies an ordered list of
tasks to a set of hosts through a bounded pool of worker processes.
Results stream back over a local socket and are rendered by callback
plugins.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

var configPath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrExit()
		if errs := cfg.Validate(); len(errs) > 0 {
			fmt.Println("Configuration validation failed:")
			for _, e := range errs {
				fmt.Printf("  - %v\n", e)
			}
			os.Exit(1)
		}
		fmt.Println("Configuration is valid")
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfigOrExit()
		if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
			fmt.Printf("Failed to render configuration: %v\n", err)
			os.Exit(1)
		}
	},
}

// loadConfigOrExit loads the named config file, falling back to defaults
// when no file is present.
func loadConfigOrExit() *config.Config {
	path := configPath
	if path == "" {
		path = "playq.toml"
	}

	if _, err := os.Stat(path); err != nil {
		if configPath == "" && os.IsNotExist(err) {
			return config.Default()
		}
		fmt.Printf("Failed to read configuration: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func init() {
	configCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: ./playq.toml)")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
}
