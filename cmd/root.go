package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relcli/internal/config"
	"relcli/internal/logger"
	"relcli/internal/provider"
	"relcli/internal/vault"
)

var (
	cfgFile string
	verbose bool

	cfg config.Config
	log logger.Logger

	rootCmd = &cobra.Command{
		Use:   "relcli",
		Short: "Release distribution pipeline: publish, install and back up versioned builds",
		Long: `relcli packages a versioned file set into a compressed archive, publishes
it to redundant asset hosts plus a git-backed version index, and on the
consumer side downloads, verifies and installs releases with versioned
backup and rollback of the install directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			log, err = logger.Init(verbose)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			return cfg.Load(cfgFile)
		},
	}
)

// Execute runs the root command.
func Execute() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&cfgFile, "config", "c", "relcli.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(backupCmd)
}

// secretsFromConfig connects to Vault when an address is configured;
// without one, provider credentials come from the config file.
func secretsFromConfig(ctx context.Context) provider.Secrets {
	if cfg.Vault.Address == "" {
		return nil
	}
	opts := []vault.Option{vault.WithAddress(cfg.Vault.Address)}
	if cfg.Vault.Token != "" {
		opts = append(opts, vault.WithToken(cfg.Vault.Token))
	}
	if cfg.Vault.RoleID != "" && cfg.Vault.RoleName != "" {
		opts = append(opts, vault.WithAppRole(cfg.Vault.RoleID, cfg.Vault.RoleName))
	}
	client, err := vault.NewClient(ctx, opts...)
	if err != nil {
		log.Warn("vault unavailable, falling back to config-file credentials",
			"error", err.Error())
		return nil
	}
	return client
}

// printStatus feeds pipeline status messages to the terminal.
func printStatus(message string) {
	fmt.Println(message)
}

// printProgress renders a throttled percentage without flooding the line.
func printProgress(fraction float64) {
	fmt.Printf("\r%3.0f%%", fraction*100)
	if fraction >= 1.0 {
		fmt.Println()
	}
}
