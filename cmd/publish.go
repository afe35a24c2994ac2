package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"relcli/internal/provider"
	"relcli/internal/workflow"
)

var (
	publishVersion  string
	publishNotes    string
	publishProfiler bool
)

var publishCmd = &cobra.Command{
	Use:   "publish [files...]",
	Short: "Package the given files and publish them as a release",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		secrets := secretsFromConfig(ctx)

		assetProviders := provider.AssetProvidersFromConfig(ctx, &cfg, secrets, log)
		if len(assetProviders) == 0 {
			return errors.New("no asset providers configured")
		}
		indexProvider, err := provider.IndexProviderFromConfig(ctx, &cfg, secrets, log)
		if err != nil {
			return fmt.Errorf("initialize index provider: %w", err)
		}

		run := workflow.New(&cfg, publishVersion, publishNotes, args,
			assetProviders, indexProvider, printStatus, publishProfiler, log)
		return run.Run(ctx)
	},
}

func init() {
	publishCmd.Flags().
		StringVar(&publishVersion, "version", "", "semantic version for the release")
	publishCmd.Flags().
		StringVar(&publishNotes, "notes", "", "release notes")
	publishCmd.Flags().
		BoolVar(&publishProfiler, "profiler", false, "mark this release as a profiler build, excluded from latest selection")
	publishCmd.MarkFlagRequired("version")
}
