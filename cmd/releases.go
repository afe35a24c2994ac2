package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relcli/internal/netmgr"
)

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List all published releases with their metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := netmgr.New(&cfg, log)
		releases := m.FetchAllReleaseInfo(cmd.Context())
		if len(releases) == 0 {
			fmt.Println("No releases available.")
			return nil
		}

		for _, r := range releases {
			marker := " "
			if r.Entry.Latest {
				marker = "*"
			}
			kind := ""
			if r.Entry.Profiler {
				kind = " (profiler)"
			}
			fmt.Printf("%s %-12s %s  %d files%s\n",
				marker, r.Entry.Version, r.Manifest.UploadDate,
				len(r.Manifest.Files), kind)
			if r.Manifest.ReleaseNotes != "" {
				fmt.Printf("    %s\n", r.Manifest.ReleaseNotes)
			}
		}
		return nil
	},
}
