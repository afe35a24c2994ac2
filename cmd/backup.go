package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relcli/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage versioned snapshots of the install directory",
}

func newBackupManager() (*backup.Manager, error) {
	return backup.NewManager(cfg.BinDir(), cfg.Backup.Dir, log)
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [label]",
	Short: "Snapshot the install directory under the given label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := newBackupManager()
		if err != nil {
			return err
		}
		return bm.Create(args[0], nil, printProgress)
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := newBackupManager()
		if err != nil {
			return err
		}
		names := bm.List()
		if len(names) == 0 {
			fmt.Println("No backups available.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [name]",
	Short: "Replace the install directory with the named backup (destructive)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := newBackupManager()
		if err != nil {
			return err
		}
		return bm.Restore(args[0], printProgress)
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete the named backup and its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bm, err := newBackupManager()
		if err != nil {
			return err
		}
		return bm.Delete(args[0])
	},
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)
}
