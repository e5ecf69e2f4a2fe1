package cmd

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/dbpromote/internal/backup"
	"github.com/dbsmedya/dbpromote/internal/config"
	"github.com/dbsmedya/dbpromote/internal/logger"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Manage pre-promotion backups",
	Long: `Backups lists and prunes the SQL dumps taken before each promotion.

Backups live under the configured backup directory, one subdirectory
per run, and are pruned by retention count and age.`,
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List existing backups, newest first",
	RunE:  runBackupsList,
}

var backupsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete backups beyond the configured retention",
	RunE:  runBackupsPrune,
}

func init() {
	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsPruneCmd)
	rootCmd.AddCommand(backupsCmd)
}

// backupCoordinator builds a coordinator for the filesystem-only operations.
// Listing and pruning never touch the database, so no connection is opened.
func backupCoordinator() (*backup.Coordinator, *config.Config, error) {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.BatchSize, overrides.SkipBackup)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return backup.NewCoordinator(nil, nil, cfg.Backup, log), cfg, nil
}

func runBackupsList(cmd *cobra.Command, args []string) error {
	coordinator, cfg, err := backupCoordinator()
	if err != nil {
		return err
	}

	records, err := coordinator.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	printHeader("Backups: %s", cfg.Backup.Dir)
	fmt.Fprintln(outputWriter)

	if len(records) == 0 {
		fmt.Fprintln(outputWriter, "No backups found.")
		return nil
	}

	nameWidth := 0
	for _, record := range records {
		if w := runewidth.StringWidth(record.Name); w > nameWidth {
			nameWidth = w
		}
	}

	for _, record := range records {
		var rows int64
		for _, table := range record.Tables {
			rows += table.Rows
		}
		fmt.Fprintf(outputWriter, "  %s  %s  %s  %d table(s), %d row(s)\n",
			padRight(record.Name, nameWidth),
			record.CreatedAt.Format("2006-01-02 15:04:05"),
			padRight(formatSize(backupDirSize(record.Dir)), 10),
			len(record.Tables),
			rows,
		)
	}
	fmt.Fprintf(outputWriter, "\n%d backup(s)\n", len(records))
	return nil
}

// backupDirSize sums the sizes of every file under a backup directory.
func backupDirSize(dir string) int64 {
	var size int64
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, infoErr := d.Info(); infoErr == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGT"[exp])
}

func runBackupsPrune(cmd *cobra.Command, args []string) error {
	coordinator, cfg, err := backupCoordinator()
	if err != nil {
		return err
	}

	pruned, err := coordinator.Prune("")
	if err != nil {
		return fmt.Errorf("failed to prune backups: %w", err)
	}

	if pruned == 0 {
		fmt.Fprintln(outputWriter, "Nothing to prune.")
	} else {
		fmt.Fprintln(outputWriter, color.Green.Render(
			fmt.Sprintf("Pruned %d backup(s) beyond retention (%d kept / %d days)",
				pruned, cfg.Backup.RetentionCount, cfg.Backup.RetentionDays)))
	}
	return nil
}
