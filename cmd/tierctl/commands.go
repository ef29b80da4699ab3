package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/egibi/tierd/internal/tiering"
)

var auditLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show controller status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := client().Status(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Policy: threshold %d%%, keep %d months, auto-archive every %dh, keep %d backups\n",
			status.Config.ThresholdPercent, status.Config.KeepMonths,
			status.Config.AutoArchiveIntervalHours, status.Config.MaxPostgresBackups)
		fmt.Printf("External disk: %s\n", status.Config.ExternalDiskPath)

		printDisk := func(label string, usage *tiering.Usage) {
			if usage == nil {
				fmt.Printf("%s: unavailable\n", label)
				return
			}
			fmt.Printf("%s: %s of %s used (%.1f%%)\n", label,
				formatSize(float64(usage.UsedBytes)), formatSize(float64(usage.TotalBytes)),
				usage.UsagePercent)
		}
		printDisk("Hot disk", status.HotDisk)
		printDisk("Cold disk", status.ColdDisk)

		if status.ThresholdExceeded {
			fmt.Println("Threshold: EXCEEDED")
		} else {
			fmt.Println("Threshold: ok")
		}
		fmt.Printf("Archived partitions: %d\n", status.ArchivedPartitionCount)

		for action, s := range status.OperationStats {
			fmt.Printf("%s: %d runs, p50 %.0fms, p95 %.0fms, p99 %.0fms\n",
				action, s.Count, s.P50Ms, s.P95Ms, s.P99Ms)
		}
		return nil
	},
}

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List hot and archived partitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := client().Partitions(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
		fmt.Fprintln(w, "Tier\tPartition\tRows\tSize\tFlags")
		fmt.Fprintln(w, "----\t---------\t----\t----\t-----")
		for _, p := range list.Hot {
			flags := ""
			if p.IsActive {
				flags = "active"
			} else if p.IsArchiveEligible {
				flags = "eligible"
			}
			fmt.Fprintf(w, "hot\t%s\t%d\t%s\t%s\n",
				p.Name, p.RowCount, formatSize(float64(p.DiskSizeBytes)), flags)
		}
		for _, p := range list.Cold {
			fmt.Fprintf(w, "cold\t%s\t-\t%s\tarchived %s\n",
				p.Name, formatSize(float64(p.SizeBytes)), p.ArchivedAt.Format("2006-01-02"))
		}
		return w.Flush()
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive [partition...]",
	Short: "Archive partitions to the external disk",
	Long: `Archive the named partitions, or every partition beyond the retention
horizon when none are named.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().Archive(cmd.Context(), args)
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <partition>",
	Short: "Restore an archived partition to the hot tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Run a database backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().Backup(cmd.Context())
		if err != nil {
			return err
		}
		return printResult(result)
	},
}

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List retained database backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		backups, err := client().ListBackups(cmd.Context())
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println("No backups found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
		fmt.Fprintln(w, "Name\tSize\tCreated")
		fmt.Fprintln(w, "----\t----\t-------")
		for _, b := range backups {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				b.Name, formatSize(float64(b.SizeBytes)), b.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune expired OIDC tokens and stale authorizations",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := client().CleanupTokens(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Expired tokens pruned: %d\n", result.ExpiredTokensPruned)
		fmt.Printf("Stale authorizations pruned: %d\n", result.StaleAuthorizationsPruned)
		if !result.VacuumCompleted {
			fmt.Printf("Warning: %s\n", result.Message)
		}
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the lifecycle audit trail",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := client().Audit(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Audit log is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
		fmt.Fprintln(w, "Time\tAction\tTarget\tResult\tDetails")
		fmt.Fprintln(w, "----\t------\t------\t------\t-------")
		for _, e := range entries {
			outcome := "ok"
			if !e.Success {
				outcome = "FAILED"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Target, outcome, e.Details)
		}
		return w.Flush()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the tiering policy",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the tiering policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := client().Config(cmd.Context())
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Update one tiering policy field",
	Long: `Update one field of the tiering policy. Fields: threshold, keep-months,
interval-hours, external-disk, max-backups.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		cfg, err := c.Config(cmd.Context())
		if err != nil {
			return err
		}

		field, value := args[0], args[1]
		if err := applyConfigField(&cfg, field, value); err != nil {
			return err
		}

		saved, err := c.SaveConfig(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(saved, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func applyConfigField(cfg *tiering.TieringConfig, field, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s expects an integer, got %q", field, value)
		}
		return n, nil
	}

	var err error
	switch field {
	case "threshold":
		cfg.ThresholdPercent, err = atoi()
	case "keep-months":
		cfg.KeepMonths, err = atoi()
	case "interval-hours":
		cfg.AutoArchiveIntervalHours, err = atoi()
	case "external-disk":
		cfg.ExternalDiskPath = value
	case "max-backups":
		cfg.MaxPostgresBackups, err = atoi()
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return err
}

// printResult renders an operation outcome; a failed operation is also a
// non-zero exit.
func printResult(result tiering.OperationResult) error {
	fmt.Println(result.Message)
	for _, d := range result.Details {
		fmt.Println("  " + d)
	}
	if !result.Success {
		return fmt.Errorf("operation failed")
	}
	return nil
}

// formatSize converts bytes to a human-readable format
func formatSize(bytes float64) string {
	const (
		_          = iota
		KB float64 = 1 << (10 * iota)
		MB
		GB
		TB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", bytes/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", bytes/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", bytes/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", bytes/KB)
	default:
		return fmt.Sprintf("%.0f bytes", bytes)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(partitionsCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(auditCmd)

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)

	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "number of entries to show")
}
