package cmd

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/domain/checksum"
	"reliaudit/internal/errs"
	"reliaudit/internal/usecase/linelog"
	"reliaudit/internal/usecase/logchecksum"
)

func newLogsCmd(deps *appDeps) *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Whole-file checksums of the log directory",
	}
	logsCmd.AddCommand(
		newLogsGenerateCmd(deps),
		newLogsVerifyCmd(deps),
		newLogsReportCmd(deps),
		newLogsBackupCmd(deps),
		newLogsMonitorCmd(deps),
	)
	return logsCmd
}

func newLogsGenerateCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compute and store reference checksums for every log file",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON, formatDetailed)
			if err != nil {
				return err
			}
			algorithms, err := algorithmsFlag(cmd)
			if err != nil {
				return err
			}

			records, err := deps.Checksums.Generate(cmd.Context(), algorithms)
			if err != nil {
				return errs.Wrap(err, "generate log checksums")
			}

			out := cmd.OutOrStdout()
			switch format {
			case formatJSON:
				return writeJSON(out, records)
			case formatDetailed:
				for _, record := range records {
					if _, err := fmt.Fprintf(out, "%s\n  size=%d mtime=%s permissions=%s\n",
						record.File, record.Size, record.ModTime.Format(time.RFC3339), record.Permissions); err != nil {
						return errs.Wrap(err, "write generate output")
					}
					for _, name := range sortedKeys(record.Checksums) {
						if _, err := fmt.Fprintf(out, "  %s: %s\n", name, record.Checksums[name]); err != nil {
							return errs.Wrap(err, "write generate output")
						}
					}
				}
				return nil
			default:
				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{record.File, strconv.FormatInt(record.Size, 10), record.Checksums[string(checksum.SHA256)]})
				}
				return writeTable(out, []string{"FILE", "SIZE", "SHA256"}, rows)
			}
		}),
	}
	addLogsFlags(cmd)
	return cmd
}

func newLogsVerifyCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare every log file with its reference checksums",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON, formatDetailed)
			if err != nil {
				return err
			}
			algorithms, err := algorithmsFlag(cmd)
			if err != nil {
				return err
			}

			result, err := deps.Checksums.Verify(cmd.Context(), algorithms)
			if err != nil {
				return errs.Wrap(err, "verify log checksums")
			}

			out := cmd.OutOrStdout()
			switch format {
			case formatJSON:
				if err := writeJSON(out, result); err != nil {
					return err
				}
			case formatDetailed:
				for _, file := range result.Files() {
					if _, err := fmt.Fprintf(out, "%s [%s]%s\n", file.File, file.Status, fileNote(file)); err != nil {
						return errs.Wrap(err, "write verify output")
					}
					for _, check := range file.Checks {
						line := fmt.Sprintf("  %s: %s", check.Algorithm, check.Status)
						if check.Status == logchecksum.AlgorithmFailed {
							line += fmt.Sprintf(" expected=%s actual=%s", check.Expected, check.Actual)
						}
						if _, err := fmt.Fprintln(out, line); err != nil {
							return errs.Wrap(err, "write verify output")
						}
					}
				}
			default:
				rows := make([][]string, 0, result.Total())
				for _, file := range result.Files() {
					rows = append(rows, []string{file.File, string(file.Status), strings.TrimSpace(fileNote(file))})
				}
				if err := writeTable(out, []string{"FILE", "STATUS", "NOTE"}, rows); err != nil {
					return err
				}
			}
			return verifyOutcome(cmd, result)
		}),
	}
	addLogsFlags(cmd)
	return cmd
}

// verifyOutcome maps failed or corrupted files to a non-zero exit. Files
// without a reference only produce a note.
func verifyOutcome(cmd *cobra.Command, result logchecksum.VerifyResult) error {
	if bad := len(result.Failed) + len(result.Corrupted); bad > 0 {
		return findings(fmt.Sprintf("%d log files failed integrity verification", bad))
	}
	if len(result.Missing) > 0 {
		if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "note: %d log files have no reference checksum; run `logs generate`\n", len(result.Missing)); err != nil {
			return errs.Wrap(err, "write verify note")
		}
	}
	return nil
}

func fileNote(file logchecksum.FileResult) string {
	var parts []string
	if file.Error != "" {
		parts = append(parts, file.Error)
	}
	if file.ModifiedSinceChecksum {
		parts = append(parts, fmt.Sprintf("modified %ds after checksum", file.ChecksumAgeSeconds))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, "; ")
}

func newLogsReportCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize log integrity with an overall status",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			format, err := checkFormat(stringFlag(cmd, "format"), formatHuman, formatJSON)
			if err != nil {
				return err
			}
			report, err := deps.Checksums.IntegrityReport(cmd.Context())
			if err != nil {
				return errs.Wrap(err, "build integrity report")
			}

			out := cmd.OutOrStdout()
			if format == formatJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else if _, err := fmt.Fprintf(out,
				"Log integrity report %s\nStatus: %s\nTotal logs: %d\nVerified: %d\nFailed: %d\nMissing checksums: %d\nCorrupted: %d\n",
				report.Timestamp.Format(time.RFC3339), statusStyle(report.OverallStatus).Render(string(report.OverallStatus)), report.TotalLogs,
				report.Summary.Verified, report.Summary.Failed, report.Summary.MissingChecksums, report.Summary.Corrupted,
			); err != nil {
				return errs.Wrap(err, "write report output")
			}

			switch report.OverallStatus {
			case logchecksum.OverallCritical, logchecksum.OverallWarning:
				return findings("log integrity status " + string(report.OverallStatus))
			}
			return nil
		}),
	}
	cmd.Flags().String("format", formatHuman, "Output format (human|json)")
	return cmd
}

func newLogsBackupCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Copy every log file and verify each copy against a fresh checksum",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			dir, _ := cmd.Flags().GetString("backup-dir")
			result, err := deps.Checksums.CreateVerifiedBackup(cmd.Context(), strings.TrimSpace(dir))
			if err != nil {
				return errs.Wrap(err, "create verified backup")
			}

			rows := make([][]string, 0, len(result.Files))
			for _, name := range sortedKeys(result.Files) {
				file := result.Files[name]
				rows = append(rows, []string{
					name,
					strconv.FormatBool(file.BackedUp),
					strconv.FormatBool(file.IntegrityVerified),
					strconv.FormatInt(file.Size, 10),
					file.Error,
				})
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "backup dir: %s\n", result.Dir); err != nil {
				return errs.Wrap(err, "write backup output")
			}
			if err := writeTable(cmd.OutOrStdout(), []string{"FILE", "BACKED_UP", "VERIFIED", "SIZE", "ERROR"}, rows); err != nil {
				return err
			}
			if !result.AllVerified() {
				return findings("backup contains unverified copies")
			}
			return nil
		}),
	}
	cmd.Flags().String("backup-dir", "", "Destination directory (default: <checksums.backup_dir>/<timestamp>)")
	return cmd
}

func newLogsMonitorCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the interval-gated integrity check",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
			once, _ := cmd.Flags().GetBool("once")
			force, _ := cmd.Flags().GetBool("force")
			watch, _ := cmd.Flags().GetBool("watch")

			if once {
				var (
					report logchecksum.Report
					ran    = true
					err    error
				)
				if force {
					report, err = deps.Monitor.Check(ctx)
				} else {
					report, ran, err = deps.Monitor.CheckIfDue(ctx)
				}
				if err != nil {
					return errs.Wrap(err, "run integrity check")
				}
				if !ran {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "integrity check not due")
					return errs.Wrap(err, "write monitor output")
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "integrity status: %s (verified=%d failed=%d missing=%d corrupted=%d)\n",
					report.OverallStatus, report.Summary.Verified, report.Summary.Failed,
					report.Summary.MissingChecksums, report.Summary.Corrupted,
				); err != nil {
					return errs.Wrap(err, "write monitor output")
				}
				return nil
			}

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				return deps.Monitor.Run(groupCtx)
			})
			if watch {
				path := deps.BulkWriter.Path()
				group.Go(func() error {
					return logchecksum.WatchBulkLog(groupCtx, deps.BulkVerifier, path, func(result linelog.VerifyResult) {
						if !result.Clean() {
							_, _ = fmt.Fprintf(cmd.OutOrStdout(), "bulk log corruption: lines %v\n", result.CorruptedLines)
						}
					})
				})
			}
			if err := group.Wait(); err != nil {
				return errs.Wrap(err, "run integrity monitor")
			}
			return nil
		}),
	}
	cmd.Flags().Bool("once", false, "Run at most one check and exit")
	cmd.Flags().Bool("force", false, "With --once, ignore the interval")
	cmd.Flags().Bool("watch", false, "Also re-verify the bulk action log on every write")
	return cmd
}

func statusStyle(status logchecksum.OverallStatus) lipgloss.Style {
	color := "42"
	switch status {
	case logchecksum.OverallCritical:
		color = "196"
	case logchecksum.OverallWarning:
		color = "214"
	case logchecksum.OverallInfo:
		color = "39"
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
}

func addLogsFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("algorithms", nil, "Digest algorithms (sha256,md5,sha1,sha512); default from config")
	cmd.Flags().String("format", formatTable, "Output format (table|json|detailed)")
}

func algorithmsFlag(cmd *cobra.Command) ([]checksum.Algorithm, error) {
	names, _ := cmd.Flags().GetStringSlice("algorithms")
	if len(names) == 0 {
		return nil, nil
	}
	return checksum.ParseAlgorithms(names)
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(newLogsCmd(nil))
}
