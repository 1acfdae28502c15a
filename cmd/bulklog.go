package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reliaudit/internal/errs"
	"reliaudit/internal/usecase/linelog"
)

func newBulkLogCmd(deps *appDeps) *cobra.Command {
	bulkCmd := &cobra.Command{
		Use:   "bulklog",
		Short: "Per-line checksummed bulk action log",
	}
	bulkCmd.AddCommand(newBulkLogVerifyCmd(deps), newBulkLogAppendCmd(deps))
	return bulkCmd
}

func newBulkLogVerifyCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every line of the bulk action log, optionally removing corrupt lines",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			path, _ := cmd.Flags().GetString("file")
			path = strings.TrimSpace(path)
			if path == "" {
				path = deps.BulkWriter.Path()
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			repair, _ := cmd.Flags().GetBool("repair")

			verifier := deps.BulkVerifier
			if verbose {
				verifier = verifier.Verbose()
			}

			var (
				result   linelog.VerifyResult
				repaired *linelog.RepairResult
				err      error
			)
			if repair {
				result, repaired, err = verifier.Scrub(cmd.Context(), path)
			} else {
				result, err = verifier.Verify(cmd.Context(), path)
			}
			if err != nil {
				return errs.Wrap(err, "verify bulk action log")
			}

			out := cmd.OutOrStdout()
			if !result.Exists {
				_, err := fmt.Fprintf(out, "%s: no log file\n", result.Path)
				return errs.Wrap(err, "write bulklog output")
			}
			if _, err := fmt.Fprintf(out, "%s: %d lines, %d valid, %d invalid\n",
				result.Path, result.TotalLines, result.ValidLines, result.InvalidLines); err != nil {
				return errs.Wrap(err, "write bulklog output")
			}
			if len(result.Issues) > 0 {
				rows := make([][]string, 0, len(result.Issues))
				for _, issue := range result.Issues {
					rows = append(rows, []string{strconv.Itoa(issue.Line), string(issue.Status), issue.Detail})
				}
				if err := writeTable(out, []string{"LINE", "STATUS", "DETAIL"}, rows); err != nil {
					return err
				}
			}
			if verbose && len(result.Valid) > 0 {
				lines := make([]int, 0, len(result.Valid))
				for line := range result.Valid {
					lines = append(lines, line)
				}
				sort.Ints(lines)
				rows := make([][]string, 0, len(lines))
				for _, line := range lines {
					check := result.Valid[line]
					rows = append(rows, []string{strconv.Itoa(line), check.Action, check.UserID, strconv.Itoa(check.IDCount)})
				}
				if err := writeTable(out, []string{"LINE", "ACTION", "USER", "IDS"}, rows); err != nil {
					return err
				}
			}

			if repaired != nil {
				if _, err := fmt.Fprintf(out, "repaired: removed %d lines, kept %d, backup %s\n",
					repaired.RemovedLines, repaired.KeptLines, repaired.BackupPath); err != nil {
					return errs.Wrap(err, "write bulklog output")
				}
			}
			// Corruption was found even when repair removed it.
			if !result.Clean() {
				return findings(fmt.Sprintf("%d corrupt lines in %s", result.InvalidLines, result.Path))
			}
			return nil
		}),
	}
	cmd.Flags().String("file", "", "Bulk action log path (default: logs.bulk_file)")
	cmd.Flags().Bool("verbose", false, "Also list every valid line")
	cmd.Flags().Bool("repair", false, "Back up the file and remove corrupt lines")
	return cmd
}

func newBulkLogAppendCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append one checksummed bulk action line",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			userID, _ := cmd.Flags().GetString("user")
			action, _ := cmd.Flags().GetString("action")
			ids, _ := cmd.Flags().GetStringArray("id")
			var payload map[string]any
			if raw := strings.TrimSpace(stringFlag(cmd, "payload")); raw != "" {
				parsed, err := parseJSONObject("payload", raw)
				if err != nil {
					return err
				}
				payload = parsed
			}

			line, err := deps.BulkWriter.Append(cmd.Context(), linelog.BulkAction{
				UserID:  userID,
				Action:  action,
				IDs:     ids,
				Payload: payload,
			})
			if err != nil {
				return errs.Wrap(err, "append bulk action")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), line)
			return errs.Wrap(err, "write bulklog output")
		}),
	}
	cmd.Flags().String("user", "", "Acting user id (default: anonymous)")
	cmd.Flags().String("action", "", "Action name")
	cmd.Flags().StringArray("id", nil, "Affected entity id (repeatable)")
	cmd.Flags().String("payload", "", "Action payload as a JSON object")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func init() {
	rootCmd.AddCommand(newBulkLogCmd(nil))
}
