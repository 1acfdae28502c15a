package cmd

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reliaudit/internal/bootstrap/logging"
	"reliaudit/internal/domain/checksum"
	domainreliability "reliaudit/internal/domain/reliability"
	"reliaudit/internal/errs"
	"reliaudit/internal/usecase/reliability"
)

func newScoreCmd(deps *appDeps) *cobra.Command {
	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Reliability audit log commands",
	}
	scoreCmd.AddCommand(
		newScoreRecordCmd(deps),
		newScoreAppendCmd(deps),
		newScoreHistoryCmd(deps),
		newScoreRecentCmd(deps),
		newScoreBySourceCmd(deps),
		newScoreByUserCmd(deps),
		newScoreSignificantCmd(deps),
		newScoreTrendsCmd(deps),
		newScoreActivityCmd(deps),
		newScoreVerifyCmd(deps),
	)
	return scoreCmd
}

func newScoreRecordCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Upsert field scores and append the resulting transition",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

			rawFields, _ := cmd.Flags().GetStringArray("field")
			fields := make([]reliability.FieldScoreInput, 0, len(rawFields))
			for _, raw := range rawFields {
				field, err := parseFieldScore(raw)
				if err != nil {
					return err
				}
				fields = append(fields, field)
			}

			model, _ := cmd.Flags().GetString("model")
			foreignKey, _ := cmd.Flags().GetString("id")
			source, _ := cmd.Flags().GetString("source")
			actorUser, _ := cmd.Flags().GetString("actor-user")
			actorService, _ := cmd.Flags().GetString("actor-service")
			message, _ := cmd.Flags().GetString("message")

			result, err := deps.Reliability.RecordScore(ctx, reliability.RecordScoreInput{
				Model:        strings.TrimSpace(model),
				ForeignKey:   strings.TrimSpace(foreignKey),
				Fields:       fields,
				Source:       domainreliability.Source(strings.TrimSpace(source)),
				ActorUserID:  optionalString(actorUser),
				ActorService: optionalString(actorService),
				Message:      optionalString(message),
			})
			if err != nil {
				logging.Error(ctx, "record score failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "record score")
			}

			entry := result.Entry
			from := "null"
			if entry.FromTotalScore != nil {
				from = domainreliability.FormatScore(*entry.FromTotalScore)
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(),
				"score recorded: id=%s entity=%s/%s total=%s->%s fields=%d checksum=%s\n",
				entry.ID, entry.Model, entry.ForeignKey, from,
				domainreliability.FormatScore(entry.ToTotalScore), len(result.Fields), entry.Checksum,
			); err != nil {
				return errs.Wrap(err, "write record output")
			}
			return nil
		}),
	}
	addEntityFlags(cmd)
	cmd.Flags().StringArray("field", nil, "Field score as name=score[:weight[:max_score]] (repeatable)")
	addActorFlags(cmd)
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func newScoreAppendCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append one transition with explicit from/to state",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

			model, _ := cmd.Flags().GetString("model")
			foreignKey, _ := cmd.Flags().GetString("id")
			to, _ := cmd.Flags().GetFloat64("to")
			fromRaw, _ := cmd.Flags().GetString("from")
			toFieldsRaw, _ := cmd.Flags().GetString("to-fields")
			fromFieldsRaw, _ := cmd.Flags().GetString("from-fields")
			source, _ := cmd.Flags().GetString("source")
			actorUser, _ := cmd.Flags().GetString("actor-user")
			actorService, _ := cmd.Flags().GetString("actor-service")
			message, _ := cmd.Flags().GetString("message")

			input := reliability.AppendInput{
				Model:        strings.TrimSpace(model),
				ForeignKey:   strings.TrimSpace(foreignKey),
				Source:       domainreliability.Source(strings.TrimSpace(source)),
				ToTotalScore: to,
				ActorUserID:  optionalString(actorUser),
				ActorService: optionalString(actorService),
				Message:      optionalString(message),
			}
			if strings.TrimSpace(fromRaw) != "" {
				from, err := strconv.ParseFloat(strings.TrimSpace(fromRaw), 64)
				if err != nil {
					return errs.Invalid("from_total_score", "must be a number")
				}
				input.FromTotalScore = &from
			}
			toFields, err := parseJSONObject("to_field_scores", toFieldsRaw)
			if err != nil {
				return err
			}
			input.ToFieldScores = toFields
			if strings.TrimSpace(fromFieldsRaw) != "" {
				fromFields, err := parseJSONObject("from_field_scores", fromFieldsRaw)
				if err != nil {
					return err
				}
				input.FromFieldScores = fromFields
			}

			entry, err := deps.Reliability.Append(ctx, input)
			if err != nil {
				logging.Error(ctx, "append audit entry failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "append audit entry")
			}
			return writeJSON(cmd.OutOrStdout(), toEntryView(entry))
		}),
	}
	addEntityFlags(cmd)
	cmd.Flags().Float64("to", 0, "New total score [0,1]")
	cmd.Flags().String("from", "", "Previous total score [0,1]; empty for the first entry")
	cmd.Flags().String("to-fields", "{}", "New per-field snapshot as a JSON object")
	cmd.Flags().String("from-fields", "", "Previous per-field snapshot as a JSON object")
	addActorFlags(cmd)
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newScoreHistoryCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List every transition of one entity, newest first",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			foreignKey, _ := cmd.Flags().GetString("id")
			entries, err := deps.Reliability.FindFor(cmd.Context(), strings.TrimSpace(model), strings.TrimSpace(foreignKey))
			if err != nil {
				return errs.Wrap(err, "find entity history")
			}
			return writeEntries(cmd, entries)
		}),
	}
	addEntityFlags(cmd)
	addFormatFlag(cmd)
	return cmd
}

func newScoreRecentCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent transitions of a model",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			limit, _ := cmd.Flags().GetInt("limit")
			days, _ := cmd.Flags().GetInt("days")
			entries, err := deps.Reliability.FindRecent(cmd.Context(), strings.TrimSpace(model), limit, days)
			if err != nil {
				return errs.Wrap(err, "find recent entries")
			}
			return writeEntries(cmd, entries)
		}),
	}
	addModelFlag(cmd)
	cmd.Flags().Int("limit", reliability.DefaultRecentLimit, "Max entries")
	cmd.Flags().Int("days", reliability.DefaultRecentDays, "Look back this many days")
	addFormatFlag(cmd)
	return cmd
}

func newScoreBySourceCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "by-source",
		Short: "List transitions produced by one source",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			source, _ := cmd.Flags().GetString("source")
			model, _ := cmd.Flags().GetString("model")
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := deps.Reliability.FindBySource(cmd.Context(), domainreliability.Source(strings.TrimSpace(source)), strings.TrimSpace(model), limit)
			if err != nil {
				return errs.Wrap(err, "find entries by source")
			}
			return writeEntries(cmd, entries)
		}),
	}
	cmd.Flags().String("source", "", "Source (user|ai|admin|system)")
	cmd.Flags().String("model", "", "Optional model filter")
	cmd.Flags().Int("limit", reliability.DefaultQueryLimit, "Max entries")
	addFormatFlag(cmd)
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newScoreByUserCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "by-user",
		Short: "List transitions attributed to one user",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			user, _ := cmd.Flags().GetString("user")
			model, _ := cmd.Flags().GetString("model")
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := deps.Reliability.FindByUser(cmd.Context(), strings.TrimSpace(user), strings.TrimSpace(model), limit)
			if err != nil {
				return errs.Wrap(err, "find entries by user")
			}
			return writeEntries(cmd, entries)
		}),
	}
	cmd.Flags().String("user", "", "Actor user id")
	cmd.Flags().String("model", "", "Optional model filter")
	cmd.Flags().Int("limit", reliability.DefaultQueryLimit, "Max entries")
	addFormatFlag(cmd)
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newScoreSignificantCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "significant",
		Short: "List transitions whose total moved by at least min-delta",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			minDelta, _ := cmd.Flags().GetFloat64("min-delta")
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := deps.Reliability.FindSignificantChanges(cmd.Context(), strings.TrimSpace(model), minDelta, limit)
			if err != nil {
				return errs.Wrap(err, "find significant changes")
			}
			return writeEntries(cmd, entries)
		}),
	}
	addModelFlag(cmd)
	cmd.Flags().Float64("min-delta", reliability.DefaultMinDelta, "Minimum absolute change of the total")
	cmd.Flags().Int("limit", reliability.DefaultSignificantLimit, "Max entries")
	addFormatFlag(cmd)
	return cmd
}

func newScoreTrendsCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Count improvements, degradations and unchanged transitions",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			days, _ := cmd.Flags().GetInt("days")
			format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON)
			if err != nil {
				return err
			}
			trends, err := deps.Reliability.ScoreTrends(cmd.Context(), strings.TrimSpace(model), days)
			if err != nil {
				return errs.Wrap(err, "compute score trends")
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), trends)
			}
			return writeTable(cmd.OutOrStdout(), []string{"IMPROVEMENTS", "DEGRADATIONS", "NO_CHANGE"}, [][]string{{
				strconv.Itoa(trends.Improvements), strconv.Itoa(trends.Degradations), strconv.Itoa(trends.NoChange),
			}})
		}),
	}
	addModelFlag(cmd)
	cmd.Flags().Int("days", reliability.DefaultAnalyticsDays, "Look back this many days")
	addFormatFlag(cmd)
	return cmd
}

func newScoreActivityCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Count transitions per source",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			days, _ := cmd.Flags().GetInt("days")
			format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON)
			if err != nil {
				return err
			}
			counts, err := deps.Reliability.ActivityBySource(cmd.Context(), strings.TrimSpace(model), days)
			if err != nil {
				return errs.Wrap(err, "compute activity by source")
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), counts)
			}
			sources := make([]string, 0, len(counts))
			for source := range counts {
				sources = append(sources, string(source))
			}
			sort.Strings(sources)
			rows := make([][]string, 0, len(sources))
			for _, source := range sources {
				rows = append(rows, []string{source, strconv.Itoa(counts[domainreliability.Source(source)])})
			}
			return writeTable(cmd.OutOrStdout(), []string{"SOURCE", "COUNT"}, rows)
		}),
	}
	addModelFlag(cmd)
	cmd.Flags().Int("days", reliability.DefaultAnalyticsDays, "Look back this many days")
	addFormatFlag(cmd)
	return cmd
}

func newScoreVerifyCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute and compare the checksum of every matching entry",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
			model, _ := cmd.Flags().GetString("model")
			foreignKey, _ := cmd.Flags().GetString("id")
			format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON)
			if err != nil {
				return err
			}

			result, err := deps.Reliability.VerifyChecksums(ctx, strings.TrimSpace(model), strings.TrimSpace(foreignKey))
			if err != nil {
				return errs.Wrap(err, "verify checksums")
			}

			if format == formatJSON {
				if err := writeJSON(cmd.OutOrStdout(), verificationView(result)); err != nil {
					return err
				}
			} else {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "verified=%d failed=%d\n", result.Verified, result.Failed); err != nil {
					return errs.Wrap(err, "write verify output")
				}
				if result.Failed > 0 {
					rows := make([][]string, 0, len(result.Failures))
					for _, failure := range result.Failures {
						rows = append(rows, []string{failure.LogID, failure.ExpectedChecksum, failure.ComputedChecksum, failure.Reason})
					}
					if err := writeTable(cmd.OutOrStdout(), []string{"LOG_ID", "EXPECTED", "COMPUTED", "REASON"}, rows); err != nil {
						return err
					}
				}
			}

			if result.Failed > 0 {
				logging.Warn(ctx, "audit log tampering detected", slog.Int("failed", result.Failed))
				return findings(fmt.Sprintf("%d audit log entries failed checksum verification", result.Failed))
			}
			return nil
		}),
	}
	addModelFlag(cmd)
	cmd.Flags().String("id", "", "Optional foreign key to restrict verification to one entity")
	addFormatFlag(cmd)
	return cmd
}

type failureView struct {
	LogID            string `json:"log_id"`
	ExpectedChecksum string `json:"expected_checksum"`
	ComputedChecksum string `json:"computed_checksum"`
	Created          string `json:"created"`
	Reason           string `json:"reason"`
}

func verificationView(result domainreliability.VerificationResult) map[string]any {
	failures := make([]failureView, 0, len(result.Failures))
	for _, failure := range result.Failures {
		view := failureView{
			LogID:            failure.LogID,
			ExpectedChecksum: failure.ExpectedChecksum,
			ComputedChecksum: failure.ComputedChecksum,
			Reason:           failure.Reason,
		}
		if !failure.Created.IsZero() {
			view.Created = checksum.FormatTime(failure.Created)
		}
		failures = append(failures, view)
	}
	return map[string]any{
		"verified": result.Verified,
		"failed":   result.Failed,
		"failures": failures,
	}
}

func writeEntries(cmd *cobra.Command, entries []domainreliability.LogEntry) error {
	format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON)
	if err != nil {
		return err
	}
	if format == formatJSON {
		return writeJSON(cmd.OutOrStdout(), entryViews(entries))
	}
	return writeTable(cmd.OutOrStdout(), entryHeader, entryRows(entries))
}

// parseFieldScore reads name=score[:weight[:max_score]]. Weight defaults to 1.
func parseFieldScore(raw string) (reliability.FieldScoreInput, error) {
	name, values, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok || strings.TrimSpace(name) == "" {
		return reliability.FieldScoreInput{}, errs.Invalid("field", "%q must look like name=score[:weight[:max_score]]", raw)
	}
	parts := strings.Split(values, ":")
	if len(parts) > 3 {
		return reliability.FieldScoreInput{}, errs.Invalid("field", "%q has too many components", raw)
	}

	numbers := make([]float64, len(parts))
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return reliability.FieldScoreInput{}, errs.Invalid("field", "%q: %q is not a number", raw, part)
		}
		numbers[i] = value
	}

	input := reliability.FieldScoreInput{Field: strings.TrimSpace(name), Score: numbers[0], Weight: 1}
	if len(numbers) > 1 {
		input.Weight = numbers[1]
	}
	if len(numbers) > 2 {
		input.MaxScore = &numbers[2]
	}
	return input, nil
}

func parseJSONObject(field string, raw string) (map[string]any, error) {
	decoded, err := checksum.DecodeJSON(raw)
	if err != nil {
		return nil, errs.Invalid(field, "must be a JSON object: %v", err)
	}
	object, ok := decoded.(map[string]any)
	if !ok {
		return nil, errs.Invalid(field, "must be a JSON object")
	}
	return object, nil
}

func stringFlag(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return value
}

func addModelFlag(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "Scored model name, e.g. Products")
	_ = cmd.MarkFlagRequired("model")
}

func addEntityFlags(cmd *cobra.Command) {
	addModelFlag(cmd)
	cmd.Flags().String("id", "", "Foreign key (UUID) of the scored entity")
	_ = cmd.MarkFlagRequired("id")
}

func addActorFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "system", "Source of the change (user|ai|admin|system)")
	cmd.Flags().String("actor-user", "", "Acting user id (UUID)")
	cmd.Flags().String("actor-service", "", "Acting service name")
	cmd.Flags().String("message", "", "Free text note, not covered by the checksum")
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().String("format", formatTable, "Output format (table|json)")
}

func init() {
	rootCmd.AddCommand(newScoreCmd(nil))
}
