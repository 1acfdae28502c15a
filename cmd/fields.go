package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	domainreliability "reliaudit/internal/domain/reliability"
	"reliaudit/internal/errs"
	"reliaudit/internal/usecase/reliability"
)

func newFieldsCmd(deps *appDeps) *cobra.Command {
	fieldsCmd := &cobra.Command{
		Use:   "fields",
		Short: "Current per-field reliability scores",
	}
	fieldsCmd.AddCommand(
		newFieldsGetCmd(deps),
		newFieldsUpsertCmd(deps),
		newFieldsStatsCmd(deps),
		newFieldsLowCmd(deps),
		newFieldsMissingCmd(deps),
		newFieldsTopCmd(deps),
		newFieldsWeightsCmd(deps),
	)
	return fieldsCmd
}

func newFieldsGetCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the current field scores of one or more entities",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON)
			if err != nil {
				return err
			}
			model, _ := cmd.Flags().GetString("model")
			ids, _ := cmd.Flags().GetStringArray("id")

			byEntity, err := deps.Reliability.GetFieldsForMany(cmd.Context(), strings.TrimSpace(model), ids)
			if err != nil {
				return errs.Wrap(err, "get fields")
			}

			keys := make([]string, 0, len(byEntity))
			for key := range byEntity {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			fields := make([]domainreliability.FieldScore, 0)
			for _, key := range keys {
				fields = append(fields, sortedFieldMap(byEntity[key])...)
			}

			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), fieldViews(fields))
			}
			return writeTable(cmd.OutOrStdout(), fieldHeader, fieldRows(fields))
		}),
	}
	addModelFlag(cmd)
	cmd.Flags().StringArray("id", nil, "Foreign key of the entity (repeatable)")
	addFormatFlag(cmd)
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newFieldsUpsertCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Insert or overwrite one field score",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			foreignKey, _ := cmd.Flags().GetString("id")
			field, _ := cmd.Flags().GetString("field")
			score, _ := cmd.Flags().GetFloat64("score")
			weight, _ := cmd.Flags().GetFloat64("weight")
			maxScore, _ := cmd.Flags().GetFloat64("max-score")
			notes, _ := cmd.Flags().GetString("notes")

			saved, err := deps.Reliability.UpsertField(cmd.Context(), reliability.UpsertFieldInput{
				Model:      strings.TrimSpace(model),
				ForeignKey: strings.TrimSpace(foreignKey),
				Field:      strings.TrimSpace(field),
				Score:      score,
				Weight:     weight,
				MaxScore:   maxScore,
				Notes:      optionalString(notes),
			})
			if err != nil {
				return errs.Wrap(err, "upsert field")
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "field saved: %s/%s %s score=%s weight=%s\n",
				saved.Model, saved.ForeignKey, saved.Field,
				domainreliability.FormatScore(saved.Score), formatWeight(saved.Weight),
			); err != nil {
				return errs.Wrap(err, "write upsert output")
			}
			return nil
		}),
	}
	addEntityFlags(cmd)
	cmd.Flags().String("field", "", "Field name (snake_case)")
	cmd.Flags().Float64("score", 0, "Score [0,1]")
	cmd.Flags().Float64("weight", 1, "Weight [0,1]")
	cmd.Flags().Float64("max-score", 1, "Maximum attainable score [0,1]")
	cmd.Flags().String("notes", "", "Optional notes")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func newFieldsStatsCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate field scores across all entities of a model",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON)
			if err != nil {
				return err
			}
			model, _ := cmd.Flags().GetString("model")
			field, _ := cmd.Flags().GetString("field")

			stats, err := deps.Reliability.Stats(cmd.Context(), strings.TrimSpace(model), strings.TrimSpace(field))
			if err != nil {
				return errs.Wrap(err, "field stats")
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			names := make([]string, 0, len(stats))
			for name := range stats {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				stat := stats[name]
				rows = append(rows, []string{
					name,
					strconv.FormatInt(stat.Count, 10),
					strconv.FormatFloat(stat.AvgScore, 'f', 3, 64),
					domainreliability.FormatScore(stat.MinScore),
					domainreliability.FormatScore(stat.MaxScore),
					formatWeight(stat.AvgWeight),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"FIELD", "COUNT", "AVG_SCORE", "MIN_SCORE", "MAX_SCORE", "AVG_WEIGHT"}, rows)
		}),
	}
	addModelFlag(cmd)
	cmd.Flags().String("field", "", "Optional field filter")
	addFormatFlag(cmd)
	return cmd
}

func newFieldsLowCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "low",
		Short: "List entities whose field scores at most --max",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			field, _ := cmd.Flags().GetString("field")
			maxScore, _ := cmd.Flags().GetFloat64("max")
			rows, err := deps.Reliability.FindLowScoring(cmd.Context(), strings.TrimSpace(model), strings.TrimSpace(field), maxScore)
			if err != nil {
				return errs.Wrap(err, "find low scoring fields")
			}
			return writeFields(cmd, rows)
		}),
	}
	addModelFieldFlags(cmd)
	cmd.Flags().Float64("max", reliability.DefaultLowScoreThreshold, "Score threshold (inclusive)")
	return cmd
}

func newFieldsMissingCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "missing",
		Short: "List entities whose field score is exactly zero",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			field, _ := cmd.Flags().GetString("field")
			rows, err := deps.Reliability.FindMissing(cmd.Context(), strings.TrimSpace(model), strings.TrimSpace(field))
			if err != nil {
				return errs.Wrap(err, "find missing fields")
			}
			return writeFields(cmd, rows)
		}),
	}
	addModelFieldFlags(cmd)
	return cmd
}

func newFieldsTopCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Rank fields by average score",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			limit, _ := cmd.Flags().GetInt("limit")
			rows, err := deps.Reliability.TopPerformingFields(cmd.Context(), strings.TrimSpace(model), limit)
			if err != nil {
				return errs.Wrap(err, "top performing fields")
			}
			return writeAverages(cmd, "AVG_SCORE", rows)
		}),
	}
	addModelFlag(cmd)
	cmd.Flags().Int("limit", reliability.DefaultTopFieldsLimit, "Max fields")
	addFormatFlag(cmd)
	return cmd
}

func newFieldsWeightsCmd(deps *appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Rank fields by average weight",
		RunE: bindRun(deps, func(cmd *cobra.Command, deps *appDeps) error {
			model, _ := cmd.Flags().GetString("model")
			rows, err := deps.Reliability.FieldWeights(cmd.Context(), strings.TrimSpace(model))
			if err != nil {
				return errs.Wrap(err, "field weights")
			}
			return writeAverages(cmd, "AVG_WEIGHT", rows)
		}),
	}
	addModelFlag(cmd)
	addFormatFlag(cmd)
	return cmd
}

func writeFields(cmd *cobra.Command, fields []domainreliability.FieldScore) error {
	format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON)
	if err != nil {
		return err
	}
	if format == formatJSON {
		return writeJSON(cmd.OutOrStdout(), fieldViews(fields))
	}
	return writeTable(cmd.OutOrStdout(), fieldHeader, fieldRows(fields))
}

func writeAverages(cmd *cobra.Command, column string, rows []domainreliability.FieldAverage) error {
	format, err := checkFormat(stringFlag(cmd, "format"), formatTable, formatJSON)
	if err != nil {
		return err
	}
	if format == formatJSON {
		out := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			out = append(out, map[string]any{"field": row.Field, "value": row.Value})
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		table = append(table, []string{row.Field, formatWeight(row.Value)})
	}
	return writeTable(cmd.OutOrStdout(), []string{"FIELD", column}, table)
}

func addModelFieldFlags(cmd *cobra.Command) {
	addModelFlag(cmd)
	cmd.Flags().String("field", "", "Field name (snake_case)")
	_ = cmd.MarkFlagRequired("field")
	addFormatFlag(cmd)
}

func init() {
	rootCmd.AddCommand(newFieldsCmd(nil))
}
