package main

import (
	"github.com/spf13/cobra"

	"github.com/ugoite/ieapp/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "aggregate analytics for the current space",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext()
		h, err := openSpace(ctx)
		if err != nil {
			return err
		}
		agg := stats.NewAggregator(h.Entries, h.Registry)
		counts, err := agg.EntryCountByForm(ctx)
		if err != nil {
			return err
		}
		tags, err := agg.TagFrequency(ctx)
		if err != nil {
			return err
		}
		fill, err := agg.FieldFillRateAll(ctx)
		if err != nil {
			return err
		}
		return printResult(map[string]any{
			"entry_count_by_form": counts,
			"tag_frequency":       tags,
			"field_fill_rate":     fill,
		})
	},
}
