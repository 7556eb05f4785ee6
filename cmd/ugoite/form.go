package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/ugoite/ieapp/internal/forms"
)

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "manage form definitions",
}

var formUpsertFile string

var formUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "create or update a form from a JSON definition file",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(formUpsertFile)
		if err != nil {
			return err
		}
		var rf forms.RawForm
		if err := json.Unmarshal(raw, &rf); err != nil {
			return err
		}
		form, err := forms.Normalize(rf, false)
		if err != nil {
			return err
		}
		if err := h.Registry.UpsertForm(cmdContext(), form); err != nil {
			return err
		}
		return printResult(forms.EnrichedView(form))
	},
}

var formListCmd = &cobra.Command{
	Use:   "list",
	Short: "list form names",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		names, err := h.Registry.ListForms(cmdContext())
		if err != nil {
			return err
		}
		return printResult(names)
	},
}

var formShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "show a form's enriched definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		form, err := h.Registry.GetForm(cmdContext(), args[0])
		if err != nil {
			return err
		}
		return printResult(forms.EnrichedView(form))
	},
}

var formMigrateStrategies string

var formMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "upsert a form and replay field strategies over its entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openSpace(cmdContext())
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(formUpsertFile)
		if err != nil {
			return err
		}
		var rf forms.RawForm
		if err := json.Unmarshal(raw, &rf); err != nil {
			return err
		}
		form, err := forms.Normalize(rf, false)
		if err != nil {
			return err
		}
		strategies := forms.Strategies{}
		if formMigrateStrategies != "" {
			if err := json.Unmarshal([]byte(formMigrateStrategies), &strategies); err != nil {
				return err
			}
		}
		if err := h.MigrateForm(cmdContext(), form, strategies); err != nil {
			return err
		}
		return printResult(forms.EnrichedView(form))
	},
}

func init() {
	formUpsertCmd.Flags().StringVar(&formUpsertFile, "file", "", "path to a form definition JSON file")
	_ = formUpsertCmd.MarkFlagRequired("file")
	formMigrateCmd.Flags().StringVar(&formUpsertFile, "file", "", "path to a form definition JSON file")
	formMigrateCmd.Flags().StringVar(&formMigrateStrategies, "strategies", "", `field strategy JSON, e.g. {"a":"x","b":null}`)
	_ = formMigrateCmd.MarkFlagRequired("file")
	formCmd.AddCommand(formUpsertCmd, formListCmd, formShowCmd, formMigrateCmd)
}
