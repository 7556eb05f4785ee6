package main

import (
	"github.com/spf13/cobra"

	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/space"
)

var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "manage spaces",
}

var spaceCreateCmd = &cobra.Command{
	Use:   "create ID NAME",
	Short: "create a new space (fails if it already exists)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}
		ctx := cmdContext()
		store, err := objectstore.Open(ctx, cfg.StoreURI)
		if err != nil {
			return err
		}
		meta, err := space.Create(ctx, store, cfg.StoreURI, args[0], args[1])
		if err != nil {
			return err
		}
		return printResult(meta)
	},
}

var spaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "list known spaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}
		ctx := cmdContext()
		store, err := objectstore.Open(ctx, cfg.StoreURI)
		if err != nil {
			return err
		}
		ids, err := space.List(ctx, store)
		if err != nil {
			return err
		}
		return printResult(ids)
	},
}

var spaceShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "show a space's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}
		ctx := cmdContext()
		store, err := objectstore.Open(ctx, cfg.StoreURI)
		if err != nil {
			return err
		}
		meta, err := space.GetMeta(ctx, store, args[0])
		if err != nil {
			return err
		}
		return printResult(meta)
	},
}

func init() {
	spaceCmd.AddCommand(spaceCreateCmd, spaceListCmd, spaceShowCmd)
}
