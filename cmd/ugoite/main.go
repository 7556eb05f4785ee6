// Command ugoite is the CLI surface over the core: space, form, entry, and
// SQL lifecycle operations, printed as JSON for scripting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ugoite/ieapp/internal/objectstore"
	"github.com/ugoite/ieapp/internal/space"
	"github.com/ugoite/ieapp/internal/ugconfig"
)

var (
	storeURI   string
	spaceID    string
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "ugoite",
	Short: "ugoite manages forms, entries, and saved SQL in a file-backed knowledge store",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&storeURI, "store", "", "object-store URI (defaults to config store_uri)")
	rootCmd.PersistentFlags().StringVar(&spaceID, "space", "", "space id (defaults to config default_space)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to ugoite.yaml")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON results")

	rootCmd.AddCommand(spaceCmd, formCmd, entryCmd, sqlCmd, statsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ugoite:", err)
		os.Exit(1)
	}
}

func resolveConfig() (*ugconfig.Config, error) {
	cfg, err := ugconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	if storeURI != "" {
		cfg.StoreURI = storeURI
	}
	if spaceID != "" {
		cfg.DefaultSpace = spaceID
	}
	return cfg, nil
}

func printResult(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if jsonOutput {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdContext() context.Context {
	return context.Background()
}

// openSpace resolves config, opens the object store, and binds a space
// Handle for the configured (or --space-overridden) space id.
func openSpace(ctx context.Context) (*space.Handle, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DefaultSpace == "" {
		return nil, fmt.Errorf("no space specified: pass --space or set default_space in config")
	}
	store, err := objectstore.Open(ctx, cfg.StoreURI)
	if err != nil {
		return nil, err
	}
	return space.Open(ctx, store, cfg.StoreURI, cfg.DefaultSpace)
}
