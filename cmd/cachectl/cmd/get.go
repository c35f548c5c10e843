package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wasmcache/component-cache/internal/component"
	"github.com/wasmcache/component-cache/internal/config"
)

var getMetadataVersion uint64

var getMetadataCmd = &cobra.Command{
	Use:   "get-metadata <component-id>",
	Short: "Fetch and print a component's metadata",
	Long: `Fetch a component's metadata through the configured ComponentService.

Pass --version to fetch a specific version; omit it to fetch the latest
version (which always bypasses the metadata cache's read, though the
result is still cached under the resolved version).`,
	Args: cobra.ExactArgs(1),
	RunE: runGetMetadata,
}

func init() {
	getMetadataCmd.Flags().Uint64Var(&getMetadataVersion, "version", 0, "component version (0 = latest)")
}

func runGetMetadata(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := defaultLogger(cfg)

	svc, closeSvc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	defer closeSvc()

	id, err := component.ParseId(args[0])
	if err != nil {
		return fmt.Errorf("invalid component id %q: %w", args[0], err)
	}

	var version *component.Version
	if getMetadataVersion != 0 {
		v := component.Version(getMetadataVersion)
		version = &v
	}

	md, err := svc.GetMetadata(context.Background(), id, version)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(md)
}
