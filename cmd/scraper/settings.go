package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/ScrapeIt/internal/logger"
	"github.com/PentesterFlow/ScrapeIt/pkg/crawler"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show, export or import settings",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Long:  "Print the settings after applying --config, SCRAPER_* variables and the saved crawl settings.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := effectiveSettings()
			if err != nil {
				return err
			}
			var data []byte
			if asJSON {
				data, err = json.MarshalIndent(s, "", "  ")
				data = append(data, '\n')
			} else {
				data, err = s.ToYAML()
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of YAML")

	exportCmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Write the effective settings to a file",
		Long:  "Write the effective settings to a file, as JSON for .json paths and YAML otherwise.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := effectiveSettings()
			if err != nil {
				return err
			}
			if err := s.SaveToFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Settings written to %s\n", args[0])
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Save the crawl settings of a file to the store",
		Long: `Read a YAML or JSON settings file and save its crawl settings to the store,
where the server picks them up on its next start.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettingsImport(cmd, args[0])
		},
	}

	cmd.AddCommand(showCmd, exportCmd, importCmd)
	return cmd
}

// withSettingsService opens the store named by the loaded settings and
// passes a settings service over it to fn.
func withSettingsService(fn func(*crawler.SettingsService) error) error {
	s, err := crawler.LoadSettings(configFile)
	if err != nil {
		return err
	}
	store, err := openStore(s, true)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := crawler.NewSettingsService(s, store, logger.Nop())
	if err != nil {
		return err
	}
	return fn(service)
}

func effectiveSettings() (*crawler.Settings, error) {
	var out *crawler.Settings
	err := withSettingsService(func(service *crawler.SettingsService) error {
		out = service.Get()
		return nil
	})
	return out, err
}

func runSettingsImport(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var imported *crawler.Settings
	if strings.EqualFold(filepath.Ext(path), ".json") {
		imported = crawler.DefaultSettings()
		if err := json.Unmarshal(data, imported); err != nil {
			return fmt.Errorf("failed to parse settings: %w", err)
		}
		if err := imported.Validate(); err != nil {
			return err
		}
	} else if imported, err = crawler.FromYAML(data); err != nil {
		return err
	}

	return withSettingsService(func(service *crawler.SettingsService) error {
		view, err := service.Update(imported.ScraperView())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Imported crawl settings: max_depth=%d max_pages=%d\n", view.MaxDepth, view.MaxPages)
		return nil
	})
}
