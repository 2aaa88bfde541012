package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	scrapeUser     string
	scrapeRenderJS bool
	scrapeJSON     bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape URL...",
	Short: "Fetch, chunk and store pages for a user",
	Long: `Ingests each URL inline and reports the outcome per URL.
A failed URL does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringVarP(&scrapeUser, "user", "u", domain.DefaultUserKey, "user key the pages belong to")
	scrapeCmd.Flags().BoolVar(&scrapeRenderJS, "render-js", false, "render pages in headless chrome")
	scrapeCmd.Flags().BoolVar(&scrapeJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.ingest.ScrapeNow(cmd.Context(), scrapeUser, args, scrapeRenderJS)
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}

	if scrapeJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
	} else {
		for _, r := range results {
			if r.OK() {
				cmd.Printf("  ok    %s (%d chunks) %s\n", r.URL, r.Chunks, r.Title)
			} else {
				cmd.Printf("  fail  %s: %s\n", r.URL, r.Error)
			}
		}
	}

	if domain.Stored(results) == 0 {
		return fmt.Errorf("no pages stored")
	}
	return nil
}
