package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/webchat/tools/web_fetch"
	"github.com/mohammad-safakhou/webchat/tools/web_search"
	"github.com/spf13/cobra"
)

func searchCMD(cfgPath *string) *cobra.Command {
	var maxResults int
	var search = &cobra.Command{
		Use:   "search <query>",
		Short: "Run a web search with the configured provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			renderer, err := web_fetch.NewRenderer(cfg.Scraper)
			if err != nil {
				return err
			}
			searcher, err := web_search.NewWebSearcher(cfg.Search, renderer)
			if err != nil {
				return err
			}
			if maxResults <= 0 {
				maxResults = cfg.Search.MaxResults
			}

			results, err := searcher.Search(cmd.Context(), strings.Join(args, " "), maxResults)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			out, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return fmt.Errorf("encode results: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	search.Flags().IntVarP(&maxResults, "max", "n", 0, "maximum results (default from search.max_results)")

	return search
}
