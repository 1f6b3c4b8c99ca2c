package main

import (
	"encoding/json"
	"fmt"

	"github.com/mohammad-safakhou/webchat/internal/runtime"
	"github.com/mohammad-safakhou/webchat/repository/redis_repository"
	"github.com/mohammad-safakhou/webchat/tools/web_fetch"
	"github.com/spf13/cobra"
)

func scrapeCMD(cfgPath *string) *cobra.Command {
	var useCache bool
	var scrape = &cobra.Command{
		Use:   "scrape <url>...",
		Short: "Scrape pages and print the extracted content as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			ctx := cmd.Context()

			renderer, err := web_fetch.NewRenderer(cfg.Scraper)
			if err != nil {
				return err
			}
			var cache web_fetch.Cache
			if useCache {
				client, err := redis_repository.Conn(ctx, cfg.Storage.Redis)
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				cache = redis_repository.NewScrapeCache(client, redis_repository.ScrapeCacheOptions{
					TTL:      cfg.Scraper.CacheTTL,
					MaxBytes: cfg.Scraper.MaxCacheBytes,
				}, log, nil)
			}

			results := runtime.NewScraper(cfg, renderer, cache, log, nil).ScrapeAll(ctx, args)
			out, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return fmt.Errorf("encode results: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	scrape.Flags().BoolVar(&useCache, "cache", false, "read and populate the Redis scrape cache")

	return scrape
}
