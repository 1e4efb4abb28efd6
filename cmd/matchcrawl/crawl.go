package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"matchcrawl/pkg/config"
	"matchcrawl/pkg/crawler"
	"matchcrawl/pkg/logger"
)

var (
	crawlMaxPages  int
	crawlInteract  bool
	crawlLikeRatio float64
)

// crawlCmd runs the discovery walk and the profile backfill concurrently
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run the discovery and profile-backfill loops",
	Long: `Walk the user-discovery feed page by page, persisting every newly
seen user, while a background loop backfills detailed profile data for
records that lack it.

The run ends when the page limit is reached, the feed signals the end of
results, or an interrupt is received. State is persisted as it is acquired,
so an interrupted run resumes where it left off.`,
	Example: `  # Crawl with defaults
  matchcrawl crawl

  # Shorter walk with like/pass interactions enabled
  matchcrawl crawl --max-pages 50 --interact --like-ratio 0.6`,
	Run: runCrawl,
}

func init() {
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "maximum discovery pages per run (0 uses config)")
	crawlCmd.Flags().BoolVar(&crawlInteract, "interact", false, "enable randomized like/pass interactions")
	crawlCmd.Flags().Float64Var(&crawlLikeRatio, "like-ratio", -1, "probability of a like over a pass (0.0-1.0)")

	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) {
	flags := globalFlags()
	if crawlMaxPages > 0 {
		flags["max-pages"] = crawlMaxPages
	}
	if cmd.Flags().Changed("interact") {
		flags["interact"] = crawlInteract
	}
	if crawlLikeRatio >= 0 {
		flags["like-ratio"] = crawlLikeRatio
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()

	c, err := crawler.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize crawler")
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting crawl")
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("crawl failed")
		os.Exit(1)
	}
	log.Info("crawl stopped")
}
