package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/config"
	"github.com/Ayash-Bera/reviewboard/backend/internal/database"
	"github.com/Ayash-Bera/reviewboard/backend/internal/repository"
	"github.com/Ayash-Bera/reviewboard/backend/internal/seeder"
	"github.com/Ayash-Bera/reviewboard/backend/internal/services"
	"github.com/Ayash-Bera/reviewboard/backend/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Command line flags
	startURL    = flag.String("url", "", "Listing page to start scraping from (required)")
	dryRun      = flag.Bool("dry-run", false, "Don't write to the database, just print what would be imported")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	pages       = flag.Int("pages", 1, "Maximum number of listing pages to follow")
	limit       = flag.Int("limit", 0, "Limit number of reviews to import (0 = all)")
	concurrent  = flag.Int("concurrent", 1, "Number of concurrent requests")
	delay       = flag.Duration("delay", time.Second, "Delay between requests")
	itemSel     = flag.String("item", seeder.DefaultSelectors().Item, "CSS selector for one review")
	titleSel    = flag.String("title", seeder.DefaultSelectors().Title, "CSS selector for the title, relative to item")
	contentSel  = flag.String("content", seeder.DefaultSelectors().Content, "CSS selector for the body, relative to item")
	authorSel   = flag.String("author", seeder.DefaultSelectors().Author, "CSS selector for the author, relative to item")
	ratingSel   = flag.String("rating", seeder.DefaultSelectors().Rating, "CSS selector for the rating, relative to item")
	nextPageSel = flag.String("next", seeder.DefaultSelectors().Next, "CSS selector for the next page link")
)

func main() {
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.InitLogger(cfg.Log.Level)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if *startURL == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var creator seeder.Creator
	if !*dryRun {
		if err := cfg.Validate(); err != nil {
			logger.WithError(err).Fatal("Invalid configuration")
		}

		dbManager, err := database.NewManager(&database.Config{
			DatabaseURL: cfg.Database.URL,
			RedisURL:    cfg.Redis.URL,
			LogLevel:    cfg.Database.LogLevel,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize database manager")
		}
		defer dbManager.Close()

		repoManager := repository.NewRepositoryManager(dbManager.DB)

		// Imports must invalidate pages the API has already cached.
		var listCache services.ListCache
		if dbManager.Redis != nil {
			listCache = database.NewCache(dbManager.Redis, logger)
		}
		creator = services.NewReviewService(repoManager.Reviews, listCache, logger)
	}

	scraper := seeder.NewScraper(seeder.Selectors{
		Item:    *itemSel,
		Title:   *titleSel,
		Content: *contentSel,
		Author:  *authorSel,
		Rating:  *ratingSel,
		Next:    *nextPageSel,
	}, seeder.ScrapeOptions{
		UserAgent:   cfg.Seed.UserAgent,
		MaxPages:    *pages,
		Limit:       *limit,
		Delay:       *delay,
		Parallelism: *concurrent,
	}, logger)

	logger.WithField("url", *startURL).Info("Starting review import...")

	inputs, skipped, err := scraper.Scrape(ctx, *startURL)
	if err != nil {
		logger.WithError(err).Fatal("Scrape failed")
	}

	stats, err := seeder.NewImporter(creator, *dryRun, logger).Import(ctx, inputs)
	if err != nil {
		logger.WithError(err).Fatal("Import interrupted")
	}

	logger.WithFields(logrus.Fields{
		"scraped":  len(inputs),
		"skipped":  skipped,
		"imported": stats.Imported,
		"invalid":  stats.Invalid,
		"failed":   stats.Failed,
	}).Info("Review import completed")
}
