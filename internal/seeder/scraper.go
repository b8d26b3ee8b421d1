package seeder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// Selectors locate reviews on a listing page. Field selectors are relative to
// Item. Next selects the link to the following listing page.
type Selectors struct {
	Item    string
	Title   string
	Content string
	Author  string
	Rating  string
	Next    string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Item:    ".review",
		Title:   ".review-title",
		Content: ".review-content",
		Author:  ".review-author",
		Rating:  ".review-rating",
		Next:    "a[rel=next]",
	}
}

type ScrapeOptions struct {
	UserAgent   string
	MaxPages    int // listing pages to visit, 0 means 1
	Limit       int // reviews to collect, 0 means no limit
	Delay       time.Duration
	Parallelism int
	Timeout     time.Duration
}

const maxTitleLength = 200

// Scraper extracts review bodies from HTML listing pages.
type Scraper struct {
	selectors Selectors
	opts      ScrapeOptions
	processor *ContentProcessor
	logger    *logrus.Logger
}

func NewScraper(selectors Selectors, opts ScrapeOptions, logger *logrus.Logger) *Scraper {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Scraper{
		selectors: selectors,
		opts:      opts,
		processor: NewContentProcessor(),
		logger:    logger,
	}
}

// Scrape visits startURL and follows next links up to MaxPages. Items missing
// a field or carrying an unreadable rating are skipped; they are counted in
// the returned skip total.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.ReviewInput, int, error) {
	var (
		mu        sync.Mutex
		reviews   []models.ReviewInput
		skipped   int
		visited   int
		scrapeErr error
	)

	c := s.newCollector()

	full := func() bool {
		return s.opts.Limit > 0 && len(reviews) >= s.opts.Limit
	}

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil || full() || visited >= s.opts.MaxPages {
			r.Abort()
			return
		}
		visited++
		s.logger.WithField("url", r.URL.String()).Debug("Visiting listing page")
	})

	c.OnHTML(s.selectors.Item, func(e *colly.HTMLElement) {
		input, ok := s.extract(e)

		mu.Lock()
		defer mu.Unlock()
		if full() {
			return
		}
		if !ok {
			skipped++
			return
		}
		reviews = append(reviews, input)
	})

	c.OnHTML(s.selectors.Next, func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href == "" {
			return
		}
		if err := e.Request.Visit(href); err != nil && err != colly.ErrAlreadyVisited {
			s.logger.WithError(err).WithField("href", href).Debug("Not following next link")
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if scrapeErr == nil {
			scrapeErr = fmt.Errorf("fetch %s: %w", r.Request.URL, err)
		}
	})

	if err := c.Visit(startURL); err != nil {
		return nil, 0, fmt.Errorf("failed to visit page: %w", err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return reviews, skipped, err
	}
	if scrapeErr != nil && len(reviews) == 0 {
		return nil, skipped, scrapeErr
	}
	if scrapeErr != nil {
		s.logger.WithError(scrapeErr).Warn("Some listing pages failed")
	}

	s.logger.WithFields(logrus.Fields{
		"pages":   visited,
		"reviews": len(reviews),
		"skipped": skipped,
	}).Info("Scrape completed")

	return reviews, skipped, nil
}

func (s *Scraper) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(s.opts.UserAgent),
	)

	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.opts.Parallelism,
		Delay:       s.opts.Delay,
	})

	c.SetRequestTimeout(s.opts.Timeout)
	return c
}

func (s *Scraper) extract(e *colly.HTMLElement) (models.ReviewInput, bool) {
	rating, ok := s.processor.ParseRating(e.ChildText(s.selectors.Rating))
	if !ok {
		// some sites only expose the value as an attribute
		rating, ok = s.processor.ParseRating(e.ChildAttr(s.selectors.Rating, "data-rating"))
	}

	input := models.ReviewInput{
		Title:   s.processor.Truncate(s.processor.CleanContent(e.ChildText(s.selectors.Title)), maxTitleLength),
		Content: s.processor.CleanContent(e.ChildText(s.selectors.Content)),
		Author:  s.processor.CleanAuthor(e.ChildText(s.selectors.Author)),
		Rating:  rating,
	}

	if !ok || input.Title == "" || input.Content == "" || input.Author == "" {
		s.logger.WithFields(logrus.Fields{
			"title":  input.Title,
			"author": input.Author,
		}).Debug("Skipping incomplete review")
		return input, false
	}
	return input, true
}
