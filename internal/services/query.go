package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ListCache stores complete page results. Implementations must treat any
// failure as a miss; the query path never depends on the cache.
type ListCache interface {
	ReviewListKey(ctx context.Context, filter models.ReviewFilter, page models.PageRequest) (string, error)
	GetReviewList(ctx context.Context, key string) (*models.PageResult, error)
	CacheReviewList(ctx context.Context, key string, result *models.PageResult, expiration time.Duration) error
	InvalidateReviewLists(ctx context.Context) error
}

// FacetPolicy decides which filters apply when collecting distinct authors.
type FacetPolicy string

const (
	// FacetsAll ignores every filter so the author selector always lists every choice.
	FacetsAll FacetPolicy = "all"
	// FacetsFiltered applies search and rating but never the author filter itself.
	FacetsFiltered FacetPolicy = "filtered"
)

// ParseFacetPolicy accepts the config spelling of a policy.
func ParseFacetPolicy(raw string) (FacetPolicy, error) {
	switch FacetPolicy(raw) {
	case "", FacetsAll:
		return FacetsAll, nil
	case FacetsFiltered:
		return FacetsFiltered, nil
	}
	return "", fmt.Errorf("unknown facet policy %q", raw)
}

type QueryOptions struct {
	PageSize int
	Facets   FacetPolicy
	CacheTTL time.Duration
}

// QueryService turns filters and a page number into a paginated, faceted result.
type QueryService struct {
	repo     models.ReviewRepository
	cache    ListCache
	logger   *logrus.Logger
	pageSize int
	facets   FacetPolicy
	cacheTTL time.Duration
}

func NewQueryService(repo models.ReviewRepository, cache ListCache, opts QueryOptions, logger *logrus.Logger) *QueryService {
	if opts.PageSize < 1 {
		opts.PageSize = models.DefaultPageSize
	}
	if opts.Facets == "" {
		opts.Facets = FacetsAll
	}
	return &QueryService{
		repo:     repo,
		cache:    cache,
		logger:   logger,
		pageSize: opts.PageSize,
		facets:   opts.Facets,
		cacheTTL: opts.CacheTTL,
	}
}

// ListReviews returns one page of reviews matching filter. A page below 1 is
// treated as page 1. Storage failures surface as ErrStorageUnavailable.
func (s *QueryService) ListReviews(ctx context.Context, filter models.ReviewFilter, page int) (*models.PageResult, error) {
	req := models.NewPageRequest(page, s.pageSize)

	log := s.logger.WithFields(logrus.Fields{
		"search": filter.Search,
		"author": filter.Author,
		"rating": filter.Rating,
		"page":   req.Page,
	})

	cacheKey := s.cacheKey(ctx, filter, req)
	if cacheKey != "" {
		if cached, err := s.cache.GetReviewList(ctx, cacheKey); err == nil {
			log.Debug("Review list served from cache")
			return cached, nil
		}
	}

	result, err := s.query(ctx, filter, req)
	if err != nil {
		log.WithError(err).Error("Review list query failed")
		return nil, err
	}

	if cacheKey != "" && s.cacheTTL > 0 {
		if err := s.cache.CacheReviewList(ctx, cacheKey, result, s.cacheTTL); err != nil {
			log.WithError(err).Warn("Failed to cache review list")
		}
	}

	log.WithFields(logrus.Fields{
		"results": len(result.Reviews),
		"pages":   result.Pages,
	}).Debug("Review list query completed")

	return result, nil
}

// query runs the page slice, the filtered count and the facet lookup as three
// independent reads.
func (s *QueryService) query(ctx context.Context, filter models.ReviewFilter, req models.PageRequest) (*models.PageResult, error) {
	var (
		reviews []models.Review
		total   int64
		authors []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reviews, err = s.repo.Find(gctx, filter, req.Skip(), req.Take())
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		authors, err = s.repo.DistinctAuthors(gctx, s.facetFilter(filter))
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, unavailable("list reviews", err)
	}

	if reviews == nil {
		reviews = []models.Review{}
	}
	if authors == nil {
		authors = []string{}
	}

	return &models.PageResult{
		Reviews:       reviews,
		Pages:         req.TotalPages(total),
		UniqueAuthors: authors,
	}, nil
}

// cacheKey returns "" when caching is off or the key cannot be resolved.
func (s *QueryService) cacheKey(ctx context.Context, filter models.ReviewFilter, req models.PageRequest) string {
	if s.cache == nil {
		return ""
	}
	key, err := s.cache.ReviewListKey(ctx, filter, req)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to resolve review list cache key")
		return ""
	}
	return key
}

func (s *QueryService) facetFilter(filter models.ReviewFilter) models.ReviewFilter {
	if s.facets == FacetsFiltered {
		return filter.WithoutAuthor()
	}
	return models.ReviewFilter{}
}

// unavailable keeps classified errors and wraps everything else.
func unavailable(op string, err error) error {
	if models.KindOf(err) != "" {
		return err
	}
	return models.NewUnavailableError(op+" failed", err)
}
