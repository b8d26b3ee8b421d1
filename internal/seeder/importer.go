package seeder

import (
	"context"
	"fmt"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"github.com/Ayash-Bera/reviewboard/backend/internal/validation"
	"github.com/sirupsen/logrus"
)

// Creator persists a validated review. Satisfied by services.ReviewService.
type Creator interface {
	Create(ctx context.Context, draft validation.Draft) (*models.Review, error)
}

type Stats struct {
	Imported int
	Invalid  int
	Failed   int
}

// Importer runs scraped reviews through the shared schema and stores them.
type Importer struct {
	creator Creator
	logger  *logrus.Logger
	dryRun  bool
}

// NewImporter builds an importer. A nil creator implies a dry run.
func NewImporter(creator Creator, dryRun bool, logger *logrus.Logger) *Importer {
	return &Importer{
		creator: creator,
		logger:  logger,
		dryRun:  dryRun || creator == nil,
	}
}

// Import stops early only when ctx is done; individual failures are counted.
func (im *Importer) Import(ctx context.Context, inputs []models.ReviewInput) (Stats, error) {
	var stats Stats

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		log := im.logger.WithFields(logrus.Fields{
			"progress": fmt.Sprintf("%d/%d", i+1, len(inputs)),
			"title":    in.Title,
		})

		draft, err := validation.NewDraft(in)
		if err != nil {
			stats.Invalid++
			log.WithError(err).Warn("Review failed validation")
			continue
		}

		if im.dryRun {
			stats.Imported++
			log.WithFields(logrus.Fields{
				"author": draft.Input().Author,
				"rating": draft.Input().Rating,
			}).Info("DRY RUN: Would import review")
			continue
		}

		review, err := im.creator.Create(ctx, draft)
		if err != nil {
			stats.Failed++
			log.WithError(err).Error("Failed to import review")
			continue
		}

		stats.Imported++
		log.WithField("review_id", review.ID).Debug("Review imported")
	}

	im.logger.WithFields(logrus.Fields{
		"imported": stats.Imported,
		"invalid":  stats.Invalid,
		"failed":   stats.Failed,
	}).Info("Import completed")

	return stats, nil
}
