package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Ayash-Bera/reviewboard/backend/internal/models"
	"gorm.io/gorm"
)

// ReviewRepositoryImpl implements ReviewRepository
type ReviewRepositoryImpl struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) models.ReviewRepository {
	return &ReviewRepositoryImpl{db: db}
}

// likeEscaper escapes LIKE wildcards; postgres uses backslash as the default escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// filterScope turns a ReviewFilter into WHERE clauses. Absent fields add nothing.
func filterScope(filter models.ReviewFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.Search != "" {
			db = db.Where("title LIKE ?", "%"+likeEscaper.Replace(filter.Search)+"%")
		}
		if filter.Author != "" {
			db = db.Where("author = ?", filter.Author)
		}
		if filter.Rating != 0 {
			db = db.Where("rating = ?", filter.Rating)
		}
		return db
	}
}

func (r *ReviewRepositoryImpl) Find(ctx context.Context, filter models.ReviewFilter, skip, take int) ([]models.Review, error) {
	reviews := make([]models.Review, 0, take)
	err := r.db.WithContext(ctx).
		Scopes(filterScope(filter)).
		Order("id ASC").
		Offset(skip).
		Limit(take).
		Find(&reviews).Error
	if err != nil {
		return nil, storageError("find reviews", err)
	}
	return reviews, nil
}

func (r *ReviewRepositoryImpl) Count(ctx context.Context, filter models.ReviewFilter) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Scopes(filterScope(filter)).
		Count(&total).Error
	if err != nil {
		return 0, storageError("count reviews", err)
	}
	return total, nil
}

func (r *ReviewRepositoryImpl) DistinctAuthors(ctx context.Context, filter models.ReviewFilter) ([]string, error) {
	authors := make([]string, 0)
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Scopes(filterScope(filter)).
		Distinct("author").
		Order("author ASC").
		Pluck("author", &authors).Error
	if err != nil {
		return nil, storageError("list authors", err)
	}
	return authors, nil
}

func (r *ReviewRepositoryImpl) GetByID(ctx context.Context, id uint) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).First(&review, id).Error
	if err != nil {
		return nil, storageError("get review", err)
	}
	return &review, nil
}

func (r *ReviewRepositoryImpl) Create(ctx context.Context, review *models.Review) error {
	review.ID = 0
	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		return storageError("create review", err)
	}
	return nil
}

func (r *ReviewRepositoryImpl) Update(ctx context.Context, id uint, input models.ReviewInput) (*models.Review, error) {
	var updated models.Review
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Review{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"title":   input.Title,
				"content": input.Content,
				"author":  input.Author,
				"rating":  input.Rating,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&updated, id).Error
	})
	if err != nil {
		return nil, storageError("update review", err)
	}
	return &updated, nil
}

func (r *ReviewRepositoryImpl) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Review{}, id)
	if result.Error != nil {
		return storageError("delete review", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Review not found", nil)
	}
	return nil
}

// storageError maps driver errors onto the domain error kinds.
func storageError(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError("Review not found", err)
	}
	return models.NewUnavailableError(op+" failed", err)
}

// SystemHealthRepositoryImpl implements SystemHealthRepository
type SystemHealthRepositoryImpl struct {
	db *gorm.DB
}

func NewSystemHealthRepository(db *gorm.DB) models.SystemHealthRepository {
	return &SystemHealthRepositoryImpl{db: db}
}

func (r *SystemHealthRepositoryImpl) UpdateServiceHealth(ctx context.Context, serviceName, status string, responseTime int, errorMsg string) error {
	return r.db.WithContext(ctx).Exec(`
		INSERT INTO system_health (service_name, status, response_time_ms, error_message, checked_at)
		VALUES (?, ?, ?, ?, NOW())
	`, serviceName, status, responseTime, errorMsg).Error
}

func (r *SystemHealthRepositoryImpl) GetAllServicesHealth(ctx context.Context) ([]models.SystemHealth, error) {
	var health []models.SystemHealth
	err := r.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (service_name) *
		FROM system_health
		ORDER BY service_name, checked_at DESC
	`).Scan(&health).Error
	return health, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Reviews      models.ReviewRepository
	SystemHealth models.SystemHealthRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Reviews:      NewReviewRepository(db),
		SystemHealth: NewSystemHealthRepository(db),
	}
}
