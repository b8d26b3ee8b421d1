package models

// GORM models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Review is a single feedback entry. ID and CreatedAt are assigned by the store.
type Review struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Title     string    `json:"title" gorm:"not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Author    string    `json:"author" gorm:"not null;index"`
	Rating    int       `json:"rating" gorm:"not null;index;check:rating >= 1 AND rating <= 5"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// SystemHealth represents service health monitoring
type SystemHealth struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ServiceName    string    `json:"service_name" gorm:"not null;index"`
	Status         string    `json:"status" gorm:"not null;check:status IN ('healthy','degraded','unhealthy')"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   string    `json:"error_message"`
	CheckedAt      time.Time `json:"checked_at" gorm:"default:NOW()"`
}

// ReviewRepository is the storage collaborator behind the query composer and the
// mutation service.
type ReviewRepository interface {
	Find(ctx context.Context, filter ReviewFilter, skip, take int) ([]Review, error)
	Count(ctx context.Context, filter ReviewFilter) (int64, error)
	DistinctAuthors(ctx context.Context, filter ReviewFilter) ([]string, error)
	GetByID(ctx context.Context, id uint) (*Review, error)
	Create(ctx context.Context, review *Review) error
	Update(ctx context.Context, id uint, input ReviewInput) (*Review, error)
	Delete(ctx context.Context, id uint) error
}

type SystemHealthRepository interface {
	UpdateServiceHealth(ctx context.Context, serviceName, status string, responseTime int, errorMsg string) error
	GetAllServicesHealth(ctx context.Context) ([]SystemHealth, error)
}

// TableName methods for custom table names
func (Review) TableName() string       { return "reviews" }
func (SystemHealth) TableName() string { return "system_health" }

// Validate mirrors the request schema so rows written outside the API
// (seeders, scripts) cannot break the stored invariants.
func (r *Review) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if strings.TrimSpace(r.Author) == "" {
		return fmt.Errorf("author is required")
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)
	}
	return nil
}

// Valid reports whether a review received from elsewhere looks like a persisted row.
func (r *Review) Valid() bool {
	return r.ID != 0 && r.Validate() == nil
}

// GORM hooks
func (r *Review) BeforeCreate(tx *gorm.DB) error {
	return r.Validate()
}
