package repository

import (
	"context"
	"errors"
	"time"

	"discount-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned by Save when the stored policy has moved
// past the version the caller read.
var ErrVersionConflict = errors.New("discount policy was modified concurrently")

// DiscountPolicyRepository defines data access for per-store discount trees.
type DiscountPolicyRepository interface {
	FindByStoreID(ctx context.Context, storeID string) (*models.DiscountPolicy, error)
	Create(ctx context.Context, policy *models.DiscountPolicy) error
	Save(ctx context.Context, policy *models.DiscountPolicy, expectedVersion int) error
}

// GormDiscountPolicyRepository implements DiscountPolicyRepository using GORM.
type GormDiscountPolicyRepository struct {
	db *gorm.DB
}

// NewGormDiscountPolicyRepository creates a new GormDiscountPolicyRepository.
func NewGormDiscountPolicyRepository(db *gorm.DB) DiscountPolicyRepository {
	return &GormDiscountPolicyRepository{db: db}
}

// FindByStoreID returns gorm.ErrRecordNotFound when the store has no policy yet.
func (r *GormDiscountPolicyRepository) FindByStoreID(ctx context.Context, storeID string) (*models.DiscountPolicy, error) {
	var p models.DiscountPolicy
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new policy. A concurrent insert for the same store is
// ignored; callers re-read afterwards.
func (r *GormDiscountPolicyRepository) Create(ctx context.Context, policy *models.DiscountPolicy) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "store_id"}}, DoNothing: true}).
		Create(policy).Error
}

// Save writes policy.Root if the stored version still equals expectedVersion
// and bumps the version. On success policy.Version holds the new version.
func (r *GormDiscountPolicyRepository) Save(ctx context.Context, policy *models.DiscountPolicy, expectedVersion int) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.DiscountPolicy{}).
		Where("id = ? AND version = ?", policy.ID, expectedVersion).
		Updates(map[string]interface{}{
			"root":       policy.Root,
			"version":    expectedVersion + 1,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	policy.Version = expectedVersion + 1
	policy.UpdatedAt = now
	return nil
}
