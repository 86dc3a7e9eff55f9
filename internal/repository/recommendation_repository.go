package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-forecast/internal/domain"
)

type RecommendationRepository interface {
	GetRecommendation(ctx context.Context, id int64) (*domain.OrderRecommendation, error)
	FindRecommendation(ctx context.Context, key domain.SKUKey, month time.Time) (*domain.OrderRecommendation, error)
	// SaveRecommendation upserts on (sku, warehouse, order_month) and returns
	// domain.ErrRecommendationLocked when the existing row is locked
	SaveRecommendation(ctx context.Context, rec *domain.OrderRecommendation) error
	// UpdateRecommendationEdits writes the user edit columns of an unlocked
	// row and returns domain.ErrRecommendationLocked when the row is locked
	UpdateRecommendationEdits(ctx context.Context, rec *domain.OrderRecommendation) error
	// SetRecommendationLock writes only the lock columns. Locking an already
	// locked row keeps the original holder.
	SetRecommendationLock(ctx context.Context, id int64, locked bool, user string, at time.Time) error
	ListRecommendations(ctx context.Context, filter domain.RecommendationFilter) ([]domain.OrderRecommendation, int, error)
}
