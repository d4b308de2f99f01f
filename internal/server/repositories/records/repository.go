// Package records persists collection rows as JSONB documents and answers
// filtered, sorted range queries over them.
package records

import (
	"context"

	"github.com/campusfix/campusfix/internal/models"
)

type Repository interface {
	List(ctx context.Context, collection models.Collection, filter models.Filter, sort models.Sort, offset, limit int) ([]models.Entity, error)
	Count(ctx context.Context, collection models.Collection, filter models.Filter) (int, error)
	Get(ctx context.Context, collection models.Collection, id string) (models.Entity, error)
	Insert(ctx context.Context, e models.Entity) error
	Update(ctx context.Context, e models.Entity) error
	Delete(ctx context.Context, collection models.Collection, id string) error
}
