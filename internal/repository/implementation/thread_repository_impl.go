package implementation

import (
	"context"
	"errors"

	"chatserver-be/internal/model"
	"chatserver-be/internal/repository/contract"
	"chatserver-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ThreadRepositoryImpl struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) contract.ThreadRepository {
	return &ThreadRepositoryImpl{db: db}
}

func (r *ThreadRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*model.Thread, error) {
	var m model.Thread
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *ThreadRepositoryImpl) LoadAllowList(ctx context.Context, threadID uuid.UUID) ([]string, error) {
	thread, err := r.FindOne(ctx, specification.ByID{ID: threadID})
	if err != nil || thread == nil {
		return nil, err
	}
	return []string(thread.AllowedTables), nil
}
