package implementation

import (
	"context"

	"chatserver-be/internal/model"
	"chatserver-be/internal/repository/contract"
	"chatserver-be/internal/repository/scope"
	"chatserver-be/internal/repository/specification"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueryAuditRepositoryImpl struct {
	db *gorm.DB
}

func NewQueryAuditRepository(db *gorm.DB) contract.QueryAuditRepository {
	return &QueryAuditRepositoryImpl{db: db}
}

// Create ignores a second write for the same request id.
func (r *QueryAuditRepositoryImpl) Create(ctx context.Context, audit *model.QueryAudit) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(audit).Error
}

func (r *QueryAuditRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.QueryAudit, error) {
	var models []*model.QueryAudit
	query := applySpecifications(r.db.WithContext(ctx).Scopes(scope.OrderByRecordedDesc), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}
