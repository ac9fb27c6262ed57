package contract

import (
	"context"

	"chatserver-be/internal/model"
	"chatserver-be/internal/repository/specification"
)

type QueryAuditRepository interface {
	Create(ctx context.Context, audit *model.QueryAudit) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*model.QueryAudit, error)
}
